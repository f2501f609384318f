// Package service runs enrichment queries against stored term databases and
// keeps the loaded databases, cached results and published events in step.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/MikeSquared-Agency/SaddleSum/internal/apperr"
	"github.com/MikeSquared-Agency/SaddleSum/internal/enrich"
	"github.com/MikeSquared-Agency/SaddleSum/internal/hermes"
	"github.com/MikeSquared-Agency/SaddleSum/internal/metrics"
	"github.com/MikeSquared-Agency/SaddleSum/internal/resultcache"
	"github.com/MikeSquared-Agency/SaddleSum/internal/saddlesum"
	"github.com/MikeSquared-Agency/SaddleSum/internal/store"
	"github.com/MikeSquared-Agency/SaddleSum/internal/termdb"
)

const topHitsInEvent = 5

type Service struct {
	store   store.Store
	events  hermes.Client
	results resultcache.Cache
	metrics *metrics.Metrics
	logger  *slog.Logger

	defaults enrich.Options
	dbs      *lru.Cache[string, *termdb.Database]
	loads    singleflight.Group
	// importMu serializes read-modify-write cycles on stored databases.
	importMu sync.Mutex
}

// New builds a service. events, results and m may be nil.
func New(s store.Store, events hermes.Client, results resultcache.Cache, m *metrics.Metrics,
	defaults enrich.Options, cachedDatabases int, logger *slog.Logger) (*Service, error) {
	dbs, err := lru.New[string, *termdb.Database](cachedDatabases)
	if err != nil {
		return nil, apperr.Configf("database cache: %v", err)
	}
	if m == nil {
		if m, err = metrics.New(nil); err != nil {
			return nil, err
		}
	}
	return &Service{
		store:    s,
		events:   events,
		results:  results,
		metrics:  m,
		logger:   logger,
		defaults: defaults,
		dbs:      dbs,
	}, nil
}

// WatchDatabases drops loaded databases when any instance reports a change.
func (s *Service) WatchDatabases() error {
	if s.events == nil {
		return nil
	}
	return s.events.Subscribe("saddlesum.database.>", func(subject string, _ []byte) {
		parts := strings.Split(subject, ".")
		if len(parts) != 4 {
			return
		}
		if s.dbs.Remove(parts[2]) {
			s.logger.Debug("evicted term database", "database", parts[2], "event", parts[3])
		}
	})
}

func (s *Service) publish(subject string, event interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(subject, event); err != nil {
		s.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

// database returns the parsed database, loading it at most once per miss.
func (s *Service) database(ctx context.Context, name string) (*termdb.Database, error) {
	if db, ok := s.dbs.Get(name); ok {
		return db, nil
	}
	v, err, _ := s.loads.Do(name, func() (interface{}, error) {
		db, err := s.store.LoadDatabase(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("load database %s: %w", name, err)
		}
		if db == nil {
			return nil, apperr.NotFoundf("database %s", name)
		}
		s.dbs.Add(name, db)
		s.logger.Info("loaded term database", "database", name, "terms", db.NumTerms(), "entities", db.NumEntities())
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*termdb.Database), nil
}

// Enrich runs req and records it. Invalid requests are rejected before a run
// is recorded; failures during computation are stored as failed runs.
func (s *Service) Enrich(ctx context.Context, req *EnrichRequest) (*store.Run, error) {
	if err := ValidateName("database", req.Database); err != nil {
		return nil, err
	}
	opts, err := req.Options(s.defaults)
	if err != nil {
		return nil, err
	}
	db, err := s.database(ctx, req.Database)
	if err != nil {
		return nil, err
	}
	term := -1
	if req.Term != "" {
		i, ok := db.TermIndex(req.Term)
		if !ok {
			return nil, apperr.NotFoundf("term %s in database %s", req.Term, req.Database)
		}
		term = i
	}

	params := newRunParams(opts, len(req.Weights))
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	run := &store.Run{
		Database:  req.Database,
		Term:      req.Term,
		Statistic: opts.Statistic,
		Params:    paramsJSON,
	}

	start := time.Now()
	key, res := s.cached(ctx, req, params)
	if res == nil {
		res, err = s.compute(opts, req, db, term)
		s.metrics.ObserveRun(opts.Statistic.String(), time.Since(start).Seconds(), hitCount(res), solverStats(res), err)
	}
	run.DurationMs = time.Since(start).Milliseconds()

	if err != nil {
		run.Status = store.RunFailed
		run.Error = err.Error()
		if serr := s.store.CreateRun(ctx, run); serr != nil {
			s.logger.Error("failed to record run", "database", req.Database, "error", serr)
			return nil, err
		}
		s.publish(hermes.SubjectRunFailed(run.ID.String()), hermes.RunFailedEvent{
			RunID:    run.ID.String(),
			Database: run.Database,
			Error:    run.Error,
		})
		return nil, err
	}

	run.Status = store.RunCompleted
	run.Result = res
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}
	if key != "" {
		if err := s.results.Set(ctx, key, res); err != nil {
			s.logger.Warn("failed to cache result", "key", key, "error", err)
		}
	}

	s.publish(hermes.SubjectRunCompleted(run.ID.String()), runCompletedEvent(run))
	s.logger.Info("enrichment run completed",
		"run_id", run.ID,
		"database", run.Database,
		"statistic", run.Statistic.String(),
		"hits", len(res.Hits),
		"duration_ms", run.DurationMs,
	)
	return run, nil
}

// cached returns the result cache key and, on a hit, the stored result.
// The key is empty when the result should not be written back.
func (s *Service) cached(ctx context.Context, req *EnrichRequest, params runParams) (string, *enrich.Result) {
	if s.results == nil {
		return "", nil
	}
	key, err := resultcache.Key(req.Database, struct {
		Term    string          `json:"term"`
		Params  runParams       `json:"params"`
		Weights json.RawMessage `json:"weights"`
	}{req.Term, params, rawJSON(req.Weights)})
	if err != nil {
		s.logger.Warn("failed to fingerprint request", "error", err)
		return "", nil
	}
	res, ok, err := s.results.Get(ctx, key)
	if err != nil {
		s.logger.Warn("result cache lookup failed", "key", key, "error", err)
		return key, nil
	}
	if !ok {
		s.metrics.IncResultCache(metrics.CacheMiss)
		return key, nil
	}
	s.metrics.IncResultCache(metrics.CacheHit)
	return "", res
}

func rawJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func (s *Service) compute(opts enrich.Options, req *EnrichRequest, db *termdb.Database, term int) (*enrich.Result, error) {
	sess, err := enrich.NewSession(opts, s.logger)
	if err != nil {
		return nil, err
	}
	if err := sess.LoadWeights(req.entries(), db, db.Mappings()); err != nil {
		return nil, err
	}
	if _, err := sess.ProcessWeights(); err != nil {
		return nil, err
	}
	if term >= 0 {
		return sess.ComputeOne(db.Mappings(), db, term)
	}
	return sess.ComputeAll(db.Mappings(), db)
}

func hitCount(res *enrich.Result) int {
	if res == nil {
		return 0
	}
	return len(res.Hits)
}

func solverStats(res *enrich.Result) (st saddlesum.Stats) {
	if res == nil {
		return st
	}
	return res.Solver
}

func runCompletedEvent(run *store.Run) hermes.RunCompletedEvent {
	ev := hermes.RunCompletedEvent{
		RunID:      run.ID.String(),
		Database:   run.Database,
		Term:       run.Term,
		Statistic:  run.Statistic.String(),
		NumHits:    len(run.Result.Hits),
		DurationMs: run.DurationMs,
	}
	for i, h := range run.Result.Hits {
		if i == topHitsInEvent {
			break
		}
		ev.TopHits = append(ev.TopHits, hermes.HitSummary{ID: h.ID, EValue: h.EValue})
	}
	return ev
}

func (s *Service) GetRun(ctx context.Context, id string) (*store.Run, error) {
	runID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid run id %q", apperr.ErrInvalidInput, id)
	}
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, apperr.NotFoundf("run %s", id)
	}
	return run, nil
}

func (s *Service) ListRuns(ctx context.Context, filter store.RunFilter) ([]*store.Run, error) {
	return s.store.ListRuns(ctx, filter)
}

func (s *Service) ListDatabases(ctx context.Context) ([]*store.DatabaseInfo, error) {
	return s.store.ListDatabases(ctx)
}

// GetDatabase describes a stored database, with per namespace term counts
// taken from the parsed copy.
func (s *Service) GetDatabase(ctx context.Context, name string) (*termdb.Info, error) {
	if err := ValidateName("database", name); err != nil {
		return nil, err
	}
	db, err := s.database(ctx, name)
	if err != nil {
		return nil, err
	}
	info := db.Info()
	return &info, nil
}

// ImportResult reports what an import added.
type ImportResult struct {
	Database    string `json:"database"`
	Namespace   string `json:"namespace,omitempty"`
	Added       int    `json:"added"`
	NumTerms    int    `json:"num_terms"`
	NumEntities int    `json:"num_entities"`
}

// ImportGMT adds the terms of a GMT stream to database under namespace,
// creating the database when it does not exist yet.
func (s *Service) ImportGMT(ctx context.Context, database, namespace string, r io.Reader) (*ImportResult, error) {
	if err := ValidateName("namespace", namespace); err != nil {
		return nil, err
	}
	return s.modify(ctx, database, namespace, func(db *termdb.Database) (int, error) {
		return db.LoadGMT(r, namespace)
	})
}

// ImportAliases adds "symbol alias..." lines to database.
func (s *Service) ImportAliases(ctx context.Context, database string, r io.Reader) (*ImportResult, error) {
	return s.modify(ctx, database, "", func(db *termdb.Database) (int, error) {
		return db.LoadAliases(r)
	})
}

func (s *Service) modify(ctx context.Context, name, namespace string, apply func(*termdb.Database) (int, error)) (*ImportResult, error) {
	if err := ValidateName("database", name); err != nil {
		return nil, err
	}
	s.importMu.Lock()
	defer s.importMu.Unlock()

	// Work on a fresh copy; loaded databases are shared by running queries.
	db, err := s.store.LoadDatabase(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load database %s: %w", name, err)
	}
	if db == nil {
		db = termdb.New(name)
	}
	added, err := apply(db)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveDatabase(ctx, db); err != nil {
		return nil, fmt.Errorf("save database %s: %w", name, err)
	}
	s.invalidate(ctx, name)
	s.metrics.IncImports()

	res := &ImportResult{
		Database:    name,
		Namespace:   namespace,
		Added:       added,
		NumTerms:    db.NumTerms(),
		NumEntities: db.NumEntities(),
	}
	s.publish(hermes.SubjectDatabaseImported(name), hermes.DatabaseImportedEvent{
		Database:    name,
		Namespace:   namespace,
		TermsAdded:  added,
		NumTerms:    res.NumTerms,
		NumEntities: res.NumEntities,
		Timestamp:   time.Now().UTC(),
	})
	s.logger.Info("imported into term database", "database", name, "namespace", namespace, "added", added)
	return res, nil
}

func (s *Service) DeleteDatabase(ctx context.Context, name string) error {
	if err := ValidateName("database", name); err != nil {
		return err
	}
	s.importMu.Lock()
	defer s.importMu.Unlock()

	ok, err := s.store.DeleteDatabase(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFoundf("database %s", name)
	}
	s.invalidate(ctx, name)
	s.publish(hermes.SubjectDatabaseDeleted(name), hermes.DatabaseDeletedEvent{
		Database:  name,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

func (s *Service) invalidate(ctx context.Context, name string) {
	s.dbs.Remove(name)
	if s.results == nil {
		return
	}
	n, err := s.results.InvalidateDatabase(ctx, name)
	if err != nil {
		s.logger.Warn("failed to invalidate cached results", "database", name, "error", err)
		return
	}
	s.logger.Debug("invalidated cached results", "database", name, "keys", n)
}
