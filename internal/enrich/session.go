// Package enrich scores annotated terms against a weighted entity list and
// ranks the significant ones.
//
// A run has two passes over the term mappings. The sizing pass counts the
// terms with at least MinTermSize used entities, which fixes the effective
// database size and the p-value cutoff. The scoring pass evaluates each such
// term with the selected statistic and keeps those at or below the cutoff.
package enrich

import (
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/SaddleSum/internal/apperr"
	"github.com/MikeSquared-Agency/SaddleSum/internal/saddlesum"
	"github.com/MikeSquared-Agency/SaddleSum/internal/weights"
)

const (
	DefaultMinTermSize  = 3
	DefaultEvalueCutoff = 0.01
)

// Options configures one enrichment session.
type Options struct {
	Statistic    Statistic
	MinTermSize  int
	EvalueCutoff float64
	// EffectiveDBSize overrides the number of tested terms when positive.
	EffectiveDBSize float64
	// UseAllWeights puts every resolved weight into the background, not
	// only those of entities annotated by some term.
	UseAllWeights bool
	Weights       weights.Options
	Solver        saddlesum.Options
}

func DefaultOptions() Options {
	return Options{
		Statistic:       StatWSum,
		MinTermSize:     DefaultMinTermSize,
		EvalueCutoff:    DefaultEvalueCutoff,
		EffectiveDBSize: -1,
		Solver:          saddlesum.DefaultOptions(),
	}
}

func (o Options) Validate() error {
	if o.MinTermSize < 1 {
		return apperr.Configf("minimum term size must be at least 1, got %d", o.MinTermSize)
	}
	if !(o.EvalueCutoff > 0) {
		return apperr.Configf("E-value cutoff must be positive, got %g", o.EvalueCutoff)
	}
	if o.Statistic != StatWSum && o.Statistic != StatFisher {
		return apperr.Configf("unknown statistic %d", o.Statistic)
	}
	if err := o.Weights.Validate(); err != nil {
		return err
	}
	if o.Statistic == StatFisher && o.Weights.Cutoff == weights.CutoffNone {
		return apperr.Configf("Fisher's exact test requires a rank or weight cutoff")
	}
	if o.Solver.MaxIterations < 1 {
		return apperr.Configf("max iterations must be positive, got %d", o.Solver.MaxIterations)
	}
	if !(o.Solver.Tolerance > 0) {
		return apperr.Configf("tolerance must be positive, got %g", o.Solver.Tolerance)
	}
	if o.Solver.MaxCacheItems < 0 {
		return apperr.Configf("max cache items must not be negative, got %d", o.Solver.MaxCacheItems)
	}
	return nil
}

// Session owns the entity-indexed weights for one run. It is not safe for
// concurrent use.
type Session struct {
	opts   Options
	logger *slog.Logger

	resolver EntityResolver
	vec      weights.Vector
	symbols  []string
	counts   Counts
	summary  weights.Summary

	warnings  []Warning
	loaded    bool
	processed bool
}

// NewSession validates opts and returns an empty session.
func NewSession(opts Options, logger *slog.Logger) (*Session, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{opts: opts, logger: logger}, nil
}

func (s *Session) Options() Options               { return s.opts }
func (s *Session) Counts() Counts                 { return s.counts }
func (s *Session) WeightSummary() weights.Summary { return s.summary }
func (s *Session) Vector() weights.Vector         { return s.vec }

// InputSymbol is the symbol under which entity's weight was supplied, or ""
// when the entity has no weight.
func (s *Session) InputSymbol(entity int) string {
	if entity < 0 || entity >= len(s.symbols) {
		return ""
	}
	return s.symbols[entity]
}

// LoadWeights resolves entries onto entities. The first weight given for an
// entity wins and later ones are recorded as duplicates. Unless
// UseAllWeights is set, entities that no term maps to are left unused.
func (s *Session) LoadWeights(entries []weights.Entry, resolver EntityResolver, mappings MappingProvider) error {
	if s.loaded {
		return fmt.Errorf("weights already loaded: %w", apperr.ErrInvalidInput)
	}
	for _, e := range entries {
		if err := e.CheckFinite(); err != nil {
			return err
		}
	}
	n := resolver.NumEntities()
	s.resolver = resolver
	s.vec = weights.NewVector(n)
	s.symbols = make([]string, n)
	s.counts.Entities = n

	mapped := make([]bool, n)
	if s.opts.UseAllWeights {
		for i := range mapped {
			mapped[i] = true
		}
	} else {
		mappings.Reset()
		for {
			m, ok := mappings.Next()
			if !ok {
				break
			}
			for _, e := range m.Entities {
				mapped[e] = true
			}
		}
	}

	for _, e := range entries {
		s.counts.RawWeights++
		idx, w := resolver.Resolve(e.Symbol)
		if w != nil {
			s.RecordWarning(*w)
			if w.Code != ResolvableConflict {
				continue
			}
		}
		switch {
		case s.vec.Used[idx]:
			s.RecordWarning(Warning{
				Code:    DuplicateID,
				Message: fmt.Sprintf("Duplicate weight for %s (line %d) - additional instance IGNORED.", e.Symbol, e.Line),
			})
		case mapped[idx]:
			s.vec.Values[idx] = e.Weight
			s.vec.Used[idx] = true
			s.symbols[idx] = e.Symbol
			s.counts.ValidIDs++
		}
	}
	s.counts.UnusedEntities = n - s.counts.ValidIDs
	s.loaded = true

	s.logger.Debug("weights loaded",
		"raw", s.counts.RawWeights,
		"valid", s.counts.ValidIDs,
		"unknown", s.counts.UnknownIDs,
		"duplicate", s.counts.DuplicateIDs,
	)
	return nil
}

// ProcessWeights applies the transform, cutoff and discretization stages.
func (s *Session) ProcessWeights() (weights.Summary, error) {
	if !s.loaded {
		return weights.Summary{}, fmt.Errorf("weights not loaded: %w", apperr.ErrInvalidInput)
	}
	if s.processed {
		return s.summary, nil
	}
	s.summary = weights.Process(&s.vec, s.opts.Weights)
	s.counts.NonzeroValidIDs = s.summary.NumNonzero
	s.processed = true
	s.logger.Debug("weights processed", "summary", s.summary.String())
	return s.summary, nil
}
