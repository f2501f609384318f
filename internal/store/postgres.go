package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeSquared-Agency/SaddleSum/internal/enrich"
	"github.com/MikeSquared-Agency/SaddleSum/internal/termdb"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS term_databases (
	name         TEXT PRIMARY KEY,
	namespaces   TEXT[] NOT NULL DEFAULT '{}',
	num_terms    INTEGER NOT NULL DEFAULT 0,
	num_entities INTEGER NOT NULL DEFAULT 0,
	num_aliases  INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS term_entities (
	database TEXT NOT NULL REFERENCES term_databases(name) ON DELETE CASCADE,
	idx      INTEGER NOT NULL,
	symbol   TEXT NOT NULL,
	PRIMARY KEY (database, idx)
);

CREATE TABLE IF NOT EXISTS terms (
	database    TEXT NOT NULL REFERENCES term_databases(name) ON DELETE CASCADE,
	idx         INTEGER NOT NULL,
	term_id     TEXT NOT NULL,
	namespace   TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	entities    BIGINT[] NOT NULL DEFAULT '{}',
	PRIMARY KEY (database, idx)
);

CREATE TABLE IF NOT EXISTS term_aliases (
	database TEXT NOT NULL REFERENCES term_databases(name) ON DELETE CASCADE,
	alias    TEXT NOT NULL,
	symbol   TEXT NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (database, alias, position)
);

CREATE TABLE IF NOT EXISTS enrichment_runs (
	run_id      UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	database    TEXT NOT NULL,
	term        TEXT NOT NULL DEFAULT '',
	statistic   TEXT NOT NULL,
	status      TEXT NOT NULL,
	params      JSONB,
	result      JSONB,
	error       TEXT,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS enrichment_runs_database_idx ON enrichment_runs (database, created_at DESC);
`

// EnsureSchema creates the tables on first use.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// --- Term databases ---

// SaveDatabase replaces the stored copy of db, keeping entity and term
// indices so a later load rebuilds the same database.
func (s *PostgresStore) SaveDatabase(ctx context.Context, db *termdb.Database) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	aliases := db.Aliases()
	aliasNames := make([]string, 0, len(aliases))
	numAliases := 0
	for a, targets := range aliases {
		aliasNames = append(aliasNames, a)
		numAliases += len(targets)
	}
	sort.Strings(aliasNames)

	_, err = tx.Exec(ctx, `
		INSERT INTO term_databases (name, namespaces, num_terms, num_entities, num_aliases)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			namespaces = EXCLUDED.namespaces,
			num_terms = EXCLUDED.num_terms,
			num_entities = EXCLUDED.num_entities,
			num_aliases = EXCLUDED.num_aliases,
			updated_at = now()`,
		db.Name(), db.Namespaces(), db.NumTerms(), db.NumEntities(), numAliases)
	if err != nil {
		return fmt.Errorf("upsert database: %w", err)
	}

	for _, table := range []string{"term_entities", "terms", "term_aliases"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE database = $1`, db.Name()); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"term_entities"}, []string{"database", "idx", "symbol"},
		pgx.CopyFromSlice(db.NumEntities(), func(i int) ([]any, error) {
			return []any{db.Name(), i, db.Symbol(i)}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy entities: %w", err)
	}

	namespaces := db.Namespaces()
	_, err = tx.CopyFrom(ctx, pgx.Identifier{"terms"}, []string{"database", "idx", "term_id", "namespace", "description", "entities"},
		pgx.CopyFromSlice(db.NumTerms(), func(i int) ([]any, error) {
			t := db.Term(i)
			members := make([]int64, len(t.Entities))
			for j, e := range t.Entities {
				members[j] = int64(e)
			}
			return []any{db.Name(), i, t.ID, namespaces[t.Namespace], t.Description, members}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy terms: %w", err)
	}

	var aliasRows [][]any
	for _, a := range aliasNames {
		for pos, symbol := range aliases[a] {
			aliasRows = append(aliasRows, []any{db.Name(), a, symbol, pos})
		}
	}
	_, err = tx.CopyFrom(ctx, pgx.Identifier{"term_aliases"}, []string{"database", "alias", "symbol", "position"},
		pgx.CopyFromRows(aliasRows))
	if err != nil {
		return fmt.Errorf("copy aliases: %w", err)
	}

	return tx.Commit(ctx)
}

// LoadDatabase rebuilds a stored database. It returns nil, nil when name is
// unknown.
func (s *PostgresStore) LoadDatabase(ctx context.Context, name string) (*termdb.Database, error) {
	var namespaces []string
	err := s.pool.QueryRow(ctx, `SELECT namespaces FROM term_databases WHERE name = $1`, name).Scan(&namespaces)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	db := termdb.New(name)
	for _, ns := range namespaces {
		db.AddNamespace(ns)
	}

	rows, err := s.pool.Query(ctx, `SELECT symbol FROM term_entities WHERE database = $1 ORDER BY idx`, name)
	if err != nil {
		return nil, err
	}
	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			rows.Close()
			return nil, err
		}
		symbols = append(symbols, sym)
		db.AddEntity(sym)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT term_id, namespace, description, entities
		FROM terms WHERE database = $1 ORDER BY idx`, name)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id, ns, desc string
		var members []int64
		if err := rows.Scan(&id, &ns, &desc, &members); err != nil {
			rows.Close()
			return nil, err
		}
		termSymbols := make([]string, 0, len(members))
		for _, e := range members {
			if e < 0 || int(e) >= len(symbols) {
				rows.Close()
				return nil, fmt.Errorf("term %s references entity %d of %d", id, e, len(symbols))
			}
			termSymbols = append(termSymbols, symbols[e])
		}
		if _, err := db.AddTerm(ns, id, desc, termSymbols); err != nil {
			rows.Close()
			return nil, fmt.Errorf("term %s: %w", id, err)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT alias, symbol FROM term_aliases
		WHERE database = $1 ORDER BY alias, position`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var alias, sym string
		if err := rows.Scan(&alias, &sym); err != nil {
			return nil, err
		}
		db.AddAlias(alias, sym)
	}
	return db, rows.Err()
}

const databaseColumns = `name, namespaces, num_terms, num_entities, num_aliases, created_at, updated_at`

func scanDatabaseInfo(row pgx.Row) (*DatabaseInfo, error) {
	info := &DatabaseInfo{}
	err := row.Scan(&info.Name, &info.Namespaces, &info.NumTerms, &info.NumEntities,
		&info.NumAliases, &info.CreatedAt, &info.UpdatedAt)
	return info, err
}

func (s *PostgresStore) GetDatabaseInfo(ctx context.Context, name string) (*DatabaseInfo, error) {
	info, err := scanDatabaseInfo(s.pool.QueryRow(ctx,
		`SELECT `+databaseColumns+` FROM term_databases WHERE name = $1`, name))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (s *PostgresStore) ListDatabases(ctx context.Context) ([]*DatabaseInfo, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+databaseColumns+` FROM term_databases ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DatabaseInfo
	for rows.Next() {
		info, err := scanDatabaseInfo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteDatabase(ctx context.Context, name string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM term_databases WHERE name = $1`, name)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// --- Runs ---

const runColumns = `run_id, database, term, statistic, status, params, result, error, duration_ms, created_at`

func (s *PostgresStore) CreateRun(ctx context.Context, run *Run) error {
	var resultJSON []byte
	if run.Result != nil {
		b, err := json.Marshal(run.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resultJSON = b
	}
	var params []byte
	if len(run.Params) > 0 {
		params = run.Params
	}
	var runError *string
	if run.Error != "" {
		runError = &run.Error
	}

	return s.pool.QueryRow(ctx, `
		INSERT INTO enrichment_runs (database, term, statistic, status, params, result, error, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING run_id, created_at`,
		run.Database, run.Term, run.Statistic.String(), string(run.Status),
		params, resultJSON, runError, run.DurationMs,
	).Scan(&run.ID, &run.CreatedAt)
}

func scanRun(row pgx.Row) (*Run, error) {
	r := &Run{}
	var statistic, status string
	var params, resultJSON []byte
	var runError sql.NullString
	err := row.Scan(&r.ID, &r.Database, &r.Term, &statistic, &status,
		&params, &resultJSON, &runError, &r.DurationMs, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if r.Statistic, err = enrich.ParseStatistic(statistic); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	if len(params) > 0 {
		r.Params = json.RawMessage(params)
	}
	if len(resultJSON) > 0 {
		r.Result = &enrich.Result{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	if runError.Valid {
		r.Error = runError.String
	}
	return r, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM enrichment_runs WHERE run_id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM enrichment_runs WHERE 1=1`
	args := []interface{}{}
	n := 0

	if filter.Database != "" {
		n++
		query += fmt.Sprintf(" AND database = $%d", n)
		args = append(args, filter.Database)
	}
	if filter.Status != nil {
		n++
		query += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, string(*filter.Status))
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	n++
	query += fmt.Sprintf(" LIMIT $%d", n)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
