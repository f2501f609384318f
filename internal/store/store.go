package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/SaddleSum/internal/enrich"
	"github.com/MikeSquared-Agency/SaddleSum/internal/termdb"
)

type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// DatabaseInfo describes a stored term database without loading its terms.
type DatabaseInfo struct {
	Name        string    `json:"name"`
	Namespaces  []string  `json:"namespaces"`
	NumTerms    int       `json:"num_terms"`
	NumEntities int       `json:"num_entities"`
	NumAliases  int       `json:"num_aliases"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Run is one recorded enrichment query.
type Run struct {
	ID       uuid.UUID `json:"run_id"`
	Database string    `json:"database"`
	// Term is set for single-term queries.
	Term      string           `json:"term,omitempty"`
	Statistic enrich.Statistic `json:"statistic"`
	Status    RunStatus        `json:"status"`

	Params json.RawMessage `json:"params,omitempty"`
	Result *enrich.Result  `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

type RunFilter struct {
	Database string
	Status   *RunStatus
	Limit    int
}

type Store interface {
	EnsureSchema(ctx context.Context) error

	// Term databases
	SaveDatabase(ctx context.Context, db *termdb.Database) error
	LoadDatabase(ctx context.Context, name string) (*termdb.Database, error)
	GetDatabaseInfo(ctx context.Context, name string) (*DatabaseInfo, error)
	ListDatabases(ctx context.Context) ([]*DatabaseInfo, error)
	DeleteDatabase(ctx context.Context, name string) (bool, error)

	// Runs
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	Close() error
}
