package hermes

import "time"

// HitSummary is the top of a run's hit list, carried in completion events.
type HitSummary struct {
	ID     string  `json:"id"`
	EValue float64 `json:"evalue"`
}

type RunCompletedEvent struct {
	RunID      string       `json:"run_id"`
	Database   string       `json:"database"`
	Term       string       `json:"term,omitempty"`
	Statistic  string       `json:"statistic"`
	NumHits    int          `json:"num_hits"`
	TopHits    []HitSummary `json:"top_hits,omitempty"`
	DurationMs int64        `json:"duration_ms"`
}

type RunFailedEvent struct {
	RunID    string `json:"run_id"`
	Database string `json:"database"`
	Error    string `json:"error"`
}

type DatabaseImportedEvent struct {
	Database    string    `json:"database"`
	Namespace   string    `json:"namespace"`
	TermsAdded  int       `json:"terms_added"`
	NumTerms    int       `json:"num_terms"`
	NumEntities int       `json:"num_entities"`
	Timestamp   time.Time `json:"timestamp"`
}

type DatabaseDeletedEvent struct {
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}
