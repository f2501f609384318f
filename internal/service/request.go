package service

import (
	"regexp"

	"github.com/MikeSquared-Agency/SaddleSum/internal/apperr"
	"github.com/MikeSquared-Agency/SaddleSum/internal/enrich"
	"github.com/MikeSquared-Agency/SaddleSum/internal/weights"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ValidateName checks database and namespace names. They become NATS subject
// tokens and Redis key segments, so dots and wildcards are not allowed.
func ValidateName(kind, name string) error {
	if !namePattern.MatchString(name) {
		return apperr.Configf("invalid %s name %q", kind, name)
	}
	return nil
}

// EnrichRequest is one query against a stored term database. Unset fields
// fall back to the service defaults.
type EnrichRequest struct {
	Database string          `json:"database"`
	Term     string          `json:"term,omitempty"`
	Weights  []weights.Entry `json:"weights"`

	Statistic       string   `json:"statistic,omitempty"`
	MinTermSize     *int     `json:"min_term_size,omitempty"`
	EvalueCutoff    *float64 `json:"evalue_cutoff,omitempty"`
	EffectiveDBSize *float64 `json:"effective_db_size,omitempty"`
	Transform       string   `json:"transform,omitempty"`
	RankCutoff      int      `json:"rank_cutoff,omitempty"`
	WeightCutoff    *float64 `json:"weight_cutoff,omitempty"`
	Discretize      bool     `json:"discretize,omitempty"`
	UseAllWeights   *bool    `json:"use_all_weights,omitempty"`
}

// Options overlays the request on defaults and validates the result.
func (r *EnrichRequest) Options(defaults enrich.Options) (enrich.Options, error) {
	opts := defaults
	if r.Statistic != "" {
		stat, err := enrich.ParseStatistic(r.Statistic)
		if err != nil {
			return opts, err
		}
		opts.Statistic = stat
	}
	if r.MinTermSize != nil {
		opts.MinTermSize = *r.MinTermSize
	}
	if r.EvalueCutoff != nil {
		opts.EvalueCutoff = *r.EvalueCutoff
	}
	if r.EffectiveDBSize != nil {
		opts.EffectiveDBSize = *r.EffectiveDBSize
	}
	if r.UseAllWeights != nil {
		opts.UseAllWeights = *r.UseAllWeights
	}

	transform, err := weights.ParseTransform(r.Transform)
	if err != nil {
		return opts, err
	}
	cutoff, err := weights.NewCutoff(r.RankCutoff, r.WeightCutoff)
	if err != nil {
		return opts, err
	}
	opts.Weights = weights.Options{
		Transform:  transform,
		Cutoff:     cutoff,
		RankCutoff: r.RankCutoff,
		Discretize: r.Discretize,
	}
	if r.WeightCutoff != nil {
		opts.Weights.WeightCutoff = *r.WeightCutoff
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// entries numbers the submitted weights so duplicate warnings can name a
// position.
func (r *EnrichRequest) entries() []weights.Entry {
	out := make([]weights.Entry, len(r.Weights))
	for i, e := range r.Weights {
		e.Line = i + 1
		out[i] = e
	}
	return out
}

// runParams is the stored record of the effective options.
type runParams struct {
	Statistic       string  `json:"statistic"`
	MinTermSize     int     `json:"min_term_size"`
	EvalueCutoff    float64 `json:"evalue_cutoff"`
	EffectiveDBSize float64 `json:"effective_db_size"`
	Transform       string  `json:"transform,omitempty"`
	Cutoff          string  `json:"cutoff"`
	RankCutoff      int     `json:"rank_cutoff,omitempty"`
	WeightCutoff    float64 `json:"weight_cutoff,omitempty"`
	Discretize      bool    `json:"discretize,omitempty"`
	UseAllWeights   bool    `json:"use_all_weights,omitempty"`
	NumWeights      int     `json:"num_weights"`
}

func newRunParams(o enrich.Options, numWeights int) runParams {
	return runParams{
		Statistic:       o.Statistic.String(),
		MinTermSize:     o.MinTermSize,
		EvalueCutoff:    o.EvalueCutoff,
		EffectiveDBSize: o.EffectiveDBSize,
		Transform:       o.Weights.Transform.String(),
		Cutoff:          o.Weights.Cutoff.String(),
		RankCutoff:      o.Weights.RankCutoff,
		WeightCutoff:    o.Weights.WeightCutoff,
		Discretize:      o.Weights.Discretize,
		UseAllWeights:   o.UseAllWeights,
		NumWeights:      numWeights,
	}
}
