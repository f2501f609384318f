package enrich

import (
	"cmp"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/MikeSquared-Agency/SaddleSum/internal/apperr"
	"github.com/MikeSquared-Agency/SaddleSum/internal/hypergeom"
	"github.com/MikeSquared-Agency/SaddleSum/internal/saddlesum"
	"github.com/MikeSquared-Agency/SaddleSum/internal/weights"
)

// TermHit is one scored term.
type TermHit struct {
	Term        int     `json:"term"`
	ID          string  `json:"id"`
	Namespace   string  `json:"namespace"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
	NumEntities int     `json:"num_entities"`
	PValue      float64 `json:"pvalue"`
	EValue      float64 `json:"evalue"`

	namespaceRank int
}

// Scored reports whether the term met the minimum size.
func (h TermHit) Scored() bool { return h.PValue >= 0 }

// EntityWeight is one member of a single-term result.
type EntityWeight struct {
	Entity int    `json:"-"`
	Symbol string `json:"symbol"`
	// Input is the symbol the weight was submitted under.
	Input  string  `json:"input,omitempty"`
	Weight float64 `json:"weight"`
	Used   bool    `json:"used"`
}

// Result is the outcome of one enrichment pass.
type Result struct {
	Statistic       Statistic          `json:"statistic"`
	NumTerms        int                `json:"num_terms"`
	NumUsedTerms    int                `json:"num_used_terms"`
	EffectiveDBSize float64            `json:"effective_db_size"`
	EvalueCutoff    float64            `json:"evalue_cutoff"`
	PValueCutoff    float64            `json:"pvalue_cutoff"`
	MinTermSize     int                `json:"min_term_size"`
	Cutoff          weights.CutoffKind `json:"cutoff"`
	Discretized     bool               `json:"discretized"`
	Counts          Counts             `json:"counts"`
	Weights         weights.Summary    `json:"weights"`
	Warnings        []Warning          `json:"warnings,omitempty"`
	Solver          saddlesum.Stats    `json:"solver"`
	Hits            []TermHit          `json:"hits"`
	// Members is filled for single-term queries only.
	Members []EntityWeight `json:"members,omitempty"`
}

type scorer interface {
	score(m Mapping) (score float64, used int)
	pvalue(score float64, used int, cutoff float64) (float64, error)
}

type wsumScorer struct {
	vec    weights.Vector
	solver *saddlesum.Solver
}

func (w *wsumScorer) score(m Mapping) (float64, int) {
	sum, n := 0.0, 0
	for _, e := range m.Entities {
		if w.vec.Used[e] {
			sum += w.vec.Values[e]
			n++
		}
	}
	return sum, n
}

func (w *wsumScorer) pvalue(score float64, used int, cutoff float64) (float64, error) {
	return w.solver.PValue(score, used, cutoff)
}

type fisherScorer struct {
	vec   weights.Vector
	table *hypergeom.Table
}

func (f *fisherScorer) score(m Mapping) (float64, int) {
	pos, n := 0, 0
	for _, e := range m.Entities {
		if f.vec.Used[e] {
			n++
			if f.vec.Values[e] > 0 {
				pos++
			}
		}
	}
	return float64(pos), n
}

func (f *fisherScorer) pvalue(score float64, used int, _ float64) (float64, error) {
	return f.table.PValue(int(score), used)
}

func (s *Session) newScorer() (scorer, *saddlesum.Solver, error) {
	switch s.opts.Statistic {
	case StatFisher:
		t, err := hypergeom.New(s.counts.ValidIDs, s.counts.NonzeroValidIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("hypergeometric table: %w", err)
		}
		return &fisherScorer{vec: s.vec, table: t}, nil, nil
	default:
		bg, err := saddlesum.NewBackground(s.vec.UsedValues())
		if err != nil {
			return nil, nil, err
		}
		solver := saddlesum.NewSolver(bg, s.opts.Solver)
		return &wsumScorer{vec: s.vec, solver: solver}, solver, nil
	}
}

// size runs the sizing pass and fills the database size fields of res.
func (s *Session) size(mappings MappingProvider, meta MetadataProvider, res *Result) {
	s.logger.Debug("enrichment phase", "phase", "sizing")
	res.NumTerms = meta.NumTerms()

	mappings.Reset()
	for {
		m, ok := mappings.Next()
		if !ok {
			break
		}
		n := 0
		for _, e := range m.Entities {
			if s.vec.Used[e] {
				n++
			}
		}
		if n >= s.opts.MinTermSize {
			res.NumUsedTerms++
		}
	}

	res.EffectiveDBSize = s.opts.EffectiveDBSize
	if res.EffectiveDBSize <= 0 {
		res.EffectiveDBSize = float64(res.NumUsedTerms)
	}
	if res.EffectiveDBSize > 0 {
		res.PValueCutoff = s.opts.EvalueCutoff / res.EffectiveDBSize
	}
}

func (s *Session) prepare() (*Result, error) {
	if !s.processed {
		if _, err := s.ProcessWeights(); err != nil {
			return nil, err
		}
	}
	return &Result{
		Statistic:    s.opts.Statistic,
		EvalueCutoff: s.opts.EvalueCutoff,
		MinTermSize:  s.opts.MinTermSize,
		Cutoff:       s.opts.Weights.Cutoff,
		Discretized:  s.opts.Weights.Discretize,
		Weights:      s.summary,
	}, nil
}

// ComputeAll scores every term and returns the hits at or below the
// p-value cutoff, ordered by namespace and then by E-value. A resource error
// aborts the run with no partial result.
func (s *Session) ComputeAll(mappings MappingProvider, meta MetadataProvider) (*Result, error) {
	res, err := s.prepare()
	if err != nil {
		return nil, err
	}
	s.size(mappings, meta, res)

	sc, solver, err := s.newScorer()
	if err != nil {
		return nil, err
	}

	s.logger.Debug("enrichment phase", "phase", "scoring", "pvalue_cutoff", res.PValueCutoff)
	mappings.Reset()
	for {
		m, ok := mappings.Next()
		if !ok {
			break
		}
		score, n := sc.score(m)
		if n < s.opts.MinTermSize {
			continue
		}
		p, err := sc.pvalue(score, n, res.PValueCutoff)
		if err != nil {
			return nil, fmt.Errorf("term %d: %w", m.Term, err)
		}
		if p <= res.PValueCutoff {
			res.Hits = append(res.Hits, TermHit{Term: m.Term, Score: score, NumEntities: n, PValue: p})
		}
	}

	s.finish(res, meta, solver)
	sort.SliceStable(res.Hits, func(i, j int) bool {
		a, b := res.Hits[i], res.Hits[j]
		if a.namespaceRank != b.namespaceRank {
			return a.namespaceRank < b.namespaceRank
		}
		return a.EValue < b.EValue
	})

	s.logger.Info("enrichment complete",
		"statistic", s.opts.Statistic.String(),
		"terms", res.NumTerms,
		"used_terms", res.NumUsedTerms,
		"hits", len(res.Hits),
	)
	return res, nil
}

// ComputeOne scores a single term regardless of the cutoff. A term below
// the minimum size is reported with a p-value of -1.
func (s *Session) ComputeOne(mappings MappingProvider, meta MetadataProvider, term int) (*Result, error) {
	if term < 0 || term >= meta.NumTerms() {
		return nil, apperr.NotFoundf("term index %d", term)
	}
	res, err := s.prepare()
	if err != nil {
		return nil, err
	}
	s.size(mappings, meta, res)

	sc, solver, err := s.newScorer()
	if err != nil {
		return nil, err
	}

	if err := mappings.Seek(term); err != nil {
		return nil, err
	}
	m, ok := mappings.Next()
	if !ok {
		return nil, apperr.NotFoundf("term index %d", term)
	}

	score, n := sc.score(m)
	hit := TermHit{Term: m.Term, Score: score, NumEntities: n, PValue: -1}
	if n >= s.opts.MinTermSize {
		// No early rejection: the caller wants the value itself.
		p, err := sc.pvalue(score, n, 1.0)
		if err != nil {
			return nil, fmt.Errorf("term %d: %w", m.Term, err)
		}
		hit.PValue = p
	}
	res.Hits = []TermHit{hit}
	res.Members = s.members(m)

	s.finish(res, meta, solver)
	return res, nil
}

func (s *Session) finish(res *Result, meta MetadataProvider, solver *saddlesum.Solver) {
	for i := range res.Hits {
		h := &res.Hits[i]
		info := meta.TermInfo(h.Term)
		h.ID = info.ID
		h.Namespace = info.Namespace
		h.Description = info.Description
		h.namespaceRank = info.NamespaceRank
		h.EValue = h.PValue * res.EffectiveDBSize
	}
	res.Counts = s.counts
	res.Warnings = s.warnings
	if solver != nil {
		res.Solver = solver.Stats()
	}
}

// members lists a term's entities: used ones first by descending weight,
// then the rest, ties broken by symbol.
func (s *Session) members(m Mapping) []EntityWeight {
	out := make([]EntityWeight, 0, len(m.Entities))
	for _, e := range m.Entities {
		out = append(out, EntityWeight{
			Entity: e,
			Symbol: s.resolver.Symbol(e),
			Input:  s.symbols[e],
			Weight: s.vec.Values[e],
			Used:   s.vec.Used[e],
		})
	}
	slices.SortStableFunc(out, func(a, b EntityWeight) int {
		if a.Used != b.Used {
			if a.Used {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(b.Weight, a.Weight); c != 0 {
			return c
		}
		return strings.Compare(a.Symbol, b.Symbol)
	})
	return out
}
