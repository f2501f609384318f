package enrich

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/SaddleSum/internal/apperr"
	"github.com/MikeSquared-Agency/SaddleSum/internal/weights"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTerm struct {
	id       string
	ns       string
	rank     int
	entities []int
}

type fakeDB struct {
	symbols []string
	terms   []fakeTerm
}

func (f *fakeDB) NumEntities() int    { return len(f.symbols) }
func (f *fakeDB) Symbol(i int) string { return f.symbols[i] }
func (f *fakeDB) NumTerms() int       { return len(f.terms) }

func (f *fakeDB) Resolve(symbol string) (int, *Warning) {
	for i, s := range f.symbols {
		if s == symbol {
			return i, nil
		}
	}
	return -1, &Warning{Code: UnknownID, Message: symbol}
}

func (f *fakeDB) TermInfo(i int) TermInfo {
	t := f.terms[i]
	return TermInfo{ID: t.id, Namespace: t.ns, Description: "desc " + t.id, NamespaceRank: t.rank}
}

type fakeCursor struct {
	db  *fakeDB
	pos int
}

func (c *fakeCursor) Reset() { c.pos = 0 }

func (c *fakeCursor) Next() (Mapping, bool) {
	if c.pos >= len(c.db.terms) {
		return Mapping{}, false
	}
	m := Mapping{Term: c.pos, Entities: c.db.terms[c.pos].entities}
	c.pos++
	return m, true
}

func (c *fakeCursor) Seek(term int) error {
	if term < 0 || term >= len(c.db.terms) {
		return apperr.NotFoundf("term %d", term)
	}
	c.pos = term
	return nil
}

// tenEntities has e1..e10 carrying weights 1..10.
func tenEntities() (*fakeDB, []weights.Entry) {
	db := &fakeDB{}
	var entries []weights.Entry
	for i := 1; i <= 10; i++ {
		sym := fmt.Sprintf("e%d", i)
		db.symbols = append(db.symbols, sym)
		entries = append(entries, weights.Entry{Symbol: sym, Weight: float64(i), Line: i})
	}
	db.terms = []fakeTerm{
		{id: "T0", ns: "B", rank: 1, entities: []int{7, 8, 9}}, // 8+9+10
		{id: "T1", ns: "B", rank: 1, entities: []int{0, 1, 2}}, // 1+2+3
		{id: "T2", ns: "A", rank: 0, entities: []int{0, 1}},    // too small
		{id: "T3", ns: "A", rank: 0, entities: []int{6, 8, 9}}, // 7+9+10
		{id: "T4", ns: "B", rank: 1, entities: []int{9, 8, 7}}, // same as T0
		{id: "T5", ns: "A", rank: 0, entities: []int{3, 4, 5}},
	}
	return db, entries
}

func newLoadedSession(t *testing.T, opts Options) (*Session, *fakeDB) {
	t.Helper()
	db, entries := tenEntities()
	s, err := NewSession(opts, discardLogger())
	require.NoError(t, err)
	require.NoError(t, s.LoadWeights(entries, db, &fakeCursor{db: db}))
	_, err = s.ProcessWeights()
	require.NoError(t, err)
	return s, db
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"min term size", func(o *Options) { o.MinTermSize = 0 }},
		{"evalue", func(o *Options) { o.EvalueCutoff = 0 }},
		{"fisher without cutoff", func(o *Options) { o.Statistic = StatFisher }},
		{"bad rank", func(o *Options) { o.Weights.Cutoff = weights.CutoffRank }},
		{"tolerance", func(o *Options) { o.Solver.Tolerance = 0 }},
		{"iterations", func(o *Options) { o.Solver.MaxIterations = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			err := o.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrConfiguration))
		})
	}

	o := DefaultOptions()
	o.Statistic = StatFisher
	o.Weights.Cutoff = weights.CutoffRank
	o.Weights.RankCutoff = 5
	assert.NoError(t, o.Validate())
}

func TestParseStatistic(t *testing.T) {
	s, err := ParseStatistic("HGEM")
	require.NoError(t, err)
	assert.Equal(t, StatFisher, s)

	s, err = ParseStatistic("")
	require.NoError(t, err)
	assert.Equal(t, StatWSum, s)

	_, err = ParseStatistic("ks")
	assert.True(t, errors.Is(err, apperr.ErrConfiguration))
}

func TestLoadWeightsWarnings(t *testing.T) {
	db := &fakeDB{
		symbols: []string{"a", "b", "c", "orphan"},
		terms:   []fakeTerm{{id: "T", entities: []int{0, 1, 2}}},
	}
	entries := []weights.Entry{
		{Symbol: "a", Weight: 1, Line: 1},
		{Symbol: "zz", Weight: 2, Line: 2},
		{Symbol: "a", Weight: 3, Line: 3},
		{Symbol: "orphan", Weight: 4, Line: 4},
		{Symbol: "b", Weight: -1, Line: 5},
	}

	s, err := NewSession(DefaultOptions(), discardLogger())
	require.NoError(t, err)
	require.NoError(t, s.LoadWeights(entries, db, &fakeCursor{db: db}))

	c := s.Counts()
	assert.Equal(t, 5, c.RawWeights)
	assert.Equal(t, 2, c.ValidIDs)
	assert.Equal(t, 1, c.UnknownIDs)
	assert.Equal(t, 1, c.DuplicateIDs)
	assert.Equal(t, 4, c.Entities)
	assert.Equal(t, 2, c.UnusedEntities)

	dups := s.WarningsOf(DuplicateID)
	require.Len(t, dups, 1)
	assert.Equal(t, "Duplicate weight for a (line 3) - additional instance IGNORED.", dups[0].Message)
	assert.Equal(t, "zz", s.WarningsOf(UnknownID)[0].Message)

	v := s.Vector()
	assert.Equal(t, 1.0, v.Values[0], "first instance wins")
	assert.False(t, v.Used[3], "entity outside every term is not background")
	assert.Equal(t, "b", s.InputSymbol(1))

	assert.Error(t, s.LoadWeights(entries, db, &fakeCursor{db: db}))
}

func TestLoadWeightsUseAll(t *testing.T) {
	db := &fakeDB{
		symbols: []string{"a", "orphan"},
		terms:   []fakeTerm{{id: "T", entities: []int{0}}},
	}
	opts := DefaultOptions()
	opts.UseAllWeights = true
	s, err := NewSession(opts, discardLogger())
	require.NoError(t, err)
	require.NoError(t, s.LoadWeights([]weights.Entry{{Symbol: "orphan", Weight: 2, Line: 1}}, db, &fakeCursor{db: db}))
	assert.True(t, s.Vector().Used[1])
	assert.Equal(t, 1, s.Counts().ValidIDs)
}

func TestLoadWeightsRejectsNonFinite(t *testing.T) {
	db, entries := tenEntities()
	entries[9].Weight = math.NaN()
	opts := DefaultOptions()
	opts.UseAllWeights = true
	s, err := NewSession(opts, discardLogger())
	require.NoError(t, err)

	err = s.LoadWeights(entries, db, &fakeCursor{db: db})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
	assert.Contains(t, err.Error(), "line 10")

	_, err = s.ProcessWeights()
	assert.Error(t, err, "a rejected load leaves the session unloaded")
}

func TestRecordWarningCounts(t *testing.T) {
	s, err := NewSession(DefaultOptions(), discardLogger())
	require.NoError(t, err)
	for _, c := range []WarningCode{UnknownID, ResolvableConflict, UnresolvableConflict, DuplicateID, UnknownID} {
		s.RecordWarning(Warning{Code: c})
	}
	c := s.Counts()
	assert.Equal(t, 2, c.UnknownIDs)
	assert.Equal(t, 1, c.ResolvableIDs)
	assert.Equal(t, 1, c.ConflictingIDs)
	assert.Equal(t, 1, c.DuplicateIDs)
	assert.Len(t, s.Warnings(), 5)
}

func TestComputeAll(t *testing.T) {
	opts := DefaultOptions()
	opts.UseAllWeights = true
	opts.EvalueCutoff = 1.0
	s, db := newLoadedSession(t, opts)

	res, err := s.ComputeAll(&fakeCursor{db: db}, db)
	require.NoError(t, err)

	assert.Equal(t, 6, res.NumTerms)
	assert.Equal(t, 5, res.NumUsedTerms)
	assert.Equal(t, 5.0, res.EffectiveDBSize)
	assert.Equal(t, 1.0/5.0, res.PValueCutoff)

	ids := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.ID
		assert.Equal(t, h.PValue*res.EffectiveDBSize, h.EValue)
		assert.LessOrEqual(t, h.PValue, res.PValueCutoff)
	}
	// Namespace A sorts first; equal E-values keep insertion order.
	assert.Equal(t, []string{"T3", "T0", "T4"}, ids)

	assert.Equal(t, 27.0, res.Hits[1].Score)
	assert.Equal(t, 3, res.Hits[1].NumEntities)
	assert.Equal(t, res.Hits[1].PValue, res.Hits[2].PValue)
	assert.InDelta(t, 0.014, res.Hits[1].PValue, 0.002)
	assert.Less(t, res.Hits[1].PValue, res.Hits[0].PValue)
	assert.Equal(t, "desc T3", res.Hits[0].Description)

	assert.Positive(t, res.Solver.CacheHits)
	assert.Equal(t, 10, res.Counts.ValidIDs)
}

func TestComputeAllEffectiveDBSizeOverride(t *testing.T) {
	opts := DefaultOptions()
	opts.UseAllWeights = true
	opts.EvalueCutoff = 1.0
	opts.EffectiveDBSize = 100
	s, db := newLoadedSession(t, opts)

	res, err := s.ComputeAll(&fakeCursor{db: db}, db)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.EffectiveDBSize)
	assert.Equal(t, 0.01, res.PValueCutoff)
	for _, h := range res.Hits {
		assert.Equal(t, h.PValue*100, h.EValue)
	}
}

func TestComputeAllFisher(t *testing.T) {
	opts := DefaultOptions()
	opts.UseAllWeights = true
	// Cutoff 0.1 keeps T0 and T4 (1/120) but not T3 (22/120).
	opts.EvalueCutoff = 0.5
	opts.Statistic = StatFisher
	opts.Weights.Cutoff = weights.CutoffRank
	opts.Weights.RankCutoff = 3
	s, db := newLoadedSession(t, opts)
	assert.Equal(t, 3, s.Counts().NonzeroValidIDs)

	res, err := s.ComputeAll(&fakeCursor{db: db}, db)
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	for _, h := range res.Hits {
		assert.Equal(t, 3.0, h.Score)
		assert.InDelta(t, 1.0/120.0, h.PValue, 1e-12)
	}
	assert.Zero(t, res.Solver.Fits)
}

func TestComputeAllResourceError(t *testing.T) {
	opts := DefaultOptions()
	opts.UseAllWeights = true
	opts.EvalueCutoff = 1.0
	opts.Solver.MaxCacheItems = 1
	s, db := newLoadedSession(t, opts)

	res, err := s.ComputeAll(&fakeCursor{db: db}, db)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, apperr.ErrResource))
}

func TestComputeAllEmptyBackground(t *testing.T) {
	db, _ := tenEntities()
	s, err := NewSession(DefaultOptions(), discardLogger())
	require.NoError(t, err)
	require.NoError(t, s.LoadWeights(nil, db, &fakeCursor{db: db}))

	_, err = s.ComputeAll(&fakeCursor{db: db}, db)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConfiguration))
}

func TestComputeOne(t *testing.T) {
	opts := DefaultOptions()
	opts.UseAllWeights = true
	s, db := newLoadedSession(t, opts)

	res, err := s.ComputeOne(&fakeCursor{db: db}, db, 0)
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	h := res.Hits[0]
	assert.Equal(t, "T0", h.ID)
	assert.True(t, h.Scored())
	assert.InDelta(t, 0.014, h.PValue, 0.002)
	assert.Equal(t, h.PValue*res.EffectiveDBSize, h.EValue)

	require.Len(t, res.Members, 3)
	assert.Equal(t, "e10", res.Members[0].Symbol)
	assert.Equal(t, "e8", res.Members[2].Symbol)
}

func TestComputeOneUnscoredTerm(t *testing.T) {
	opts := DefaultOptions()
	opts.UseAllWeights = true
	s, db := newLoadedSession(t, opts)

	// T1 scores below the background mean: recorded although not significant.
	res, err := s.ComputeOne(&fakeCursor{db: db}, db, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Hits[0].PValue)

	res, err = s.ComputeOne(&fakeCursor{db: db}, db, 2)
	require.NoError(t, err)
	assert.Equal(t, -1.0, res.Hits[0].PValue)
	assert.False(t, res.Hits[0].Scored())
	assert.Equal(t, 2, res.Hits[0].NumEntities)

	_, err = s.ComputeOne(&fakeCursor{db: db}, db, 42)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestComputeOneMembersOrdering(t *testing.T) {
	db := &fakeDB{
		symbols: []string{"b", "a", "c", "d"},
		terms:   []fakeTerm{{id: "T", entities: []int{0, 1, 2, 3}}},
	}
	entries := []weights.Entry{
		{Symbol: "b", Weight: 2, Line: 1},
		{Symbol: "a", Weight: 2, Line: 2},
		{Symbol: "c", Weight: 5, Line: 3},
	}
	opts := DefaultOptions()
	opts.MinTermSize = 1
	s, err := NewSession(opts, discardLogger())
	require.NoError(t, err)
	require.NoError(t, s.LoadWeights(entries, db, &fakeCursor{db: db}))

	res, err := s.ComputeOne(&fakeCursor{db: db}, db, 0)
	require.NoError(t, err)
	var got []string
	for _, m := range res.Members {
		got = append(got, m.Symbol)
	}
	assert.Equal(t, []string{"c", "a", "b", "d"}, got)
	assert.False(t, res.Members[3].Used)
}
