package hypergeom

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/SaddleSum/internal/apperr"
)

func binom(n, k int) float64 {
	r := 1.0
	for i := 1; i <= k; i++ {
		r = r * float64(n-k+i) / float64(i)
	}
	return r
}

func TestPValueSmallCase(t *testing.T) {
	tab, err := New(20, 5)
	require.NoError(t, err)

	want := 0.0
	for i := 3; i <= 5; i++ {
		want += binom(5, i) * binom(15, 8-i)
	}
	want /= binom(20, 8)

	got, err := tab.PValue(3, 8)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-12)
	assert.InDelta(t, 37310.0/125970.0, got, 1e-12)
}

func TestPValueEdges(t *testing.T) {
	tab, err := New(20, 5)
	require.NoError(t, err)

	tests := []struct {
		name string
		s, m int
		want float64
	}{
		{"zero successes is certain", 0, 8, 1},
		{"more than c successes", 6, 8, 0},
		{"more successes than draws", 4, 3, 0},
		{"all successes in full draw", 5, 20, 1},
		{"single success", 1, 1, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tab.PValue(tt.s, tt.m)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestPValueLowerLimitClamped(t *testing.T) {
	// With n=10, c=8 and m=5 at least 3 successes are forced.
	tab, err := New(10, 8)
	require.NoError(t, err)
	got, err := tab.PValue(0, 5)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-12)
}

func TestPValueMonotone(t *testing.T) {
	tab, err := New(200, 30)
	require.NoError(t, err)
	prev := 1.0
	for s := 0; s <= 30; s++ {
		p, err := tab.PValue(s, 40)
		require.NoError(t, err)
		assert.LessOrEqual(t, p, prev+1e-15)
		prev = p
	}
}

func TestNewInvalid(t *testing.T) {
	for _, tc := range [][2]int{{0, 0}, {5, 6}, {5, -1}} {
		_, err := New(tc[0], tc[1])
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperr.ErrConfiguration))
	}

	tab, err := New(5, 2)
	require.NoError(t, err)
	_, err = tab.PValue(1, 6)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}
