package saddlesum

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/MikeSquared-Agency/SaddleSum/internal/apperr"
)

// Background is the immutable weight distribution a term score is judged
// against. Weights are held sorted ascending so that fits sum from the
// smallest to the largest term.
type Background struct {
	weights []float64
	mean    float64
	max     float64
	next    float64
	atMax   int
}

// NewBackground copies and sorts weights. An empty input is a configuration
// error and a non-finite weight is invalid input.
func NewBackground(weights []float64) (*Background, error) {
	if len(weights) == 0 {
		return nil, apperr.Configf("background distribution is empty")
	}
	for _, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: background weight %v is not finite", apperr.ErrInvalidInput, w)
		}
	}
	sorted := slices.Clone(weights)
	mean := stat.Mean(sorted, nil)
	slices.Sort(sorted)
	top := sorted[len(sorted)-1]
	atMax := len(sorted) - sort.SearchFloat64s(sorted, top)
	next := top
	if atMax < len(sorted) {
		next = sorted[len(sorted)-atMax-1]
	}
	return &Background{
		weights: sorted,
		mean:    mean,
		max:     top,
		next:    next,
		atMax:   atMax,
	}, nil
}

func (b *Background) Len() int      { return len(b.weights) }
func (b *Background) Mean() float64 { return b.mean }
func (b *Background) Max() float64  { return b.max }

// NextBelowMax is the largest weight smaller than the maximum, or the
// maximum itself when all weights are equal.
func (b *Background) NextBelowMax() float64 { return b.next }

// NumAtMax counts weights equal to the maximum.
func (b *Background) NumAtMax() int { return b.atMax }

// Weights returns the sorted background. Callers must not modify it.
func (b *Background) Weights() []float64 { return b.weights }
