// Package saddlesum computes tail probabilities for sums of weights drawn
// from an empirical background, using the Lugannani-Rice saddlepoint
// approximation.
//
// Reference: A. Stojmirovic and Y-K Yu. Robust and accurate data enrichment
// statistics via distribution function of sum of weights. Bioinformatics,
// 26(21):2752-2759, 2010.
package saddlesum

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	DefaultMaxIterations = 50
	DefaultTolerance     = 1.0e-11
	DefaultMaxCacheItems = 4096

	// maxDoublings bounds the search for an upper lambda bracket.
	maxDoublings = 64
)

var sqrt2OverPi = math.Sqrt(2 / math.Pi)

// Options tunes the root search.
type Options struct {
	MaxIterations int
	Tolerance     float64
	MaxCacheItems int
}

// DefaultOptions returns the iteration limits used by the command line tool.
func DefaultOptions() Options {
	return Options{
		MaxIterations: DefaultMaxIterations,
		Tolerance:     DefaultTolerance,
		MaxCacheItems: DefaultMaxCacheItems,
	}
}

// Stats counts solver work across queries.
type Stats struct {
	Queries      int `json:"queries"`
	Fits         int `json:"fits"`
	CacheHits    int `json:"cache_hits"`
	EarlyRejects int `json:"early_rejects"`
}

// Solver evaluates p-values against one background. It mutates its cache on
// every query and must not be shared between goroutines.
type Solver struct {
	bg    *Background
	cache *Cache
	opts  Options
	stats Stats
}

// NewSolver binds a fresh cache to bg.
func NewSolver(bg *Background, opts Options) *Solver {
	if opts.MaxIterations < 0 {
		opts.MaxIterations = 0
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	return &Solver{
		bg:    bg,
		cache: NewCache(opts.MaxCacheItems),
		opts:  opts,
	}
}

func (s *Solver) Background() *Background { return s.bg }
func (s *Solver) Cache() *Cache           { return s.cache }
func (s *Solver) Stats() Stats            { return s.stats }

// Fit computes the tilted-distribution quantities at lambda. The largest
// weight is factored out of every exponential, and lambda is assumed to be
// positive: the sign of D is fixed rather than taken from lambda.
func (s *Solver) Fit(lambda float64) Item {
	s.stats.Fits++
	w := s.bg.weights
	wmax := s.bg.max
	n := float64(len(w))

	var nrho, nrho1, nrho2 float64
	for _, x := range w {
		t := math.Exp(lambda * (x - wmax))
		nrho += t
		t *= x
		nrho1 += t
		t *= x
		nrho2 += t
	}
	d1k := nrho1 / nrho
	d2k := nrho2/nrho - d1k*d1k
	// h is a divergence; rounding near lambda=0 can push it below zero.
	h := math.Max(0, lambda*(d1k-wmax)-math.Log(nrho)+math.Log(n))

	return Item{
		Mean:   d1k,
		Lambda: lambda,
		D2K:    d2k,
		ExpH:   nrho * math.Exp(lambda*(wmax-d1k)) / n,
		C:      2 * lambda * math.Sqrt(d2k),
		D:      -math.Sqrt2 * math.Sqrt(h),
	}
}

// TailPValue is the Lugannani-Rice estimate of P(mean of m draws >= it.Mean),
// capped at the Chernoff bound ExpH^m. The cap matters near the background
// maximum, where the tilted variance vanishes and the phi/C term diverges.
// Estimates too close to the background mean are reported as 1, and a
// degenerate fit yields NaN.
func TailPValue(it Item, m int) float64 {
	sqrtm := math.Sqrt(float64(m))
	if it.D*sqrtm > -1.0 {
		return 1.0
	}
	if !(it.C > 0) {
		return math.NaN()
	}
	chernoff := math.Pow(it.ExpH, float64(m))
	phi := sqrt2OverPi * chernoff
	lr := distuv.UnitNormal.CDF(it.D*sqrtm) + phi/it.C/sqrtm + phi/it.D/sqrtm/2
	return math.Min(lr, chernoff)
}

// MinPValue is the smallest p-value a background of size n can support for
// numHits draws.
func MinPValue(n, numHits int) float64 {
	return math.Pow(1.0/float64(n), float64(numHits))
}

// PValue returns the probability that numHits background weights sum to at
// least score. Once an intermediate estimate exceeds cutoff the search stops
// early: the true p-value is at least as large, so the term cannot pass.
func (s *Solver) PValue(score float64, numHits int, cutoff float64) (float64, error) {
	s.stats.Queries++
	if numHits < 1 {
		return 1.0, nil
	}
	x := score / float64(numHits)
	if x <= s.bg.mean {
		return 1.0, nil
	}

	tol := s.opts.Tolerance
	maxIter := s.opts.MaxIterations
	if x > s.bg.max+tol {
		return MinPValue(s.bg.Len(), numHits), nil
	}

	// Every draw sits at the maximum with probability (atMax/N)^m, so that
	// is a floor for any x up to the maximum. Above (m-1)*max + next no
	// other combination reaches the score and the floor is the exact tail.
	m := float64(numHits)
	floor := math.Pow(float64(s.bg.NumAtMax())/float64(s.bg.Len()), m)
	if x >= s.bg.max-tol || score > (m-1)*s.bg.max+s.bg.next {
		return floor, nil
	}

	i := s.cache.Locate(x)
	if it, ok := s.converged(i, x); ok {
		s.stats.CacheHits++
		return clampPValue(TailPValue(it, numHits), floor), nil
	}

	ya, yb, yc := 0.0, -1.0, 0.0
	pval := 1.0
	if i > 0 {
		ya = s.cache.At(i - 1).Lambda
	}
	if i < s.cache.Len() {
		it := s.cache.At(i)
		yb = it.Lambda
		yc = 0.5 * (ya + yb)
		pval = TailPValue(it, numHits)
		if pval > cutoff || yb-ya < tol {
			if pval > cutoff {
				s.stats.EarlyRejects++
			}
			maxIter = 0
		}
	} else {
		if err := s.bracketAbove(); err != nil {
			return 0, err
		}
		i = s.cache.Locate(x)
		if it, ok := s.converged(i, x); ok {
			s.stats.CacheHits++
			return clampPValue(TailPValue(it, numHits), floor), nil
		}
		if i > 0 {
			ya = s.cache.At(i - 1).Lambda
		}
		if i < s.cache.Len() {
			yb = s.cache.At(i).Lambda
		} else {
			yb = s.cache.At(s.cache.Len() - 1).Lambda
		}
		yc = 0.5 * (ya + yb)
	}

	for iter := 0; iter < maxIter; iter++ {
		it := s.Fit(yc)
		pval = TailPValue(it, numHits)

		diff := it.Mean - x
		if diff < 0 {
			ya = yc
		} else {
			yb = yc
			if pval > cutoff {
				// it.Mean > x, so pval underestimates the true value.
				s.stats.EarlyRejects++
				if err := s.cache.Insert(it); err != nil {
					return 0, err
				}
				break
			}
		}

		y := yc - diff/it.D2K
		if y < ya || y > yb {
			y = 0.5 * (ya + yb)
		}

		if err := s.cache.Insert(it); err != nil {
			return 0, err
		}
		if math.Abs(y-yc) < tol || math.Abs(diff) < tol || isConverged(it, x, tol) {
			break
		}
		yc = y
	}

	return clampPValue(pval, floor), nil
}

// bracketAbove doubles lambda from 1 until the tilted mean reaches the
// background maximum, caching every trial.
func (s *Solver) bracketAbove() error {
	y := 0.5
	for k := 0; k < maxDoublings; k++ {
		y *= 2.0
		it := s.Fit(y)
		if err := s.cache.Insert(it); err != nil {
			return fmt.Errorf("bracket lambda: %w", err)
		}
		if math.Abs(it.Mean-s.bg.max) < s.opts.Tolerance {
			break
		}
	}
	return nil
}

// converged looks for a cached fit on either side of x that already meets
// the Newton termination test.
func (s *Solver) converged(i int, x float64) (Item, bool) {
	if i < s.cache.Len() {
		if it := s.cache.At(i); isConverged(it, x, s.opts.Tolerance) {
			return it, true
		}
	}
	if i > 0 {
		if it := s.cache.At(i - 1); isConverged(it, x, s.opts.Tolerance) {
			return it, true
		}
	}
	return Item{}, false
}

func isConverged(it Item, x, tol float64) bool {
	diff := it.Mean - x
	return math.Abs(diff) < tol || math.Abs(diff/it.D2K) < tol
}

// clampPValue bounds p to [minPval, 1]. A NaN estimate is degenerate and
// reported as 1.
func clampPValue(p, minPval float64) float64 {
	switch {
	case math.IsNaN(p), p > 1.0:
		return 1.0
	case p < minPval:
		return minPval
	}
	return p
}
