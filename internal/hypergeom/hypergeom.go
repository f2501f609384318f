// Package hypergeom evaluates the one-sided tail of the hypergeometric
// distribution used by Fisher's exact enrichment test.
package hypergeom

import (
	"fmt"
	"math"

	"github.com/MikeSquared-Agency/SaddleSum/internal/apperr"
)

// Table holds log-factorials for a population of n entities, c of which
// are successes.
type Table struct {
	n, c    int
	logFact []float64
}

// New builds the log-factorial table for 0..n.
func New(n, c int) (*Table, error) {
	if n < 1 || c < 0 || c > n {
		return nil, apperr.Configf("hypergeometric population n=%d c=%d", n, c)
	}
	f := make([]float64, n+1)
	x := 0.0
	for i := 1; i <= n; i++ {
		x += math.Log(float64(i))
		f[i] = x
	}
	return &Table{n: n, c: c, logFact: f}, nil
}

func (t *Table) N() int { return t.n }
func (t *Table) C() int { return t.c }

// PValue is P(X >= s) for X the number of successes in a draw of m.
// Summation stops once the partial sum no longer changes.
func (t *Table) PValue(s, m int) (float64, error) {
	if m < 0 || m > t.n {
		return 0, fmt.Errorf("draw of %d from %d: %w", m, t.n, apperr.ErrInvalidInput)
	}
	F := t.logFact
	n, c := t.n, t.c
	negLogNCc := F[c] + F[n-c] - F[n]

	lo := max(s, m+c-n, 0)
	hi := min(c, m)

	pval := 0.0
	for i := lo; i <= hi; i++ {
		old := pval
		x := F[m] + F[n-m] - F[i] - F[m-i] - F[c-i] - F[n-m-c+i] + negLogNCc
		pval += math.Exp(x)
		if pval == old {
			break
		}
	}
	return math.Min(pval, 1.0), nil
}
