package weights

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MikeSquared-Agency/SaddleSum/internal/apperr"
)

// Transform is applied to every weight before any cutoff.
type Transform int

const (
	TransformNone Transform = iota
	TransformFlip
	TransformAbs
)

func (t Transform) String() string {
	switch t {
	case TransformFlip:
		return "flip"
	case TransformAbs:
		return "abs"
	default:
		return ""
	}
}

// ParseTransform accepts "", "none", "flip" and "abs".
func ParseTransform(s string) (Transform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return TransformNone, nil
	case "flip":
		return TransformFlip, nil
	case "abs":
		return TransformAbs, nil
	}
	return TransformNone, apperr.Configf("unknown weight transform %q", s)
}

// CutoffKind selects how low weights are zeroed.
type CutoffKind int

const (
	CutoffNone CutoffKind = iota
	CutoffRank
	CutoffValue
)

func (k CutoffKind) String() string {
	switch k {
	case CutoffRank:
		return "rank"
	case CutoffValue:
		return "value"
	default:
		return "none"
	}
}

func (k CutoffKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *CutoffKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "", "none":
		*k = CutoffNone
	case "rank":
		*k = CutoffRank
	case "value":
		*k = CutoffValue
	default:
		return apperr.Configf("unknown cutoff kind %q", string(b))
	}
	return nil
}

// Options configures the processing pipeline.
type Options struct {
	Transform    Transform
	Cutoff       CutoffKind
	RankCutoff   int
	WeightCutoff float64
	Discretize   bool
}

// NewCutoff builds the cutoff part of Options from the two mutually exclusive
// caller inputs. A rank of zero and a nil value mean "not requested".
func NewCutoff(rank int, value *float64) (CutoffKind, error) {
	switch {
	case rank != 0 && value != nil:
		return CutoffNone, apperr.Configf("cannot specify both a rank cutoff and a weight cutoff")
	case rank != 0:
		return CutoffRank, nil
	case value != nil:
		return CutoffValue, nil
	}
	return CutoffNone, nil
}

// Validate checks the options before they reach Process.
func (o Options) Validate() error {
	switch o.Cutoff {
	case CutoffNone:
	case CutoffRank:
		if o.RankCutoff < 1 {
			return apperr.Configf("rank cutoff must be at least 1, got %d", o.RankCutoff)
		}
	case CutoffValue:
		if o.WeightCutoff < 0 {
			return apperr.Configf("weight cutoff must be non-negative, got %f", o.WeightCutoff)
		}
	default:
		return apperr.Configf("unknown cutoff kind %d", o.Cutoff)
	}
	if o.Transform < TransformNone || o.Transform > TransformAbs {
		return apperr.Configf("unknown weight transform %d", o.Transform)
	}
	return nil
}

// Vector is an entity-indexed weight vector with its parallel used flags.
// Unused entities keep a zero weight.
type Vector struct {
	Values []float64
	Used   []bool
}

// NewVector allocates a zeroed vector for n entities.
func NewVector(n int) Vector {
	return Vector{Values: make([]float64, n), Used: make([]bool, n)}
}

func (v Vector) Len() int { return len(v.Values) }

// NumUsed counts entities flagged as used.
func (v Vector) NumUsed() int {
	n := 0
	for _, u := range v.Used {
		if u {
			n++
		}
	}
	return n
}

// UsedValues copies the weights of used entities in entity order.
func (v Vector) UsedValues() []float64 {
	out := make([]float64, 0, len(v.Values))
	for i, u := range v.Used {
		if u {
			out = append(out, v.Values[i])
		}
	}
	return out
}

// Summary reports what Process did.
type Summary struct {
	// RankCutoff is the number of used weights at or above WeightCutoff
	// after a cutoff was applied.
	RankCutoff   int     `json:"rank_cutoff"`
	WeightCutoff float64 `json:"weight_cutoff"`
	NumNonzero   int     `json:"num_nonzero"`
}

// Process applies transform, cutoff and discretization in that order,
// mutating v in place.
func Process(v *Vector, o Options) Summary {
	s := Summary{RankCutoff: o.RankCutoff, WeightCutoff: o.WeightCutoff}

	switch o.Transform {
	case TransformFlip:
		for i := range v.Values {
			v.Values[i] = -v.Values[i]
		}
	case TransformAbs:
		for i, w := range v.Values {
			if w < 0 {
				v.Values[i] = -w
			}
		}
	}

	// Every weight at or above the threshold survives, so ties with the
	// K-th value are kept.
	if o.Cutoff == CutoffRank {
		used := v.UsedValues()
		if len(used) > 0 {
			sort.Sort(sort.Reverse(sort.Float64Slice(used)))
			k := o.RankCutoff
			if k > len(used) {
				k = len(used)
			}
			s.WeightCutoff = used[k-1]
		}
	}
	if o.Cutoff != CutoffNone {
		kept := 0
		for i, u := range v.Used {
			if !u {
				continue
			}
			if v.Values[i] < s.WeightCutoff {
				v.Values[i] = 0
			} else {
				kept++
			}
		}
		s.RankCutoff = kept
	}

	if o.Discretize {
		for i := range v.Values {
			if v.Used[i] && v.Values[i] > 0 {
				v.Values[i] = 1
			} else {
				v.Values[i] = 0
			}
		}
	}

	for i, u := range v.Used {
		if u && v.Values[i] != 0 {
			s.NumNonzero++
		}
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("rank_cutoff=%d weight_cutoff=%.4f nonzero=%d", s.RankCutoff, s.WeightCutoff, s.NumNonzero)
}
