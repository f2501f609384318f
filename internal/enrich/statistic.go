package enrich

import (
	"strings"

	"github.com/MikeSquared-Agency/SaddleSum/internal/apperr"
)

// Statistic selects how a term's score is turned into a p-value.
type Statistic int

const (
	// StatWSum is the saddlepoint tail of the sum of weights.
	StatWSum Statistic = iota
	// StatFisher is the one-sided hypergeometric test on positive weights.
	StatFisher
)

func (s Statistic) String() string {
	switch s {
	case StatFisher:
		return "hgem"
	default:
		return "wsum"
	}
}

// Label is the human readable name used in reports.
func (s Statistic) Label() string {
	switch s {
	case StatFisher:
		return "Fisher's Exact Test"
	default:
		return "SaddleSum"
	}
}

// ParseStatistic accepts "wsum" or "hgem".
func ParseStatistic(s string) (Statistic, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "wsum":
		return StatWSum, nil
	case "hgem":
		return StatFisher, nil
	}
	return StatWSum, apperr.Configf("unknown statistic %q (want wsum or hgem)", s)
}

func (s Statistic) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Statistic) UnmarshalText(b []byte) error {
	v, err := ParseStatistic(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
