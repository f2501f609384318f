package weights

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/SaddleSum/internal/apperr"
)

// Entry is one line of a weights file.
type Entry struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"`
	Line   int     `json:"-"`
}

// CheckFinite rejects NaN and infinite weights.
func (e Entry) CheckFinite() error {
	if math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) {
		return fmt.Errorf("%w: weight for %s is not a finite number (line %d)", apperr.ErrInvalidInput, e.Symbol, e.Line)
	}
	return nil
}

// ReadEntries parses whitespace separated "symbol weight" lines. Blank lines
// are skipped; anything else that does not have exactly two fields or whose
// second field is not a finite number is rejected with its line number.
func ReadEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: invalid weight file format (line %d): expected 2 fields, got %d",
				apperr.ErrInvalidInput, line, len(fields))
		}
		w, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid weight %s (line %d)", apperr.ErrInvalidInput, fields[1], line)
		}
		e := Entry{Symbol: fields[0], Weight: w, Line: line}
		if err := e.CheckFinite(); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read weights: %w", err)
	}
	return entries, nil
}
