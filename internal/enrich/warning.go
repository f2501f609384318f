package enrich

import "fmt"

type WarningCode int

const (
	UnknownID WarningCode = iota
	ResolvableConflict
	UnresolvableConflict
	DuplicateID
)

func (c WarningCode) String() string {
	switch c {
	case UnknownID:
		return "unknown_id"
	case ResolvableConflict:
		return "resolvable_conflict"
	case UnresolvableConflict:
		return "unresolvable_conflict"
	case DuplicateID:
		return "duplicate_id"
	}
	return fmt.Sprintf("warning(%d)", int(c))
}

func (c WarningCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *WarningCode) UnmarshalText(b []byte) error {
	for _, code := range []WarningCode{UnknownID, ResolvableConflict, UnresolvableConflict, DuplicateID} {
		if code.String() == string(b) {
			*c = code
			return nil
		}
	}
	return fmt.Errorf("unknown warning code %q", b)
}

// Warning is a nomenclature problem found while loading weights.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

// Counts tallies the outcome of loading a weight list.
type Counts struct {
	Entities        int `json:"entities"`
	RawWeights      int `json:"raw_weights"`
	ValidIDs        int `json:"valid_ids"`
	NonzeroValidIDs int `json:"nonzero_valid_ids"`
	UnknownIDs      int `json:"unknown_ids"`
	DuplicateIDs    int `json:"duplicate_ids"`
	ConflictingIDs  int `json:"conflicting_ids"`
	ResolvableIDs   int `json:"resolvable_ids"`
	UnusedEntities  int `json:"unused_entities"`
}

// RecordWarning appends w and updates its counter.
func (s *Session) RecordWarning(w Warning) {
	s.warnings = append(s.warnings, w)
	switch w.Code {
	case UnknownID:
		s.counts.UnknownIDs++
	case UnresolvableConflict:
		s.counts.ConflictingIDs++
	case DuplicateID:
		s.counts.DuplicateIDs++
	case ResolvableConflict:
		s.counts.ResolvableIDs++
	}
}

func (s *Session) Warnings() []Warning { return s.warnings }

// WarningsOf returns the recorded warnings with the given code.
func (s *Session) WarningsOf(code WarningCode) []Warning {
	var out []Warning
	for _, w := range s.warnings {
		if w.Code == code {
			out = append(out, w)
		}
	}
	return out
}
