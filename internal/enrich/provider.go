package enrich

// Mapping is one term and the entities annotated with it.
type Mapping struct {
	Term     int
	Entities []int
}

// MappingProvider iterates term mappings. Every full scan after Reset must
// yield each term exactly once.
type MappingProvider interface {
	Reset()
	Next() (Mapping, bool)
	// Seek positions the cursor so that the following Next returns term.
	Seek(term int) error
}

// TermInfo is the metadata attached to a hit after scoring.
type TermInfo struct {
	ID            string `json:"id"`
	Namespace     string `json:"namespace"`
	Description   string `json:"description"`
	NamespaceRank int    `json:"-"`
}

type MetadataProvider interface {
	NumTerms() int
	TermInfo(term int) TermInfo
}

// EntityResolver maps input symbols onto dense entity indices. A non-nil
// warning with code other than ResolvableConflict means the symbol did not
// resolve.
type EntityResolver interface {
	NumEntities() int
	Resolve(symbol string) (int, *Warning)
	Symbol(entity int) string
}
