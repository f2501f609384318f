// Package termdb is an in-memory term database: entities, terms grouped by
// namespace, and the term to entity mappings scanned by enrichment runs.
package termdb

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/SaddleSum/internal/apperr"
	"github.com/MikeSquared-Agency/SaddleSum/internal/enrich"
)

// Term is one annotation with its distinct entities.
type Term struct {
	ID          string
	Description string
	Namespace   int
	Entities    []int
}

// NamespaceInfo summarizes one namespace.
type NamespaceInfo struct {
	Name     string `json:"name"`
	NumTerms int    `json:"num_terms"`
}

// Info summarizes a database.
type Info struct {
	Name        string          `json:"name"`
	NumTerms    int             `json:"num_terms"`
	NumEntities int             `json:"num_entities"`
	Namespaces  []NamespaceInfo `json:"namespaces"`
}

type Database struct {
	name string

	namespaces []string
	nsIndex    map[string]int

	terms     []Term
	termIndex map[string]int

	entities    []string
	entityIndex map[string]int
	aliases     map[string][]int
}

func New(name string) *Database {
	return &Database{
		name:        name,
		nsIndex:     make(map[string]int),
		termIndex:   make(map[string]int),
		entityIndex: make(map[string]int),
		aliases:     make(map[string][]int),
	}
}

func (d *Database) Name() string     { return d.name }
func (d *Database) NumTerms() int    { return len(d.terms) }
func (d *Database) NumEntities() int { return len(d.entities) }

// Namespaces lists namespaces in the order they were first seen.
func (d *Database) Namespaces() []string { return d.namespaces }

func (d *Database) Term(i int) Term { return d.terms[i] }

// TermIndex looks a term up by its identifier.
func (d *Database) TermIndex(id string) (int, bool) {
	i, ok := d.termIndex[id]
	return i, ok
}

func (d *Database) Symbol(entity int) string {
	if entity < 0 || entity >= len(d.entities) {
		return ""
	}
	return d.entities[entity]
}

// AddNamespace registers ns if needed and returns its rank.
func (d *Database) AddNamespace(ns string) int {
	if i, ok := d.nsIndex[ns]; ok {
		return i
	}
	i := len(d.namespaces)
	d.namespaces = append(d.namespaces, ns)
	d.nsIndex[ns] = i
	return i
}

// AddEntity registers symbol if needed and returns its index.
func (d *Database) AddEntity(symbol string) int {
	if i, ok := d.entityIndex[symbol]; ok {
		return i
	}
	i := len(d.entities)
	d.entities = append(d.entities, symbol)
	d.entityIndex[symbol] = i
	return i
}

// AddTerm adds a term. It reports false, leaving the database unchanged,
// when the identifier is already present. Repeated symbols are kept once.
func (d *Database) AddTerm(namespace, id, description string, symbols []string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("empty term id: %w", apperr.ErrInvalidInput)
	}
	for i, s := range symbols {
		if s == "" {
			return false, fmt.Errorf("term %s: empty entity field #%d: %w", id, i+1, apperr.ErrInvalidInput)
		}
	}
	if _, ok := d.termIndex[id]; ok {
		return false, nil
	}

	t := Term{
		ID:          id,
		Description: description,
		Namespace:   d.AddNamespace(namespace),
		Entities:    make([]int, 0, len(symbols)),
	}
	seen := make(map[int]struct{}, len(symbols))
	for _, s := range symbols {
		e := d.AddEntity(s)
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		t.Entities = append(t.Entities, e)
	}
	d.termIndex[id] = len(d.terms)
	d.terms = append(d.terms, t)
	return true, nil
}

// AddAlias makes alias a synonym for symbol, registering symbol as an
// entity if it is new.
func (d *Database) AddAlias(alias, symbol string) {
	if alias == "" || alias == symbol {
		return
	}
	e := d.AddEntity(symbol)
	for _, x := range d.aliases[alias] {
		if x == e {
			return
		}
	}
	d.aliases[alias] = append(d.aliases[alias], e)
}

// Aliases returns alias to entity symbol pairs.
func (d *Database) Aliases() map[string][]string {
	out := make(map[string][]string, len(d.aliases))
	for a, es := range d.aliases {
		for _, e := range es {
			out[a] = append(out[a], d.entities[e])
		}
	}
	return out
}

// Resolve maps a symbol onto an entity. Primary symbols win over aliases;
// an alias shared by several entities does not resolve.
func (d *Database) Resolve(symbol string) (int, *enrich.Warning) {
	alt := d.aliases[symbol]
	if i, ok := d.entityIndex[symbol]; ok {
		var others []string
		for _, e := range alt {
			if e != i {
				others = append(others, d.entities[e])
			}
		}
		if len(others) == 0 {
			return i, nil
		}
		return i, &enrich.Warning{
			Code:    enrich.ResolvableConflict,
			Message: fmt.Sprintf("Identifier %s is also a synonym for %s.", symbol, joinList(others)),
		}
	}

	switch len(alt) {
	case 0:
		return -1, &enrich.Warning{Code: enrich.UnknownID, Message: symbol}
	case 1:
		return alt[0], nil
	}
	names := make([]string, len(alt))
	for k, e := range alt {
		names[k] = d.entities[e]
	}
	return -1, &enrich.Warning{
		Code:    enrich.UnresolvableConflict,
		Message: fmt.Sprintf("%s is not a primary identifier for any entity while being an alias for %s.", symbol, joinList(names)),
	}
}

// joinList renders "a", "a and b", "a, b and c".
func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

func (d *Database) TermInfo(i int) enrich.TermInfo {
	t := d.terms[i]
	return enrich.TermInfo{
		ID:            t.ID,
		Namespace:     d.namespaces[t.Namespace],
		Description:   t.Description,
		NamespaceRank: t.Namespace,
	}
}

func (d *Database) Info() Info {
	info := Info{
		Name:        d.name,
		NumTerms:    len(d.terms),
		NumEntities: len(d.entities),
		Namespaces:  make([]NamespaceInfo, len(d.namespaces)),
	}
	for i, ns := range d.namespaces {
		info.Namespaces[i].Name = ns
	}
	for _, t := range d.terms {
		info.Namespaces[t.Namespace].NumTerms++
	}
	return info
}

// Mappings returns a fresh cursor over the term mappings.
func (d *Database) Mappings() *Cursor {
	return &Cursor{db: d}
}

// Cursor iterates term mappings in insertion order. Cursors are independent
// of each other.
type Cursor struct {
	db  *Database
	pos int
}

func (c *Cursor) Reset() { c.pos = 0 }

func (c *Cursor) Next() (enrich.Mapping, bool) {
	if c.pos >= len(c.db.terms) {
		return enrich.Mapping{}, false
	}
	m := enrich.Mapping{Term: c.pos, Entities: c.db.terms[c.pos].Entities}
	c.pos++
	return m, true
}

func (c *Cursor) Seek(term int) error {
	if term < 0 || term >= len(c.db.terms) {
		return apperr.NotFoundf("term index %d", term)
	}
	c.pos = term
	return nil
}

var (
	_ enrich.MappingProvider  = (*Cursor)(nil)
	_ enrich.MetadataProvider = (*Database)(nil)
	_ enrich.EntityResolver   = (*Database)(nil)
)
