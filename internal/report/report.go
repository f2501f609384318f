// Package report renders enrichment results as fixed-width text, tab
// separated tables or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/MikeSquared-Agency/SaddleSum/internal/apperr"
	"github.com/MikeSquared-Agency/SaddleSum/internal/enrich"
	"github.com/MikeSquared-Agency/SaddleSum/internal/weights"
)

type Format int

const (
	FormatText Format = iota
	FormatTab
	FormatJSON
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text", "txt":
		return FormatText, nil
	case "tab":
		return FormatTab, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, apperr.Configf("unknown output format %q (want text, tab or json)", s)
}

var dashedLine = strings.Repeat("-", 89) + "\n"

// Options toggles the optional text sections.
type Options struct {
	Warnings   bool
	UnknownIDs bool
}

type layout struct {
	field     string
	heading   string
	hit       string
	member    string
	sep       string
	breakAt   int
	tableHead bool
}

var (
	textLayout = layout{
		field:     "%-48.48s %s\n",
		heading:   "\n**** %s ****\n",
		hit:       "%-15.15s %-40.40s %6.6s %12.12s %10.10s\n",
		member:    "%6.6s %-15.15s %-40.40s %12.12s\n",
		sep:       ", ",
		breakAt:   80,
		tableHead: true,
	}
	tabLayout = layout{
		field:   "%s\t%s\n",
		heading: "#\n# %s\n#\n",
		hit:     "%s\t%s\t%s\t%s\t%s\n",
		member:  "%s\t%s\t%s\t%s\n",
		sep:     ",",
		breakAt: 30000,
	}
)

// printer remembers the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

// WriteResults renders a full run. Tab output always includes the
// warning and unknown id sections.
func WriteResults(w io.Writer, f Format, dbName string, res *enrich.Result, o Options) error {
	if f == FormatJSON {
		return writeJSON(w, res)
	}
	p := &printer{w: w}
	l := textLayout
	if f == FormatTab {
		l = tabLayout
		o = Options{Warnings: true, UnknownIDs: true}
	} else {
		p.printf("%s               SADDLESUM RESULTS\n%s", dashedLine, dashedLine)
	}

	writeHeader(p, l, dbName, res)
	if o.Warnings {
		writeWarnings(p, l, res.Warnings)
	}
	if o.UnknownIDs {
		writeUnknownIDs(p, l, res.Warnings)
	}
	writeHits(p, l, res.Hits)
	if f == FormatText {
		p.printf("%s", dashedLine)
	}
	return p.err
}

func writeHeader(p *printer, l layout, dbName string, res *enrich.Result) {
	c := res.Counts
	p.printf(l.heading, "QUERY AND DATABASE SUMMARY")
	if dbName != "" {
		p.printf(l.field, "Database name", dbName)
	}
	rows := []struct {
		name  string
		value int
	}{
		{"Total database terms", res.NumTerms},
		{"Total database entities", c.Entities},
		{"Submitted weights", c.RawWeights},
		{"Valid submitted entity ids", c.ValidIDs},
		{"Minimum term size (weighted entities per term)", res.MinTermSize},
		{"Used database terms", res.NumUsedTerms},
		{"Non-zero weight entities", c.NonzeroValidIDs},
		{"Unknown submitted entity ids", c.UnknownIDs},
		{"Duplicate submitted entity ids", c.DuplicateIDs},
		{"Unresolvable (ignored) conflicting entity ids", c.ConflictingIDs},
		{"Resolvable (accepted) conflicting entity ids", c.ResolvableIDs},
		{"Entities without submitted weight", c.UnusedEntities},
	}
	for _, r := range rows {
		p.printf(l.field, r.name, fmt.Sprintf("%d", r.value))
	}
	p.printf(l.field, "E-value cutoff", fmt.Sprintf("%8.2e", res.EvalueCutoff))
	p.printf(l.field, "Effective database size", fmt.Sprintf("%8.2e", res.EffectiveDBSize))

	stat := "Lugannani-Rice (sum of weights)"
	if res.Statistic == enrich.StatFisher {
		stat = "One-sided Fisher's Exact test"
	}
	p.printf(l.field, "Statistics", stat)

	if res.Cutoff == weights.CutoffNone {
		p.printf(l.field, "Top-ranked weights selected", "All")
		p.printf(l.field, "Minimum weight selected", "N/A")
	} else {
		p.printf(l.field, "Top-ranked weights selected", fmt.Sprintf("%d", res.Weights.RankCutoff))
		p.printf(l.field, "Minimum weight selected", fmt.Sprintf("%.4f", res.Weights.WeightCutoff))
	}
	p.printf(l.field, "Discretized weights", yesNo(res.Discretized))
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func writeWarnings(p *printer, l layout, ws []enrich.Warning) {
	p.printf(l.heading, "NOMENCLATURE WARNINGS")
	for _, w := range ws {
		if w.Code != enrich.UnknownID {
			p.printf("%s\n", w.Message)
		}
	}
}

// writeUnknownIDs lists unknown symbols, wrapping lines at l.breakAt.
func writeUnknownIDs(p *printer, l layout, ws []enrich.Warning) {
	p.printf(l.heading, "UNKNOWN IDS")
	var b strings.Builder
	width := 0
	for _, w := range ws {
		if w.Code != enrich.UnknownID {
			continue
		}
		n := len(w.Message) + len(l.sep)
		if width > 0 && width+n > l.breakAt {
			b.WriteString("\n")
			width = 0
		}
		b.WriteString(w.Message)
		b.WriteString(l.sep)
		width += n
	}
	if b.Len() == 0 {
		return
	}
	p.printf("%s\n", strings.TrimSuffix(b.String(), l.sep))
}

func writeHits(p *printer, l layout, hits []enrich.TermHit) {
	ns := ""
	for i, h := range hits {
		if i == 0 || h.Namespace != ns {
			if i > 0 {
				p.printf("%s", dashedLine)
			}
			p.printf(l.heading, h.Namespace)
			if l.tableHead {
				p.printf(l.hit, "Term ID", "Name", "Associations", "Score", "E-value")
				p.printf("%s", dashedLine)
			}
		}
		ns = h.Namespace
		p.printf(l.hit, h.ID, h.Description,
			fmt.Sprintf("%d", h.NumEntities),
			fmt.Sprintf("%.4f", h.Score),
			fmt.Sprintf("%.2e", h.EValue))
	}
	if len(hits) > 0 {
		p.printf("%s", dashedLine)
	}
}

// WriteTerm renders a single-term result with its ranked entities.
func WriteTerm(w io.Writer, f Format, dbName string, res *enrich.Result) error {
	if f == FormatJSON {
		return writeJSON(w, res)
	}
	if len(res.Hits) == 0 {
		return nil
	}
	l := textLayout
	if f == FormatTab {
		l = tabLayout
	}
	p := &printer{w: w}
	h := res.Hits[0]

	var used, pos, neg, zero int
	for _, m := range res.Members {
		if !m.Used {
			continue
		}
		used++
		switch {
		case m.Weight > 0:
			pos++
		case m.Weight < 0:
			neg++
		default:
			zero++
		}
	}

	p.printf(l.heading, "TERM SUMMARY")
	if dbName != "" {
		p.printf(l.field, "Database name", dbName)
	}
	p.printf(l.field, "Term ID", h.ID)
	p.printf(l.field, "Term definition", h.Description)
	p.printf(l.field, "Namespace", h.Namespace)
	p.printf(l.field, "Total associations", fmt.Sprintf("%d", len(res.Members)))
	p.printf(l.field, "Weighted associations", fmt.Sprintf("%d", used))
	p.printf(l.field, "Positive-weighted associations", fmt.Sprintf("%d", pos))
	p.printf(l.field, "Negative-weighted associations", fmt.Sprintf("%d", neg))
	p.printf(l.field, "Zero-weighted associations", fmt.Sprintf("%d", zero))
	p.printf(l.field, "Score", fmt.Sprintf("%.4f", h.Score))
	p.printf(l.field, "P-value", sci(h.PValue))
	p.printf(l.field, "E-value", sci(h.EValue))

	p.printf(l.heading, "ENTITIES")
	for i, m := range res.Members {
		wt := "None"
		if m.Used {
			wt = fmt.Sprintf("%.4f", m.Weight)
		}
		p.printf(l.member, fmt.Sprintf("%d.", i+1), m.Symbol, "", wt)
	}
	return p.err
}

func sci(v float64) string {
	if v < 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.4e", v)
}

func writeJSON(w io.Writer, res *enrich.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
