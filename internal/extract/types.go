// Package extract turns snapshots of scraped HTML tables into normalized
// records. It never fails on odd table shapes; anything unrecognized
// degrades to positionally labeled records.
package extract

import "fmt"

// CellKind distinguishes header cells from data cells.
type CellKind int

const (
	CellData CellKind = iota
	CellHeader
)

// Cell is one table cell as captured from the page.
type Cell struct {
	Kind CellKind
	// Wrapper is the text of the inner content wrapper, when the site
	// renders one inside the cell.
	Wrapper string
	// Text is the cell's own rendered text.
	Text string
	// Markup is the raw inner HTML, kept as a last resort.
	Markup string
}

// Resolve picks the cell's value: wrapper text, then direct text, then raw
// markup. The second return reports whether the lossy markup fallback fired.
func (c Cell) Resolve() (string, bool) {
	if c.Wrapper != "" {
		return c.Wrapper, false
	}
	if c.Text != "" {
		return c.Text, false
	}
	return c.Markup, c.Markup != ""
}

// Row is an ordered sequence of cells.
type Row struct {
	Cells []Cell
}

// TableSnapshot is a captured table: caption plus rows in document order
// (header-section rows first when the table is sectioned).
type TableSnapshot struct {
	Caption string
	Rows    []Row
}

// TableShape is the classification a snapshot resolves to, computed once and
// dispatched explicitly.
type TableShape int

const (
	// ShapeSingleRecord is a header row followed by exactly matching data
	// row: one record.
	ShapeSingleRecord TableShape = iota
	// ShapeMultiRecord is a header row followed by one record per data row.
	ShapeMultiRecord
	// ShapePositional is everything else: records labeled col_0, col_1, ...
	ShapePositional
)

func (s TableShape) String() string {
	switch s {
	case ShapeSingleRecord:
		return "single-record"
	case ShapeMultiRecord:
		return "multi-record"
	default:
		return "positional"
	}
}

// Record maps a column label to the cell text.
type Record map[string]string

// Section is one labeled part of an extraction: either tabular records or a
// plain list of items (party lists).
type Section struct {
	Label   string   `json:"label"`
	Columns []string `json:"columns,omitempty"`
	Records []Record `json:"records,omitempty"`
	Items   []string `json:"items,omitempty"`
}

// RecordSet is the result of one extraction call. Degraded flags that at
// least one value came from the raw-markup fallback and may contain
// unrendered markup.
type RecordSet struct {
	Sections []Section `json:"sections"`
	Degraded bool      `json:"degraded,omitempty"`
}

// Section finds a section by label.
func (rs *RecordSet) Section(label string) (Section, bool) {
	for _, s := range rs.Sections {
		if s.Label == label {
			return s, true
		}
	}
	return Section{}, false
}

// PositionalLabel is the fallback column key for cell index i when a row
// cannot be matched to the table header.
func PositionalLabel(i int) string {
	return fmt.Sprintf("col_%d", i)
}
