package model

import "slices"

// Role tags where a source table came from.
type Role string

const (
	RoleMain       Role = "main"
	RoleRankings   Role = "rankings"
	RoleCompetitor Role = "competitor"
)

// Source describes one ranking source merged into a universe. Fields lists
// which ranking columns the source actually provided.
type Source struct {
	Slug   string   `json:"slug"`
	Name   string   `json:"name"`
	Role   Role     `json:"role"`
	Fields []string `json:"fields"`
}

// HasField reports whether the source provided the given ranking column.
func (s Source) HasField(field string) bool {
	return slices.Contains(s.Fields, field)
}

// Table is an ordered collection of keyword rows with an explicit schema.
// Columns lists the named (standard, classification and derived) columns
// present, in order. Extras lists unmapped input columns carried through.
type Table struct {
	Columns []string      `json:"columns"`
	Extras  []string      `json:"extras,omitempty"`
	Sources []Source      `json:"sources,omitempty"`
	Rows    []*KeywordRow `json:"rows"`
}

// NewTable returns an empty table with the given named columns. The keyword
// column is always present.
func NewTable(columns ...string) *Table {
	t := &Table{}
	t.AddColumn(ColKeyword)
	for _, c := range columns {
		t.AddColumn(c)
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Has reports whether a named column is present.
func (t *Table) Has(col string) bool {
	return slices.Contains(t.Columns, col)
}

// AddColumn marks a named column as present. Adding twice is a no-op.
func (t *Table) AddColumn(col string) {
	if !t.Has(col) {
		t.Columns = append(t.Columns, col)
	}
}

// AddExtra marks an unmapped input column as present.
func (t *Table) AddExtra(col string) {
	if !slices.Contains(t.Extras, col) {
		t.Extras = append(t.Extras, col)
	}
}

// Source returns the source with the given slug.
func (t *Table) Source(slug string) (Source, bool) {
	for _, s := range t.Sources {
		if s.Slug == slug {
			return s, true
		}
	}
	return Source{}, false
}

// Owner returns the owner's rankings source, if one was merged.
func (t *Table) Owner() (Source, bool) {
	for _, s := range t.Sources {
		if s.Role == RoleRankings {
			return s, true
		}
	}
	return Source{}, false
}

// Competitors returns every ranking source except the owner, in merge order.
func (t *Table) Competitors() []Source {
	var out []Source
	for _, s := range t.Sources {
		if s.Role != RoleRankings {
			out = append(out, s)
		}
	}
	return out
}

// PositionSources returns the sources that carry a position column.
func (t *Table) PositionSources() []Source {
	var out []Source
	for _, s := range t.Sources {
		if s.HasField(ColPosition) {
			out = append(out, s)
		}
	}
	return out
}

// WithRows returns a table sharing t's schema over the given rows.
func (t *Table) WithRows(rows []*KeywordRow) *Table {
	return &Table{
		Columns: slices.Clone(t.Columns),
		Extras:  slices.Clone(t.Extras),
		Sources: slices.Clone(t.Sources),
		Rows:    rows,
	}
}

// Filter returns the rows for which keep returns true. Rows are shared.
func (t *Table) Filter(keep func(*KeywordRow) bool) *Table {
	rows := make([]*KeywordRow, 0, len(t.Rows))
	for _, r := range t.Rows {
		if keep(r) {
			rows = append(rows, r)
		}
	}
	return t.WithRows(rows)
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	rows := make([]*KeywordRow, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = r.Clone()
	}
	return t.WithRows(rows)
}

// Keywords returns the keyword text of every row, in order.
func (t *Table) Keywords() []string {
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Keyword
	}
	return out
}

// SourceTable is a table tagged with its role and human-readable name.
type SourceTable struct {
	Name  string
	Role  Role
	Table *Table
}

// Classification is the externally computed label pair for one keyword.
type Classification struct {
	JourneyPhase string `json:"journey_phase"`
	SearchIntent string `json:"search_intent"`
}
