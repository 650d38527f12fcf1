package model

// Sheet is a rendered table: a header and string cells. It is the shape
// every view takes at the export boundary.
type Sheet struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// View is a named output. Row views carry a Table; aggregate views carry
// a pre-rendered Sheet.
type View struct {
	Name  string `json:"name"`
	Table *Table `json:"table,omitempty"`
	Sheet *Sheet `json:"sheet,omitempty"`
}

// Len returns the number of records in the view.
func (v View) Len() int {
	if v.Table != nil {
		return v.Table.Len()
	}
	if v.Sheet != nil {
		return len(v.Sheet.Rows)
	}
	return 0
}
