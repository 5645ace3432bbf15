package models

// Row is an ordered sequence of cells. Rows carry no schema; their length
// may vary from one row to the next.
type Row []Cell

// NewRow builds a row from Go values, see NewCell.
func NewRow(values ...any) Row {
	row := make(Row, len(values))
	for i, v := range values {
		row[i] = NewCell(v)
	}
	return row
}

// StringRow builds a row of text cells.
func StringRow(values ...string) Row {
	row := make(Row, len(values))
	for i, v := range values {
		row[i] = Cell{Value: v}
	}
	return row
}

// Strings returns the textual form of every cell.
func (r Row) Strings() []string {
	out := make([]string, len(r))
	for i, c := range r {
		out[i] = c.String()
	}
	return out
}

// Values returns the raw value of every cell.
func (r Row) Values() []any {
	out := make([]any, len(r))
	for i, c := range r {
		out[i] = c.Value
	}
	return out
}

// IsEmpty reports whether the row has no cells or only empty ones.
func (r Row) IsEmpty() bool {
	for _, c := range r {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}
