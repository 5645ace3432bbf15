package models

// SheetInfo describes one sheet of a document.
type SheetInfo struct {
	// Name is the sheet display name.
	Name string `json:"name"`
	// Index is the 0-based position of the sheet in the document.
	Index int `json:"index"`
	// RowCount is the number of rows written to (or declared for) the sheet.
	RowCount int `json:"row_count"`
	// Finalized reports whether the sheet has been sealed into the container.
	Finalized bool `json:"finalized"`
	// Entry is the container entry holding the sheet rows (packaged format only).
	Entry string `json:"entry,omitempty"`
}
