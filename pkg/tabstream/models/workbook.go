package models

// WorkbookInfo summarizes a document for inspection and reporting.
type WorkbookInfo struct {
	// BookName is the document file name (no path).
	BookName string `json:"book_name"`
	// Format is the format tag of the document ("csv" or "xlsx").
	Format string `json:"format"`
	// Sheets lists the sheets in document order.
	Sheets []SheetInfo `json:"sheets"`
	// Entries lists the container entries (packaged format only).
	Entries []EntryInfo `json:"entries,omitempty"`
}

// EntryInfo describes one container entry.
type EntryInfo struct {
	// Name is the entry path inside the container.
	Name string `json:"name"`
	// Method is the compression method ("store" or "deflate").
	Method string `json:"method"`
	// CompressedSize is the stored size in bytes (0 while unknown).
	CompressedSize uint64 `json:"compressed_size"`
	// UncompressedSize is the decompressed size in bytes.
	UncompressedSize uint64 `json:"uncompressed_size"`
	// CRC32 is the IEEE checksum of the decompressed bytes.
	CRC32 uint32 `json:"crc32"`
	// Sealed reports whether the entry is complete.
	Sealed bool `json:"sealed"`
}

// TotalRows sums the row counts of all sheets.
func (w WorkbookInfo) TotalRows() int {
	n := 0
	for _, s := range w.Sheets {
		n += s.RowCount
	}
	return n
}
