// Package xlsx streams rows into and out of SpreadsheetML packages.
//
// The writer emits one worksheet entry at a time, splitting into a new
// sheet when a sheet reaches its row ceiling, and writes the manifest parts
// when it closes. The reader resolves the manifest, loads the shared
// string table once, then decodes one <row> element per call.
package xlsx

import (
	"log/slog"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/archive"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/sst"
)

// MaxRowsPerSheet is the row limit of a SpreadsheetML worksheet.
const MaxRowsPerSheet = 1048576

// Options configures a Reader or Writer.
type Options struct {
	// UseInlineStrings writes text into each cell instead of the shared
	// string table.
	UseInlineStrings bool
	// AutoCreateNewSheets starts a new sheet when the current one reaches
	// MaxRowsPerSheet. Without it the append fails.
	AutoCreateNewSheets bool
	// MaxRowsPerSheet is the per-sheet row ceiling. Zero or values above
	// the format limit mean the format limit.
	MaxRowsPerSheet int
	// CompressionLevel is the deflate level of every entry; 0 stores.
	CompressionLevel int
	// SheetNamePrefix names generated sheets ("Sheet" gives Sheet1, Sheet2...).
	SheetNamePrefix string
	// Creator is recorded in the document properties.
	Creator string

	// PreserveEmptyRows makes the reader return rows absent from the sheet
	// and rows without cells as empty rows.
	PreserveEmptyRows bool
	// SharedStrings tunes the reader's string table storage.
	SharedStrings sst.Options

	Logger *slog.Logger
}

// DefaultOptions returns inline strings, automatic sheet creation and the
// format row limit.
func DefaultOptions() Options {
	return Options{
		UseInlineStrings:    true,
		AutoCreateNewSheets: true,
		MaxRowsPerSheet:     MaxRowsPerSheet,
		CompressionLevel:    archive.DefaultWriterOptions().CompressionLevel,
		SheetNamePrefix:     "Sheet",
		Creator:             "tabstream",
		SharedStrings:       sst.DefaultOptions(),
	}
}

func (o Options) withDefaults() Options {
	if o.MaxRowsPerSheet <= 0 || o.MaxRowsPerSheet > MaxRowsPerSheet {
		o.MaxRowsPerSheet = MaxRowsPerSheet
	}
	if o.SheetNamePrefix == "" {
		o.SheetNamePrefix = "Sheet"
	}
	if o.Creator == "" {
		o.Creator = "tabstream"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.SharedStrings.Logger == nil {
		o.SharedStrings.Logger = o.Logger
	}
	return o
}
