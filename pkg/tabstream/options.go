// Package tabstream provides constant-memory streaming of tabular data
// through CSV and XLSX files.
package tabstream

import (
	"log/slog"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/csv"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/xlsx"
)

// Options configures readers and writers created by this package.
type Options struct {
	// CSV configures delimited-text sessions.
	CSV csv.Options
	// XLSX configures packaged-workbook sessions.
	XLSX xlsx.Options
	// InlineStrings specifies whether XLSX text is written into each cell.
	// If nil, XLSX.UseInlineStrings applies.
	InlineStrings *bool
	// AutoCreateNewSheets specifies whether a full XLSX sheet is followed by
	// a new one. If nil, XLSX.AutoCreateNewSheets applies.
	AutoCreateNewSheets *bool
	// PreserveEmptyRows specifies whether readers return blank records and
	// missing sheet rows. If nil, defaults to false.
	PreserveEmptyRows *bool
	// Logger is handed to every session. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// DefaultOptions returns default options for both formats.
func DefaultOptions() Options {
	return Options{
		CSV:  csv.DefaultOptions(),
		XLSX: xlsx.DefaultOptions(),
	}
}

// ShouldUseInlineStrings returns whether XLSX text is written inline.
func (o Options) ShouldUseInlineStrings() bool {
	if o.InlineStrings != nil {
		return *o.InlineStrings
	}
	return o.XLSX.UseInlineStrings
}

// ShouldAutoCreateNewSheets returns whether XLSX output splits at the row
// ceiling.
func (o Options) ShouldAutoCreateNewSheets() bool {
	if o.AutoCreateNewSheets != nil {
		return *o.AutoCreateNewSheets
	}
	return o.XLSX.AutoCreateNewSheets
}

// ShouldPreserveEmptyRows returns whether readers keep empty rows.
func (o Options) ShouldPreserveEmptyRows() bool {
	if o.PreserveEmptyRows != nil {
		return *o.PreserveEmptyRows
	}
	return o.CSV.PreserveEmptyRows || o.XLSX.PreserveEmptyRows
}

func (o Options) csvOptions() csv.Options {
	c := o.CSV
	c.PreserveEmptyRows = o.ShouldPreserveEmptyRows()
	if o.Logger != nil {
		c.Logger = o.Logger
	}
	return c
}

func (o Options) xlsxOptions() xlsx.Options {
	x := o.XLSX
	x.UseInlineStrings = o.ShouldUseInlineStrings()
	x.AutoCreateNewSheets = o.ShouldAutoCreateNewSheets()
	x.PreserveEmptyRows = o.ShouldPreserveEmptyRows()
	if o.Logger != nil {
		x.Logger = o.Logger
		x.SharedStrings.Logger = o.Logger
	}
	return x
}

// Bool returns a pointer to v, for the override fields of Options.
func Bool(v bool) *bool {
	return &v
}
