package tabstream

import (
	"fmt"
	"io"
	"iter"
	"path/filepath"
	"strings"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/csv"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/errs"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/models"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/sniff"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/xlsx"
)

// Format selects the file format of a session.
type Format string

const (
	// FormatCSV is delimited text with a single implicit sheet.
	FormatCSV Format = "csv"
	// FormatXLSX is a SpreadsheetML package.
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a format name or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "csv", "tsv", "txt":
		return FormatCSV, nil
	case "xlsx", "xlsm", "xltx", "xltm":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", errs.ErrUnsupportedFormat, s)
}

// FormatFromPath selects a format from the extension of path.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// DetectFormat selects the format of an existing file from its content,
// falling back to its extension for empty or textual files. OLE2 compound
// files (encrypted or legacy binary workbooks) yield ErrUnsupportedFormat.
func DetectFormat(path string) (Format, error) {
	kind, err := sniff.File(path)
	if err != nil {
		return "", err
	}
	switch kind {
	case sniff.KindZip:
		return FormatXLSX, nil
	case sniff.KindOLE:
		c, err := sniff.InspectCompound(path)
		if err != nil {
			return "", fmt.Errorf("%w: %w", errs.ErrUnsupportedFormat, err)
		}
		return "", c.Err()
	}
	if f, err := FormatFromPath(path); err == nil {
		return f, nil
	}
	if kind == sniff.KindBinary {
		return "", fmt.Errorf("%w: %s is not text", errs.ErrUnsupportedFormat, path)
	}
	return FormatCSV, nil
}

// Reader is the read contract shared by both formats. A CSV document has
// one implicit sheet.
type Reader interface {
	Open(path string) error
	Sheets() []models.SheetInfo
	HasNextSheet() bool
	NextSheet() (models.SheetInfo, error)
	HasNextRow() bool
	NextRow() (models.Row, error)
	Rows() iter.Seq2[models.Row, error]
	Close() error
}

// Writer is the write contract shared by both formats.
type Writer interface {
	Open(path string) error
	OpenWriter(dst io.Writer) error
	AppendRow(row models.Row) error
	AppendRows(rows []models.Row) error
	Sheets() []models.SheetInfo
	Close() error
	Abort() error
}

// SheetWriter is a Writer that can also start and name sheets.
type SheetWriter interface {
	Writer
	AddNewSheet() error
	SetSheetName(name string) error
}

// entryLister is implemented by sessions over a ZIP container.
type entryLister interface {
	Entries() []models.EntryInfo
}

// NewReader returns an unopened reader for format.
func NewReader(format Format, opts Options) (Reader, error) {
	switch format {
	case FormatCSV:
		return csv.NewReader(opts.csvOptions()), nil
	case FormatXLSX:
		return xlsx.NewReader(opts.xlsxOptions()), nil
	}
	return nil, fmt.Errorf("%w: %q", errs.ErrUnsupportedFormat, format)
}

// NewWriter returns an unopened writer for format.
func NewWriter(format Format, opts Options) (Writer, error) {
	switch format {
	case FormatCSV:
		return csv.NewWriter(opts.csvOptions()), nil
	case FormatXLSX:
		return xlsx.NewWriter(opts.xlsxOptions()), nil
	}
	return nil, fmt.Errorf("%w: %q", errs.ErrUnsupportedFormat, format)
}

// OpenFile detects the format of path and returns an open reader.
func OpenFile(path string, opts Options) (Reader, Format, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, "", err
	}
	r, err := NewReader(format, opts)
	if err != nil {
		return nil, "", err
	}
	if err := r.Open(path); err != nil {
		return nil, "", err
	}
	return r, format, nil
}

// CreateFile selects the format from the extension of path and returns an
// open writer.
func CreateFile(path string, opts Options) (Writer, Format, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, "", err
	}
	w, err := NewWriter(format, opts)
	if err != nil {
		return nil, "", err
	}
	if err := w.Open(path); err != nil {
		return nil, "", err
	}
	return w, format, nil
}
