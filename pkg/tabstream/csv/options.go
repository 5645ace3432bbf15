// Package csv reads and writes delimited text one record at a time.
//
// Unlike encoding/csv the enclosure character is configurable, records may
// be transcoded from legacy encodings, and the writer quotes a field only
// when it contains the delimiter, the enclosure or a line break.
package csv

import (
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/errs"
)

// Options configures a Reader or Writer.
type Options struct {
	// Delimiter separates fields. Default ','.
	Delimiter rune
	// Enclosure quotes fields. A doubled enclosure inside a quoted field
	// stands for one literal enclosure. Default '"'.
	Enclosure rune
	// LineEnding terminates written records. Default "\n". Readers accept
	// both "\n" and "\r\n".
	LineEnding string
	// Encoding is a WHATWG or IANA label ("utf-8", "windows-1252",
	// "utf-16le", ...). Empty means UTF-8.
	Encoding string
	// AddBOM writes a byte order mark before the first record.
	AddBOM bool
	// PreserveEmptyRows makes the reader return blank lines as rows
	// without cells instead of skipping them.
	PreserveEmptyRows bool
	// Logger receives debug events. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns comma, double quote and LF with UTF-8 text.
func DefaultOptions() Options {
	return Options{
		Delimiter:  ',',
		Enclosure:  '"',
		LineEnding: "\n",
		Encoding:   "utf-8",
	}
}

func (o Options) withDefaults() Options {
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	if o.Enclosure == 0 {
		o.Enclosure = '"'
	}
	if o.LineEnding == "" {
		o.LineEnding = "\n"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o Options) validate() error {
	if o.Delimiter == o.Enclosure {
		return fmt.Errorf("delimiter and enclosure are both %q", o.Delimiter)
	}
	if o.Delimiter == '\n' || o.Delimiter == '\r' || o.Enclosure == '\n' || o.Enclosure == '\r' {
		return fmt.Errorf("delimiter and enclosure must not be line breaks")
	}
	return nil
}

// ResolveEncoding maps an encoding label to its codec.
func ResolveEncoding(label string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8, nil
	}
	enc, _ := charset.Lookup(label)
	if enc == nil {
		return nil, fmt.Errorf("%w: unknown text encoding %q", errs.ErrUnsupportedFormat, label)
	}
	return enc, nil
}
