package csv

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/errs"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/models"
)

// Reader iterates the records of a delimited-text document. The document
// has a single implicit sheet, which is current as soon as the reader opens.
type Reader struct {
	opts Options

	file  *os.File
	br    *bufio.Reader
	name  string
	line  int
	rows  int
	open  bool
	taken bool

	peeked  models.Row
	peekErr error
	hasPeek bool
}

// NewReader returns an unopened reader.
func NewReader(opts Options) *Reader {
	return &Reader{opts: opts.withDefaults()}
}

// Open opens the file at path. It fails with errs.ErrFileNotFound when the
// file is missing and errs.ErrAlreadyOpen when the reader is in use.
func (r *Reader) Open(path string) error {
	if r.open {
		return errs.ErrAlreadyOpen
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", errs.ErrFileNotFound, path)
		}
		return errs.NewIOError("open", path, err)
	}
	if err := r.OpenReader(f); err != nil {
		f.Close()
		return err
	}
	r.file = f
	r.name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return nil
}

// OpenReader reads records from src. The caller keeps ownership of src.
func (r *Reader) OpenReader(src io.Reader) error {
	if r.open {
		return errs.ErrAlreadyOpen
	}
	if err := r.opts.validate(); err != nil {
		return err
	}
	enc, err := ResolveEncoding(r.opts.Encoding)
	if err != nil {
		return err
	}
	// A leading BOM selects its own Unicode decoder and is dropped.
	dec := unicode.BOMOverride(enc.NewDecoder())
	r.br = bufio.NewReader(transform.NewReader(src, dec))
	r.line = 0
	r.rows = 0
	r.taken = false
	r.hasPeek = false
	r.peeked, r.peekErr = nil, nil
	r.name = "Sheet1"
	r.open = true
	return nil
}

// Sheets returns the implicit sheet.
func (r *Reader) Sheets() []models.SheetInfo {
	return []models.SheetInfo{{Name: r.name, Index: 0, RowCount: r.rows}}
}

// HasNextSheet reports whether NextSheet has not yet been called.
func (r *Reader) HasNextSheet() bool {
	return r.open && !r.taken
}

// NextSheet returns the implicit sheet once, then io.EOF.
func (r *Reader) NextSheet() (models.SheetInfo, error) {
	if !r.open {
		return models.SheetInfo{}, errs.ErrReaderNotOpen
	}
	if r.taken {
		return models.SheetInfo{}, io.EOF
	}
	r.taken = true
	return models.SheetInfo{Name: r.name, Index: 0}, nil
}

// HasNextRow reports whether NextRow would return a row or an error
// other than io.EOF.
func (r *Reader) HasNextRow() bool {
	if !r.open {
		return false
	}
	if !r.hasPeek {
		r.peeked, r.peekErr = r.readRecord()
		r.hasPeek = true
	}
	return r.peekErr != io.EOF
}

// NextRow returns the next record, or io.EOF after the last one. A
// malformed record is reported as *errs.RecordError.
func (r *Reader) NextRow() (models.Row, error) {
	if !r.open {
		return nil, errs.ErrReaderNotOpen
	}
	if r.hasPeek {
		row, err := r.peeked, r.peekErr
		r.peeked = nil
		if err != io.EOF {
			r.hasPeek = false
			r.peekErr = nil
		}
		return row, err
	}
	return r.readRecord()
}

// Rows iterates the remaining records. Iteration stops after the first
// error.
func (r *Reader) Rows() iter.Seq2[models.Row, error] {
	return func(yield func(models.Row, error) bool) {
		for {
			row, err := r.NextRow()
			if err == io.EOF {
				return
			}
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

// Close releases the input. It is safe to call more than once.
func (r *Reader) Close() error {
	if !r.open {
		return nil
	}
	r.open = false
	r.br = nil
	r.peeked = nil
	if r.file != nil {
		f := r.file
		r.file = nil
		if err := f.Close(); err != nil {
			return errs.NewIOError("close", f.Name(), err)
		}
	}
	return nil
}

// readLine returns one physical line without its terminator.
func (r *Reader) readLine() (text, eol string, err error) {
	s, err := r.br.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", "", errs.NewIOError("read", r.name, err)
	}
	if s == "" {
		return "", "", io.EOF
	}
	r.line++
	switch {
	case strings.HasSuffix(s, "\r\n"):
		return s[:len(s)-2], "\r\n", nil
	case strings.HasSuffix(s, "\n"):
		return s[:len(s)-1], "\n", nil
	}
	return s, "", nil
}

func (r *Reader) readRecord() (models.Row, error) {
	for {
		text, eol, err := r.readLine()
		if err != nil {
			return nil, err
		}
		if text == "" {
			if r.opts.PreserveEmptyRows {
				r.rows++
				return models.Row{}, nil
			}
			continue
		}
		fields, err := r.splitRecord(text, eol)
		if err != nil {
			return nil, err
		}
		row := make(models.Row, len(fields))
		for i, f := range fields {
			row[i] = models.Cell{Value: f, Source: models.SourceText}
		}
		r.rows++
		return row, nil
	}
}

// splitRecord splits a record that starts with text, pulling further
// physical lines while an enclosure is open.
func (r *Reader) splitRecord(text, eol string) ([]string, error) {
	delim, encl := r.opts.Delimiter, r.opts.Enclosure
	start := r.line

	var (
		fields  []string
		field   strings.Builder
		quoted  bool
		atStart = true
	)
	for {
		for i := 0; i < len(text); {
			c, size := utf8.DecodeRuneInString(text[i:])
			switch {
			case quoted:
				if c == encl {
					next, nsize := utf8.DecodeRuneInString(text[i+size:])
					if nsize > 0 && next == encl {
						field.WriteRune(encl)
						i += size + nsize
						continue
					}
					quoted = false
				} else {
					field.WriteString(text[i : i+size])
				}
			case c == encl && atStart:
				quoted = true
				atStart = false
			case c == delim:
				fields = append(fields, field.String())
				field.Reset()
				atStart = true
			default:
				// Text after a closing enclosure is kept as is.
				field.WriteString(text[i : i+size])
				atStart = false
			}
			i += size
		}

		if !quoted {
			fields = append(fields, field.String())
			return fields, nil
		}

		// The line break belongs to the quoted field.
		field.WriteString(eol)
		var err error
		text, eol, err = r.readLine()
		if err == io.EOF {
			return nil, &errs.RecordError{Line: start, Err: fmt.Errorf("%w: unterminated enclosure", errs.ErrMalformedRecord)}
		}
		if err != nil {
			return nil, err
		}
	}
}
