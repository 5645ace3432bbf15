package csv

import (
	"bufio"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/errs"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/models"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/storage"
)

// Writer appends records to a delimited-text document.
type Writer struct {
	opts Options

	file *storage.AtomicFile
	tw   *transform.Writer
	bw   *bufio.Writer

	needsQuote string
	encl       string
	enclPair   string

	rows   int
	open   bool
	closed bool
	err    error
}

// NewWriter returns an unopened writer.
func NewWriter(opts Options) *Writer {
	return &Writer{opts: opts.withDefaults()}
}

// Open creates the document at path. The file only appears once Close
// succeeds. It fails with errs.ErrFileNotFound when the directory cannot
// receive the file and errs.ErrAlreadyOpen when the writer is in use.
func (w *Writer) Open(path string) error {
	if w.open {
		return errs.ErrAlreadyOpen
	}
	f, err := storage.Create(path, w.opts.Logger)
	if err != nil {
		return err
	}
	if err := w.OpenWriter(f); err != nil {
		f.Abort()
		return err
	}
	w.file = f
	return nil
}

// OpenWriter writes records to dst. The caller keeps ownership of dst;
// Close flushes but does not close it.
func (w *Writer) OpenWriter(dst io.Writer) error {
	if w.open {
		return errs.ErrAlreadyOpen
	}
	if err := w.opts.validate(); err != nil {
		return err
	}
	enc, err := ResolveEncoding(w.opts.Encoding)
	if err != nil {
		return err
	}

	out := dst
	w.tw = nil
	if enc != unicode.UTF8 {
		w.tw = transform.NewWriter(dst, enc.NewEncoder())
		out = w.tw
	}
	w.bw = bufio.NewWriter(out)

	w.encl = string(w.opts.Enclosure)
	w.enclPair = w.encl + w.encl
	w.needsQuote = string(w.opts.Delimiter) + w.encl + "\r\n"
	w.rows = 0
	w.err = nil
	w.closed = false
	w.open = true

	if w.opts.AddBOM {
		if _, err := w.bw.WriteString("\uFEFF"); err != nil {
			return w.fail(err)
		}
	}
	return nil
}

// AppendRow writes one record followed by the line ending.
func (w *Writer) AppendRow(row models.Row) error {
	if !w.open {
		return errs.ErrWriterNotOpen
	}
	if w.err != nil {
		return w.err
	}

	// A lone empty field would otherwise be written as a blank line.
	if len(row) == 1 && row[0].String() == "" {
		if _, err := w.bw.WriteString(w.enclPair + w.opts.LineEnding); err != nil {
			return w.fail(err)
		}
		w.rows++
		return nil
	}

	for i, c := range row {
		if i > 0 {
			w.bw.WriteRune(w.opts.Delimiter)
		}
		w.writeField(c.String())
	}
	if _, err := w.bw.WriteString(w.opts.LineEnding); err != nil {
		return w.fail(err)
	}
	w.rows++
	return nil
}

// AppendRows writes several records.
func (w *Writer) AppendRows(rows []models.Row) error {
	for _, row := range rows {
		if err := w.AppendRow(row); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeField(s string) {
	if !strings.ContainsAny(s, w.needsQuote) {
		w.bw.WriteString(s)
		return
	}
	w.bw.WriteString(w.encl)
	w.bw.WriteString(strings.ReplaceAll(s, w.encl, w.enclPair))
	w.bw.WriteString(w.encl)
}

func (w *Writer) fail(err error) error {
	if _, ok := err.(*errs.IOError); !ok {
		err = errs.NewIOError("write", "", err)
	}
	w.err = err
	return err
}

// Sheets returns the implicit sheet.
func (w *Writer) Sheets() []models.SheetInfo {
	return []models.SheetInfo{{Name: "Sheet1", Index: 0, RowCount: w.rows, Finalized: w.closed}}
}

// Close flushes buffered records and publishes the file. After a write
// failure the partial file is discarded and the failure returned. It is
// safe to call more than once.
func (w *Writer) Close() error {
	if !w.open {
		return nil
	}
	w.open = false

	err := w.err
	if err == nil {
		if ferr := w.bw.Flush(); ferr != nil {
			err = w.fail(ferr)
		}
	}
	if err == nil && w.tw != nil {
		if cerr := w.tw.Close(); cerr != nil {
			err = w.fail(cerr)
		}
	}

	if w.file != nil {
		f := w.file
		w.file = nil
		if err != nil {
			f.Abort()
			return err
		}
		if err := f.Commit(); err != nil {
			return err
		}
	}
	if err != nil {
		return err
	}
	w.closed = true
	w.opts.Logger.Debug("csv document closed", "rows", w.rows)
	return nil
}

// Abort ends the session without publishing the file. Records already
// written to a caller-supplied destination stay there.
func (w *Writer) Abort() error {
	if !w.open {
		return nil
	}
	w.open = false
	if w.file != nil {
		f := w.file
		w.file = nil
		return f.Abort()
	}
	return nil
}
