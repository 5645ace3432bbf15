package xlsx

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/archive"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/errs"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/models"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/sst"
)

// Reader iterates the sheets and rows of a SpreadsheetML package.
type Reader struct {
	opts Options

	ar       *archive.Reader
	manifest *manifest
	strings  sst.Table
	next     int
	cur      *sheetCursor
	open     bool
}

// sheetCursor streams the rows of one worksheet entry.
type sheetCursor struct {
	info    models.SheetInfo
	entry   *archive.EntryReader
	dec     *xml.Decoder
	lastRow int
	done    bool

	pendingEmpty int
	buffered     models.Row

	peeked  models.Row
	peekErr error
	hasPeek bool
}

// NewReader returns an unopened reader.
func NewReader(opts Options) *Reader {
	return &Reader{opts: opts.withDefaults()}
}

// Open opens the package at path, resolves its sheets and loads the shared
// string table. No sheet is current until NextSheet.
func (r *Reader) Open(path string) error {
	if r.open {
		return errs.ErrAlreadyOpen
	}
	ar, err := archive.Open(path)
	if err != nil {
		return err
	}
	return r.openArchive(ar)
}

// OpenReaderAt opens a package held by ra.
func (r *Reader) OpenReaderAt(ra io.ReaderAt, size int64) error {
	if r.open {
		return errs.ErrAlreadyOpen
	}
	ar, err := archive.NewReader(ra, size)
	if err != nil {
		return err
	}
	return r.openArchive(ar)
}

func (r *Reader) openArchive(ar *archive.Reader) error {
	m, err := readManifest(ar)
	if err != nil {
		ar.Close()
		return err
	}
	r.ar = ar
	r.manifest = m
	r.next = 0
	r.cur = nil
	r.strings = nil

	if m.SharedStrings != "" && ar.Has(m.SharedStrings) {
		if err := r.loadSharedStrings(); err != nil {
			if r.strings != nil {
				r.strings.Close()
				r.strings = nil
			}
			ar.Close()
			r.ar = nil
			return err
		}
	}
	r.open = true
	r.opts.Logger.Debug("workbook opened", "sheets", len(m.Sheets), "shared_strings", m.SharedStrings)
	return nil
}

// loadSharedStrings reads the whole table before any row is decoded,
// since cells only carry indices into it.
func (r *Reader) loadSharedStrings() error {
	er, err := r.ar.OpenEntry(r.manifest.SharedStrings)
	if err != nil {
		return err
	}
	defer er.Close()

	dec := xml.NewDecoder(er)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errs.NewSheetError("", "shared_strings", corrupt(err))
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "sst":
			unique := -1
			if v := attr(se, "uniqueCount"); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					unique = n
				}
			}
			r.strings, err = sst.NewTable(unique, r.opts.SharedStrings)
			if err != nil {
				return err
			}
		case "si":
			if r.strings == nil {
				return fmt.Errorf("%w: string item outside <sst>", errs.ErrCorruptContainer)
			}
			s, err := readStringItem(dec)
			if err != nil {
				return errs.NewSheetError("", "shared_strings", corrupt(err))
			}
			if err := r.strings.Add(unescapeText(s)); err != nil {
				return err
			}
		}
	}
	if r.strings == nil {
		return nil
	}
	return r.strings.Finish()
}

// Sheets lists the sheets of the manifest in document order.
func (r *Reader) Sheets() []models.SheetInfo {
	if r.manifest == nil {
		return nil
	}
	out := make([]models.SheetInfo, len(r.manifest.Sheets))
	for i, s := range r.manifest.Sheets {
		out[i] = models.SheetInfo{Name: s.Name, Index: i, Finalized: true, Entry: s.Path}
	}
	return out
}

// Entries lists the container entries.
func (r *Reader) Entries() []models.EntryInfo {
	if r.ar == nil {
		return nil
	}
	return r.ar.Entries()
}

// HasNextSheet reports whether NextSheet has another sheet to return.
func (r *Reader) HasNextSheet() bool {
	return r.open && r.next < len(r.manifest.Sheets)
}

// NextSheet makes the next sheet current and returns it, or io.EOF after
// the last sheet.
func (r *Reader) NextSheet() (models.SheetInfo, error) {
	if !r.open {
		return models.SheetInfo{}, errs.ErrReaderNotOpen
	}
	r.closeCursor()
	if r.next >= len(r.manifest.Sheets) {
		return models.SheetInfo{}, io.EOF
	}
	ref := r.manifest.Sheets[r.next]
	info := models.SheetInfo{Name: ref.Name, Index: r.next, Finalized: true, Entry: ref.Path}
	r.next++

	er, err := r.ar.OpenEntry(ref.Path)
	if err != nil {
		return models.SheetInfo{}, errs.NewSheetError(ref.Name, "rows", err)
	}
	r.cur = &sheetCursor{info: info, entry: er, dec: xml.NewDecoder(er)}
	return info, nil
}

// HasNextRow reports whether NextRow would return a row or an error other
// than io.EOF.
func (r *Reader) HasNextRow() bool {
	if !r.open || r.cur == nil {
		return false
	}
	c := r.cur
	if !c.hasPeek {
		c.peeked, c.peekErr = r.readRow()
		c.hasPeek = true
	}
	return c.peekErr != io.EOF
}

// NextRow returns the next row of the current sheet, or io.EOF once the
// sheet is exhausted.
func (r *Reader) NextRow() (models.Row, error) {
	if !r.open {
		return nil, errs.ErrReaderNotOpen
	}
	if r.cur == nil {
		return nil, errs.ErrNoCurrentSheet
	}
	c := r.cur
	if c.hasPeek {
		row, err := c.peeked, c.peekErr
		c.peeked = nil
		if err != io.EOF {
			c.hasPeek = false
			c.peekErr = nil
		}
		return row, err
	}
	return r.readRow()
}

// Rows iterates the remaining rows of the current sheet. Iteration stops
// after the first error.
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

func (r *Reader) readRow() (models.Row, error) {
	c := r.cur
	if c.pendingEmpty > 0 {
		c.pendingEmpty--
		return models.Row{}, nil
	}
	if c.buffered != nil {
		row := c.buffered
		c.buffered = nil
		return row, nil
	}
	if c.done {
		return nil, io.EOF
	}

	for {
		tok, err := c.dec.Token()
		if err == io.EOF {
			c.done = true
			return nil, io.EOF
		}
		if err != nil {
			c.done = true
			return nil, errs.NewSheetError(c.info.Name, "rows", corrupt(err))
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "row" {
			continue
		}

		rowNum, row, err := decodeRow(c.dec, se, r.strings, c.lastRow)
		if err != nil {
			c.done = true
			return nil, errs.NewSheetError(c.info.Name, "cells", err)
		}
		gap := rowNum - c.lastRow - 1
		c.lastRow = rowNum

		if !r.opts.PreserveEmptyRows {
			if len(row) == 0 {
				continue
			}
			return row, nil
		}
		if row == nil {
			row = models.Row{}
		}
		if gap > 0 {
			c.buffered = row
			c.pendingEmpty = gap - 1
			return models.Row{}, nil
		}
		return row, nil
	}
}

func (r *Reader) closeCursor() {
	if r.cur == nil {
		return
	}
	r.cur.entry.Close()
	r.cur = nil
}

// Close releases the package and the string table. It is safe to call
// more than once.
func (r *Reader) Close() error {
	if !r.open {
		return nil
	}
	r.open = false
	r.closeCursor()

	var errList []error
	if r.strings != nil {
		errList = append(errList, r.strings.Close())
		r.strings = nil
	}
	if r.ar != nil {
		errList = append(errList, r.ar.Close())
		r.ar = nil
	}
	return errors.Join(errList...)
}
