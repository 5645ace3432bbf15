package xlsx

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/tiendc/go-deepcopy"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/archive"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/errs"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/models"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/sst"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/storage"
)

type writerState int

const (
	stateUnopened writerState = iota
	stateOpened
	stateSheetActive
	stateClosed
)

func (s writerState) String() string {
	switch s {
	case stateUnopened:
		return "unopened"
	case stateOpened:
		return "opened"
	case stateSheetActive:
		return "sheet active"
	case stateClosed:
		return "closed"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Writer streams rows into a SpreadsheetML package.
type Writer struct {
	opts  Options
	state writerState

	file  *storage.AtomicFile
	zw    *archive.Writer
	entry *archive.EntryWriter
	bw    *bufio.Writer

	enc     rowEncoder
	shared  *sst.Builder
	sheets  []models.SheetInfo
	created time.Time
	err     error
}

// NewWriter returns an unopened writer.
func NewWriter(opts Options) *Writer {
	return &Writer{opts: opts.withDefaults()}
}

// Open creates the package at path and starts the first sheet. The file
// only appears once Close succeeds.
func (w *Writer) Open(path string) error {
	if w.state == stateOpened || w.state == stateSheetActive {
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

// OpenWriter writes the package to dst and starts the first sheet. The
// caller keeps ownership of dst.
func (w *Writer) OpenWriter(dst io.Writer) error {
	if w.state == stateOpened || w.state == stateSheetActive {
		return errs.ErrAlreadyOpen
	}
	w.created = time.Now()
	w.zw = archive.NewWriter(dst, archive.WriterOptions{
		CompressionLevel: w.opts.CompressionLevel,
		Modified:         w.created,
	})
	w.shared = nil
	if !w.opts.UseInlineStrings {
		w.shared = sst.NewBuilder()
	}
	w.enc = rowEncoder{shared: w.shared}
	w.sheets = nil
	w.err = nil
	w.state = stateOpened

	if err := w.beginSheet(); err != nil {
		return w.fail(err)
	}
	return nil
}

func (w *Writer) sheetNames(except int) []string {
	names := make([]string, 0, len(w.sheets))
	for i, s := range w.sheets {
		if i != except {
			names = append(names, s.Name)
		}
	}
	return names
}

func (w *Writer) nextSheetName() string {
	taken := w.sheetNames(-1)
	for n := len(w.sheets) + 1; ; n++ {
		name := w.opts.SheetNamePrefix + strconv.Itoa(n)
		if ValidateSheetName(name, taken) == nil {
			return name
		}
	}
}

func (w *Writer) beginSheet() error {
	index := len(w.sheets)
	info := models.SheetInfo{
		Name:  w.nextSheetName(),
		Index: index,
		Entry: worksheetPart(index + 1),
	}
	entry, err := w.zw.BeginEntry(info.Entry)
	if err != nil {
		return err
	}
	w.entry = entry
	if w.bw == nil {
		w.bw = bufio.NewWriterSize(entry, 64*1024)
	} else {
		w.bw.Reset(entry)
	}
	if _, err := w.bw.WriteString(worksheetStart); err != nil {
		return err
	}
	w.sheets = append(w.sheets, info)
	w.state = stateSheetActive
	w.opts.Logger.Debug("sheet started", "sheet", info.Name, "index", info.Index)
	return nil
}

func (w *Writer) endSheet() error {
	cur := &w.sheets[len(w.sheets)-1]
	if _, err := w.bw.WriteString(worksheetEnd); err != nil {
		return err
	}
	if err := w.bw.Flush(); err != nil {
		return err
	}
	if err := w.entry.Seal(); err != nil {
		return err
	}
	w.entry = nil
	cur.Finalized = true
	w.state = stateOpened
	w.opts.Logger.Debug("sheet sealed", "sheet", cur.Name, "rows", cur.RowCount)
	return nil
}

func (w *Writer) fail(err error) error {
	if w.err == nil {
		if _, ok := err.(*errs.IOError); !ok {
			err = errs.NewIOError("write", w.destination(), err)
		}
		w.err = err
	}
	return w.err
}

func (w *Writer) destination() string {
	if w.file != nil {
		return w.file.Name()
	}
	return ""
}

// AppendRow writes row to the current sheet. When the sheet is full it
// starts a new one first, or fails with errs.ErrSheetRowLimitExceeded if
// automatic sheet creation is off.
func (w *Writer) AppendRow(row models.Row) error {
	if w.state != stateSheetActive {
		return errs.ErrWriterNotOpen
	}
	if w.err != nil {
		return w.err
	}

	cur := &w.sheets[len(w.sheets)-1]
	if cur.RowCount >= w.opts.MaxRowsPerSheet {
		if !w.opts.AutoCreateNewSheets {
			return errs.NewSheetError(cur.Name, "rows",
				fmt.Errorf("%w: %d rows", errs.ErrSheetRowLimitExceeded, w.opts.MaxRowsPerSheet))
		}
		if err := w.AddNewSheet(); err != nil {
			return err
		}
		cur = &w.sheets[len(w.sheets)-1]
	}

	data, err := w.enc.encode(cur.RowCount+1, row)
	if err != nil {
		return errs.NewSheetError(cur.Name, "cells", err)
	}
	if _, err := w.bw.Write(data); err != nil {
		return w.fail(err)
	}
	cur.RowCount++
	return nil
}

// AppendRows writes several rows.
func (w *Writer) AppendRows(rows []models.Row) error {
	for _, row := range rows {
		if err := w.AppendRow(row); err != nil {
			return err
		}
	}
	return nil
}

// AddNewSheet seals the current sheet and makes a new, empty sheet current.
func (w *Writer) AddNewSheet() error {
	if w.state != stateSheetActive {
		return errs.ErrWriterNotOpen
	}
	if w.err != nil {
		return w.err
	}
	if err := w.endSheet(); err != nil {
		return w.fail(err)
	}
	if err := w.beginSheet(); err != nil {
		return w.fail(err)
	}
	return nil
}

// SetSheetName renames the current sheet.
func (w *Writer) SetSheetName(name string) error {
	if w.state != stateSheetActive {
		return errs.ErrWriterNotOpen
	}
	idx := len(w.sheets) - 1
	if err := ValidateSheetName(name, w.sheetNames(idx)); err != nil {
		return errs.NewSheetError(w.sheets[idx].Name, "manifest", err)
	}
	w.sheets[idx].Name = name
	return nil
}

// CurrentSheet returns the sheet receiving rows.
func (w *Writer) CurrentSheet() (models.SheetInfo, error) {
	if w.state != stateSheetActive {
		return models.SheetInfo{}, errs.ErrNoCurrentSheet
	}
	return w.sheets[len(w.sheets)-1], nil
}

// Sheets returns a copy of the sheets created so far.
func (w *Writer) Sheets() []models.SheetInfo {
	var out []models.SheetInfo
	if err := deepcopy.Copy(&out, w.sheets); err != nil {
		out = append(out, w.sheets...)
	}
	return out
}

// Entries returns the container entries sealed so far.
func (w *Writer) Entries() []models.EntryInfo {
	if w.zw == nil {
		return nil
	}
	return w.zw.Entries()
}

// Close seals the current sheet, writes the string table and manifest
// parts and publishes the file. After a failure the partial file is
// discarded and the failure returned. It is safe to call more than once.
func (w *Writer) Close() error {
	if w.state == stateUnopened || w.state == stateClosed {
		return nil
	}
	err := w.err
	if err == nil {
		if ferr := w.finish(); ferr != nil {
			err = w.fail(ferr)
		}
	}
	w.state = stateClosed
	w.entry = nil

	if w.file != nil {
		f := w.file
		w.file = nil
		if err != nil {
			f.Abort()
			return err
		}
		if cerr := f.Commit(); cerr != nil {
			return cerr
		}
	}
	if err != nil {
		return err
	}
	w.opts.Logger.Debug("workbook closed", "sheets", len(w.sheets))
	return nil
}

func (w *Writer) finish() error {
	if w.state == stateSheetActive {
		if err := w.endSheet(); err != nil {
			return err
		}
	}
	shared := w.shared != nil
	if shared {
		if err := w.writeSharedStrings(); err != nil {
			return err
		}
	}

	parts := []struct {
		name string
		data []byte
	}{
		{partStyles, stylesXML()},
		{partWorkbook, workbookXML(w.sheets)},
		{partWorkbookRels, workbookRelsXML(w.sheets, shared)},
		{partContentTypes, contentTypesXML(w.sheets, shared)},
		{partRootRels, rootRelsXML()},
		{partApp, appXML(w.opts.Creator)},
		{partCore, coreXML(w.opts.Creator, w.created)},
	}
	for _, p := range parts {
		if err := w.zw.WriteEntry(p.name, p.data); err != nil {
			return err
		}
	}
	return w.zw.Close()
}

func (w *Writer) writeSharedStrings() error {
	entry, err := w.zw.BeginEntry(partSharedStrings)
	if err != nil {
		return err
	}
	w.bw.Reset(entry)
	w.bw.WriteString(sharedStringsStart)
	w.bw.WriteString(strconv.Itoa(w.shared.Count()))
	w.bw.WriteString(`" uniqueCount="`)
	w.bw.WriteString(strconv.Itoa(w.shared.UniqueCount()))
	w.bw.WriteString(`">`)

	var scratch rowEncoder
	err = w.shared.Emit(func(_ int, v string) error {
		scratch.buf.Reset()
		scratch.buf.WriteString(`<si><t xml:space="preserve">`)
		escapeText(&scratch.buf, v)
		scratch.buf.WriteString(`</t></si>`)
		_, err := w.bw.Write(scratch.buf.Bytes())
		return err
	})
	if err != nil {
		return err
	}
	w.bw.WriteString(`</sst>`)
	if err := w.bw.Flush(); err != nil {
		return err
	}
	w.opts.Logger.Debug("shared strings written", "count", w.shared.Count(), "unique", w.shared.UniqueCount())
	return entry.Seal()
}

// Abort ends the session without writing the manifest or publishing the
// file.
func (w *Writer) Abort() error {
	if w.state == stateUnopened || w.state == stateClosed {
		return nil
	}
	w.state = stateClosed
	w.entry = nil
	if w.file != nil {
		f := w.file
		w.file = nil
		return f.Abort()
	}
	return nil
}
