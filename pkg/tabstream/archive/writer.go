package archive

import (
	"archive/zip"
	"hash"
	"hash/crc32"
	"io"
	"math"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/errs"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/models"
)

const (
	zipVersion20 = 20
	zipVersion45 = 45

	// flagDataDescriptor marks entries whose CRC and sizes follow the data.
	flagDataDescriptor = 0x8
	// flagUTF8 marks entry names as UTF-8.
	flagUTF8 = 0x800
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	// CompressionLevel is the deflate level, 0 (store) through 9.
	CompressionLevel int
	// Modified is stamped on every entry. Zero means the time NewWriter runs.
	Modified time.Time
}

// DefaultWriterOptions returns the options used when none are supplied.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{CompressionLevel: flate.DefaultCompression}
}

var flatePools [flate.BestCompression + 1]sync.Pool

func getFlate(w io.Writer, level int) *flate.Writer {
	if fw, ok := flatePools[level].Get().(*flate.Writer); ok {
		fw.Reset(w)
		return fw
	}
	fw, _ := flate.NewWriter(w, level)
	return fw
}

func putFlate(fw *flate.Writer, level int) {
	flatePools[level].Put(fw)
}

// Writer appends entries to a ZIP container one at a time.
type Writer struct {
	zw      *zip.Writer
	opts    WriterOptions
	current *EntryWriter
	entries []models.EntryInfo
	closed  bool
}

// NewWriter starts a container on w. Levels outside 0..9 fall back to the
// default level.
func NewWriter(w io.Writer, opts WriterOptions) *Writer {
	if opts.CompressionLevel < flate.NoCompression || opts.CompressionLevel > flate.BestCompression {
		opts.CompressionLevel = flate.DefaultCompression
	}
	if opts.CompressionLevel == flate.DefaultCompression {
		opts.CompressionLevel = 6
	}
	if opts.Modified.IsZero() {
		opts.Modified = time.Now()
	}
	return &Writer{zw: zip.NewWriter(w), opts: opts}
}

// BeginEntry starts a new entry. Only one entry may be open at a time;
// the previous one must be sealed first.
func (w *Writer) BeginEntry(name string) (*EntryWriter, error) {
	if w.closed {
		return nil, errs.ErrWriterNotOpen
	}
	if w.current != nil {
		return nil, &errs.EntryError{Entry: name, Err: errs.ErrEntryAlreadyOpen}
	}

	method := zip.Deflate
	if w.opts.CompressionLevel == flate.NoCompression {
		method = zip.Store
	}
	fh := &zip.FileHeader{
		Name:           name,
		Method:         method,
		Flags:          flagDataDescriptor,
		CreatorVersion: zipVersion20,
		ReaderVersion:  zipVersion20,
		Modified:       w.opts.Modified,
	}
	fh.ModifiedDate, fh.ModifiedTime = msDosTime(w.opts.Modified)
	if !isASCII(name) {
		fh.Flags |= flagUTF8
	}

	// The header pointer stays shared with zip.Writer until the next
	// CreateRaw or Close, which is when the data descriptor and central
	// directory are written from it.
	raw, err := w.zw.CreateRaw(fh)
	if err != nil {
		return nil, errs.NewIOError("begin entry", name, err)
	}

	e := &EntryWriter{
		w:     w,
		fh:    fh,
		crc:   crc32.NewIEEE(),
		count: &countWriter{w: raw},
	}
	if method == zip.Deflate {
		e.fw = getFlate(e.count, w.opts.CompressionLevel)
	}
	w.current = e
	return e, nil
}

// WriteEntry writes a complete entry in one call.
func (w *Writer) WriteEntry(name string, data []byte) error {
	e, err := w.BeginEntry(name)
	if err != nil {
		return err
	}
	if err := e.AppendChunk(data); err != nil {
		return err
	}
	return e.Seal()
}

// Entries returns the sealed entries in write order.
func (w *Writer) Entries() []models.EntryInfo {
	out := make([]models.EntryInfo, len(w.entries))
	copy(out, w.entries)
	return out
}

// Close seals any open entry and writes the central directory. It does not
// close the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	var sealErr error
	if w.current != nil {
		sealErr = w.current.Seal()
	}
	w.closed = true
	if err := w.zw.Close(); err != nil {
		return errs.NewIOError("close container", "", err)
	}
	return sealErr
}

// EntryWriter receives the bytes of one entry.
type EntryWriter struct {
	w      *Writer
	fh     *zip.FileHeader
	fw     *flate.Writer
	crc    hash.Hash32
	count  *countWriter
	size   uint64
	sealed bool
}

// Name returns the entry path.
func (e *EntryWriter) Name() string {
	return e.fh.Name
}

// Write implements io.Writer.
func (e *EntryWriter) Write(p []byte) (int, error) {
	if e.sealed {
		return 0, &errs.EntryError{Entry: e.fh.Name, Err: errs.ErrWriterNotOpen}
	}
	var (
		n   int
		err error
	)
	if e.fw != nil {
		n, err = e.fw.Write(p)
	} else {
		n, err = e.count.Write(p)
	}
	e.crc.Write(p[:n])
	e.size += uint64(n)
	if err != nil {
		return n, errs.NewIOError("write entry", e.fh.Name, err)
	}
	return n, nil
}

// AppendChunk compresses and appends p to the entry.
func (e *EntryWriter) AppendChunk(p []byte) error {
	_, err := e.Write(p)
	return err
}

// WriteString appends s to the entry.
func (e *EntryWriter) WriteString(s string) (int, error) {
	return e.Write([]byte(s))
}

// Seal flushes the compressor and records the checksum and sizes of the
// entry. After Seal the next entry may begin.
func (e *EntryWriter) Seal() error {
	if e.sealed {
		return nil
	}
	e.sealed = true
	defer func() { e.w.current = nil }()

	if e.fw != nil {
		err := e.fw.Close()
		putFlate(e.fw, e.w.opts.CompressionLevel)
		e.fw = nil
		if err != nil {
			return errs.NewIOError("seal entry", e.fh.Name, err)
		}
	}

	fh := e.fh
	fh.CRC32 = e.crc.Sum32()
	fh.UncompressedSize64 = e.size
	fh.CompressedSize64 = e.count.n
	if fh.UncompressedSize64 >= math.MaxUint32 || fh.CompressedSize64 >= math.MaxUint32 {
		fh.CompressedSize = math.MaxUint32
		fh.UncompressedSize = math.MaxUint32
		fh.ReaderVersion = zipVersion45
	} else {
		fh.CompressedSize = uint32(fh.CompressedSize64)
		fh.UncompressedSize = uint32(fh.UncompressedSize64)
	}

	e.w.entries = append(e.w.entries, models.EntryInfo{
		Name:             fh.Name,
		Method:           methodName(fh.Method),
		CompressedSize:   fh.CompressedSize64,
		UncompressedSize: fh.UncompressedSize64,
		CRC32:            fh.CRC32,
		Sealed:           true,
	})
	return nil
}

type countWriter struct {
	w io.Writer
	n uint64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}

func msDosTime(t time.Time) (fDate uint16, fTime uint16) {
	if t.Year() < 1980 {
		t = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	fDate = uint16(t.Day() + int(t.Month())<<5 + (t.Year()-1980)<<9)
	fTime = uint16(t.Second()/2 + t.Minute()<<5 + t.Hour()<<11)
	return
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
