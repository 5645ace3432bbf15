// Package archive streams individual members of a ZIP container.
//
// Reading resolves members through the central directory only and hands
// out forward-only decompressing streams, so no member is ever extracted
// or buffered whole. Writing appends one member at a time, compressing
// bytes as they arrive and sealing the member before the next one starts.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/flate"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/errs"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/models"
)

// ChunkSize is the size of the buffer ReadChunk fills.
const ChunkSize = 32 * 1024

// Reader gives access to the members of a ZIP container.
type Reader struct {
	zr     *zip.Reader
	file   *os.File
	byName map[string]*zip.File
	folded map[string]*zip.File
	closed bool
}

// Open opens the container at path. It fails with errs.ErrFileNotFound when
// the file is missing and errs.ErrCorruptContainer when the central
// directory cannot be read. The file handle is released on failure.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", errs.ErrFileNotFound, path)
		}
		return nil, errs.NewIOError("open", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errs.NewIOError("stat", path, err)
	}

	r, err := NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// NewReader reads the central directory of a container of the given size.
func NewReader(ra io.ReaderAt, size int64) (*Reader, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("%w: %v", errs.ErrCorruptContainer, err)
	}
	zr.RegisterDecompressor(zip.Deflate, flate.NewReader)

	r := &Reader{
		zr:     zr,
		byName: make(map[string]*zip.File, len(zr.File)),
		folded: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		name := strings.TrimPrefix(f.Name, "/")
		r.byName[name] = f
		r.folded[strings.ToLower(name)] = f
	}
	return r, nil
}

func (r *Reader) lookup(name string) (*zip.File, bool) {
	name = strings.TrimPrefix(name, "/")
	if f, ok := r.byName[name]; ok {
		return f, true
	}
	f, ok := r.folded[strings.ToLower(name)]
	return f, ok
}

// Has reports whether the container holds a member called name.
func (r *Reader) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Entries lists the members in directory order.
func (r *Reader) Entries() []models.EntryInfo {
	out := make([]models.EntryInfo, 0, len(r.zr.File))
	for _, f := range r.zr.File {
		out = append(out, models.EntryInfo{
			Name:             f.Name,
			Method:           methodName(f.Method),
			CompressedSize:   f.CompressedSize64,
			UncompressedSize: f.UncompressedSize64,
			CRC32:            f.CRC32,
			Sealed:           true,
		})
	}
	return out
}

// OpenEntry opens a forward-only stream over the decompressed bytes of the
// named member.
func (r *Reader) OpenEntry(name string) (*EntryReader, error) {
	if r.closed {
		return nil, errs.ErrReaderNotOpen
	}
	f, ok := r.lookup(name)
	if !ok {
		return nil, &errs.EntryError{Entry: name, Err: errs.ErrEntryNotFound}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, &errs.EntryError{Entry: name, Err: classify(err)}
	}
	return &EntryReader{name: f.Name, rc: rc}, nil
}

// Close releases the underlying file. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return errs.NewIOError("close", r.file.Name(), err)
		}
	}
	return nil
}

// EntryReader streams one member.
type EntryReader struct {
	name   string
	rc     io.ReadCloser
	buf    []byte
	closed bool
}

// Name returns the member name.
func (e *EntryReader) Name() string {
	return e.name
}

// Read implements io.Reader.
func (e *EntryReader) Read(p []byte) (int, error) {
	if e.closed {
		return 0, io.EOF
	}
	n, err := e.rc.Read(p)
	if err != nil && err != io.EOF {
		return n, &errs.EntryError{Entry: e.name, Err: classify(err)}
	}
	return n, err
}

// ReadChunk returns the next decompressed chunk of the member, or io.EOF
// once the member is exhausted. The slice is only valid until the next
// call.
func (e *EntryReader) ReadChunk() ([]byte, error) {
	if e.buf == nil {
		e.buf = make([]byte, ChunkSize)
	}
	for {
		n, err := e.Read(e.buf)
		if n > 0 {
			if err == io.EOF {
				err = nil
			}
			return e.buf[:n], err
		}
		if err != nil {
			return nil, err
		}
	}
}

// Close releases the decompressor.
func (e *EntryReader) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.rc.Close()
}

func classify(err error) error {
	var corrupt flate.CorruptInputError
	switch {
	case errors.Is(err, zip.ErrChecksum),
		errors.Is(err, zip.ErrFormat),
		errors.Is(err, zip.ErrAlgorithm),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &corrupt):
		return fmt.Errorf("%w: %v", errs.ErrCorruptContainer, err)
	default:
		return errs.NewIOError("read", "", err)
	}
}

func methodName(m uint16) string {
	switch m {
	case zip.Store:
		return "store"
	case zip.Deflate:
		return "deflate"
	default:
		return fmt.Sprintf("method(%d)", m)
	}
}
