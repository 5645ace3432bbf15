package sst

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/errs"
)

const (
	// DefaultMemoryThreshold is the largest declared table kept in memory.
	DefaultMemoryThreshold = 100_000
	// DefaultChunkSize is the number of strings per FileTable chunk.
	DefaultChunkSize = 10_000
)

// Resolver maps a shared string index to its value.
type Resolver interface {
	Resolve(index int) (string, error)
}

// Table is a Resolver filled once, in index order, before any lookup.
type Table interface {
	Resolver
	Add(value string) error
	Finish() error
	Len() int
	Close() error
}

// Options selects and tunes the table storage.
type Options struct {
	// MemoryThreshold is the largest declared unique count kept in memory.
	MemoryThreshold int
	// ChunkSize is the number of strings per file chunk.
	ChunkSize int
	// TempDir holds file chunks. Empty means os.TempDir().
	TempDir string
	Logger  *slog.Logger
}

// DefaultOptions returns the default thresholds.
func DefaultOptions() Options {
	return Options{MemoryThreshold: DefaultMemoryThreshold, ChunkSize: DefaultChunkSize}
}

// NewTable picks the storage for a table declaring uniqueCount entries. A
// negative count means the table did not declare its size.
func NewTable(uniqueCount int, opts Options) (Table, error) {
	if opts.MemoryThreshold <= 0 {
		opts.MemoryThreshold = DefaultMemoryThreshold
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if uniqueCount >= 0 && uniqueCount <= opts.MemoryThreshold {
		opts.Logger.Debug("shared strings kept in memory", "unique_count", uniqueCount)
		return NewMemoryTable(uniqueCount), nil
	}
	opts.Logger.Debug("shared strings spilled to disk", "unique_count", uniqueCount)
	return NewFileTable(opts.TempDir, opts.ChunkSize)
}

// MemoryTable holds every string in a slice.
type MemoryTable struct {
	values []string
}

// NewMemoryTable returns a table with room for capacity strings.
func NewMemoryTable(capacity int) *MemoryTable {
	return &MemoryTable{values: make([]string, 0, capacity)}
}

func (m *MemoryTable) Add(value string) error {
	m.values = append(m.values, value)
	return nil
}

func (m *MemoryTable) Finish() error { return nil }

func (m *MemoryTable) Len() int { return len(m.values) }

func (m *MemoryTable) Resolve(index int) (string, error) {
	if index < 0 || index >= len(m.values) {
		return "", unresolved(index, len(m.values))
	}
	return m.values[index], nil
}

func (m *MemoryTable) Close() error {
	m.values = nil
	return nil
}

// FileTable stores strings in fixed-size chunk files and keeps only the
// most recently used chunk in memory.
type FileTable struct {
	dir       string
	chunkSize int
	chunks    []string
	pending   []string
	n         int

	loaded    []string
	loadedIdx int
}

// NewFileTable creates a table whose chunks live in a fresh directory
// under parent.
func NewFileTable(parent string, chunkSize int) (*FileTable, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	dir, err := os.MkdirTemp(parent, "tabstream-sst-")
	if err != nil {
		return nil, errs.NewIOError("mkdir", parent, err)
	}
	return &FileTable{dir: dir, chunkSize: chunkSize, loadedIdx: -1}, nil
}

func (f *FileTable) Add(value string) error {
	f.pending = append(f.pending, value)
	f.n++
	if len(f.pending) == f.chunkSize {
		return f.flush()
	}
	return nil
}

// Finish writes the last partial chunk.
func (f *FileTable) Finish() error {
	if len(f.pending) == 0 {
		return nil
	}
	return f.flush()
}

func (f *FileTable) Len() int { return f.n }

func (f *FileTable) flush() error {
	path := filepath.Join(f.dir, "chunk-"+strconv.Itoa(len(f.chunks)))
	file, err := os.Create(path)
	if err != nil {
		return errs.NewIOError("create", path, err)
	}
	bw := bufio.NewWriter(file)
	var lenBuf [binary.MaxVarintLen64]byte
	for _, s := range f.pending {
		n := binary.PutUvarint(lenBuf[:], uint64(len(s)))
		bw.Write(lenBuf[:n])
		bw.WriteString(s)
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		return errs.NewIOError("write", path, err)
	}
	if err := file.Close(); err != nil {
		return errs.NewIOError("close", path, err)
	}
	f.chunks = append(f.chunks, path)
	f.pending = f.pending[:0]
	return nil
}

func (f *FileTable) Resolve(index int) (string, error) {
	if index < 0 || index >= f.n {
		return "", unresolved(index, f.n)
	}
	chunk := index / f.chunkSize
	offset := index % f.chunkSize
	if chunk == len(f.chunks) {
		// Not yet flushed.
		return f.pending[offset], nil
	}
	if chunk != f.loadedIdx {
		if err := f.load(chunk); err != nil {
			return "", err
		}
	}
	return f.loaded[offset], nil
}

func (f *FileTable) load(chunk int) error {
	path := f.chunks[chunk]
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.NewIOError("read", path, err)
	}
	f.loadedIdx = -1
	values := f.loaded[:0]
	for len(data) > 0 {
		n, size := binary.Uvarint(data)
		if size <= 0 || uint64(len(data)-size) < n {
			return fmt.Errorf("%w: shared string chunk %d is truncated", errs.ErrCorruptContainer, chunk)
		}
		data = data[size:]
		values = append(values, string(data[:n]))
		data = data[n:]
	}
	f.loaded = values
	f.loadedIdx = chunk
	return nil
}

// Close removes the chunk files.
func (f *FileTable) Close() error {
	f.loaded = nil
	f.pending = nil
	if f.dir == "" {
		return nil
	}
	dir := f.dir
	f.dir = ""
	if err := os.RemoveAll(dir); err != nil {
		return errs.NewIOError("remove", dir, err)
	}
	return nil
}

func unresolved(index, size int) error {
	return fmt.Errorf("%w: index %d, table has %d entries", errs.ErrUnresolvedStringIndex, index, size)
}
