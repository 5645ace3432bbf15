// Package storage publishes output files atomically.
//
// Rows are streamed into a hidden temporary sibling of the destination.
// Commit renames it onto the destination; Abort removes it. A destination
// is therefore either complete or absent, never half written.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/errs"
)

// AtomicFile is an *os.File that only appears at its destination on Commit.
type AtomicFile struct {
	f      *os.File
	path   string
	tmp    string
	logger *slog.Logger
	done   bool
}

// Create opens a temporary file next to path. It fails with
// errs.ErrFileNotFound when the destination directory does not exist or is
// not writable.
func Create(path string, logger *slog.Logger) (*AtomicFile, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	if base == "" {
		return nil, fmt.Errorf("%w: %q is a directory", errs.ErrFileNotFound, path)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: directory %s", errs.ErrFileNotFound, dir)
	}

	tmp := filepath.Join(dir, "."+base+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", errs.ErrFileNotFound, err)
		}
		return nil, errs.NewIOError("create", tmp, err)
	}
	return &AtomicFile{f: f, path: path, tmp: tmp, logger: logger}, nil
}

// Write implements io.Writer.
func (a *AtomicFile) Write(p []byte) (int, error) {
	n, err := a.f.Write(p)
	if err != nil {
		return n, errs.NewIOError("write", a.tmp, err)
	}
	return n, nil
}

// Name returns the destination path.
func (a *AtomicFile) Name() string {
	return a.path
}

// TempName returns the path of the temporary file.
func (a *AtomicFile) TempName() string {
	return a.tmp
}

// Commit syncs and closes the temporary file and renames it onto the
// destination. Calling Commit or Abort again is a no-op.
func (a *AtomicFile) Commit() error {
	if a.done {
		return nil
	}
	a.done = true

	if err := a.f.Sync(); err != nil {
		a.f.Close()
		os.Remove(a.tmp)
		return errs.NewIOError("sync", a.tmp, err)
	}
	if err := a.f.Close(); err != nil {
		os.Remove(a.tmp)
		return errs.NewIOError("close", a.tmp, err)
	}
	if err := os.Rename(a.tmp, a.path); err != nil {
		os.Remove(a.tmp)
		return errs.NewIOError("rename", a.path, err)
	}
	a.logger.Debug("published file", "path", a.path)
	return nil
}

// Abort closes and removes the temporary file, leaving the destination
// untouched.
func (a *AtomicFile) Abort() error {
	if a.done {
		return nil
	}
	a.done = true

	a.f.Close()
	if err := os.Remove(a.tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errs.NewIOError("remove", a.tmp, err)
	}
	a.logger.Debug("discarded unpublished file", "path", a.path)
	return nil
}
