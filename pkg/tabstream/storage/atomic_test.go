package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/errs"
)

func TestAtomicFileCommit(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.csv")

	f, err := Create(dest, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := f.Write([]byte("a,b\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("destination exists before commit: %v", err)
	}

	if err := f.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := f.Commit(); err != nil {
		t.Errorf("second Commit = %v, expected nil", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "a,b\n" {
		t.Errorf("content = %q, expected %q", data, "a,b\n")
	}
	if _, err := os.Stat(f.TempName()); !os.IsNotExist(err) {
		t.Errorf("temporary file still present: %v", err)
	}
}

func TestAtomicFileAbort(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.xlsx")

	f, err := Create(dest, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	f.Write([]byte("partial"))
	if err := f.Abort(); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty directory, found %d entries", len(entries))
	}
}

func TestCreateMissingDirectory(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "missing", "out.csv")

	_, err := Create(dest, nil)
	if !errors.Is(err, errs.ErrFileNotFound) {
		t.Errorf("Create(%q) error = %v, expected ErrFileNotFound", dest, err)
	}
}
