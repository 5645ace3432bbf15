// Package errs defines the error taxonomy shared by every tabstream package.
//
// Callers match categories with errors.Is against the sentinels below; the
// typed errors carry the location of a failure and unwrap to a sentinel.
package errs

import (
	"errors"
	"fmt"
)

// I/O against the underlying storage.
var ErrIO = errors.New("i/o error")

// ErrFileNotFound indicates the source does not exist or the destination
// directory cannot receive a file.
var ErrFileNotFound = errors.New("file not found")

// ErrUnsupportedFormat indicates the input is not a format this engine reads.
var ErrUnsupportedFormat = errors.New("unsupported format")

// ErrMalformedRecord indicates a delimited-text record that cannot be parsed.
var ErrMalformedRecord = errors.New("malformed record")

// Packaged-format structural violations.
var (
	ErrCorruptContainer      = errors.New("corrupt container")
	ErrEntryNotFound         = errors.New("entry not found")
	ErrUnresolvedStringIndex = errors.New("unresolved shared string index")
)

// Caller misuse of a session.
var (
	ErrReaderNotOpen    = errors.New("reader is not open")
	ErrWriterNotOpen    = errors.New("writer is not open")
	ErrAlreadyOpen      = errors.New("session is already open")
	ErrEntryAlreadyOpen = errors.New("another entry is already open")
	ErrNoCurrentSheet   = errors.New("no current sheet")
)

// ErrSheetRowLimitExceeded is returned by an append that would push the
// current sheet past its row ceiling while automatic sheet creation is off.
var ErrSheetRowLimitExceeded = errors.New("sheet row limit exceeded")

// ErrInvalidSheetName indicates a sheet name the packaged format rejects.
var ErrInvalidSheetName = errors.New("invalid sheet name")

// IOError records a storage failure. It matches ErrIO as well as the
// wrapped cause.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Is reports every IOError as ErrIO.
func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

// NewIOError wraps err unless it is nil.
func NewIOError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// RecordError reports a per-record parse failure of the delimited-text
// engine. Line is the 1-based physical line where the record started.
type RecordError struct {
	Line int
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record starting on line %d: %v", e.Line, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// EntryError ties a failure to a named container entry.
type EntryError struct {
	Entry string
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %q: %v", e.Entry, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// SheetError represents an error while processing one sheet.
type SheetError struct {
	SheetName string
	Component string // "rows", "cells", "shared_strings", "manifest"
	Err       error
}

func (e *SheetError) Error() string {
	return fmt.Sprintf("sheet %q (%s): %v", e.SheetName, e.Component, e.Err)
}

func (e *SheetError) Unwrap() error {
	return e.Err
}

// NewSheetError creates a new SheetError.
func NewSheetError(sheetName, component string, err error) *SheetError {
	return &SheetError{
		SheetName: sheetName,
		Component: component,
		Err:       err,
	}
}
