// Package sniff classifies tabular input by its leading bytes and looks
// inside OLE2 compound files, which this engine recognizes but does not
// read.
package sniff

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/errs"
)

// HeaderSize is the number of leading bytes Header inspects.
const HeaderSize = 512

// Kind is the container family of a file.
type Kind int

const (
	KindEmpty Kind = iota
	KindZip
	KindOLE
	KindText
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindZip:
		return "zip"
	case KindOLE:
		return "ole"
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var (
	zipLocalMagic = []byte("PK\x03\x04")
	zipEmptyMagic = []byte("PK\x05\x06")
	oleMagic      = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Header classifies b, the first bytes of a file.
func Header(b []byte) Kind {
	switch {
	case len(b) == 0:
		return KindEmpty
	case bytes.HasPrefix(b, zipLocalMagic), bytes.HasPrefix(b, zipEmptyMagic):
		return KindZip
	case bytes.HasPrefix(b, oleMagic):
		return KindOLE
	case bytes.HasPrefix(b, bomUTF8), bytes.HasPrefix(b, bomUTF16LE), bytes.HasPrefix(b, bomUTF16BE):
		return KindText
	}
	if bytes.IndexByte(b, 0) >= 0 {
		return KindBinary
	}
	if len(b) >= HeaderSize {
		// A multi-byte sequence may be cut at the end of the sample.
		b = b[:len(b)-utf8.UTFMax]
	}
	if utf8.Valid(b) {
		return KindText
	}
	// Single-byte encodings are text as long as control bytes stay rare.
	ctl := 0
	for _, c := range b {
		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
			ctl++
		}
	}
	if ctl*10 > len(b) {
		return KindBinary
	}
	return KindText
}

// File reads the header of the file at path and classifies it.
func File(path string) (Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return KindEmpty, fmt.Errorf("%w: %s", errs.ErrFileNotFound, path)
		}
		return KindEmpty, errs.NewIOError("open", path, err)
	}
	defer f.Close()

	buf := make([]byte, HeaderSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return KindEmpty, errs.NewIOError("read", path, err)
	}
	return Header(buf[:n]), nil
}
