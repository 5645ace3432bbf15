package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/errs"
)

func writeContainer(t *testing.T, level int, entries map[string]string, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf, WriterOptions{CompressionLevel: level})
	for _, name := range order {
		require.NoError(t, w.WriteEntry(name, []byte(entries[name])))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestWriterRoundTripStdlib(t *testing.T) {
	entries := map[string]string{
		"[Content_Types].xml":      `<?xml version="1.0"?><Types/>`,
		"xl/worksheets/sheet1.xml": strings.Repeat("<row><c><v>1</v></c></row>", 1000),
		"empty.txt":                "",
	}
	order := []string{"[Content_Types].xml", "xl/worksheets/sheet1.xml", "empty.txt"}

	for _, level := range []int{0, 1, 6, 9} {
		data := writeContainer(t, level, entries, order)

		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		require.NoError(t, err)
		require.Len(t, zr.File, len(order))
		for i, f := range zr.File {
			require.Equal(t, order[i], f.Name)
			rc, err := f.Open()
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			require.Equal(t, entries[f.Name], string(got), "level %d entry %s", level, f.Name)
			require.Equal(t, crc32.ChecksumIEEE(got), f.CRC32)
		}
	}
}

func TestWriterEntryInfo(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, DefaultWriterOptions())

	e, err := w.BeginEntry("a.xml")
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.NoError(t, e.AppendChunk([]byte("<row/>")))
	}
	require.NoError(t, e.Seal())
	require.NoError(t, w.Close())

	infos := w.Entries()
	require.Len(t, infos, 1)
	require.Equal(t, "a.xml", infos[0].Name)
	require.Equal(t, "deflate", infos[0].Method)
	require.Equal(t, uint64(600), infos[0].UncompressedSize)
	require.Less(t, infos[0].CompressedSize, infos[0].UncompressedSize)
	require.True(t, infos[0].Sealed)
}

func TestWriterOneOpenEntry(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, DefaultWriterOptions())

	_, err := w.BeginEntry("first")
	require.NoError(t, err)
	_, err = w.BeginEntry("second")
	require.ErrorIs(t, err, errs.ErrEntryAlreadyOpen)

	// Close seals the dangling entry.
	require.NoError(t, w.Close())
	require.Len(t, w.Entries(), 1)

	_, err = w.BeginEntry("third")
	require.ErrorIs(t, err, errs.ErrWriterNotOpen)
}

func TestReaderOpenEntry(t *testing.T) {
	entries := map[string]string{
		"xl/workbook.xml":      "<workbook/>",
		"xl/sharedStrings.xml": strings.Repeat("<si><t>x</t></si>", 5000),
	}
	data := writeContainer(t, 6, entries, []string{"xl/workbook.xml", "xl/sharedStrings.xml"})
	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.True(t, r.Has("xl/workbook.xml"))
	require.True(t, r.Has("/XL/Workbook.xml"))
	require.False(t, r.Has("xl/styles.xml"))
	require.Len(t, r.Entries(), 2)

	er, err := r.OpenEntry("xl/sharedStrings.xml")
	require.NoError(t, err)
	var got bytes.Buffer
	chunks := 0
	for {
		chunk, err := er.ReadChunk()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.LessOrEqual(t, len(chunk), ChunkSize)
		got.Write(chunk)
		chunks++
	}
	require.NoError(t, er.Close())
	require.Equal(t, entries["xl/sharedStrings.xml"], got.String())
	require.Greater(t, chunks, 1)

	_, err = r.OpenEntry("xl/missing.xml")
	require.ErrorIs(t, err, errs.ErrEntryNotFound)
	var ee *errs.EntryError
	require.True(t, errors.As(err, &ee))
	require.Equal(t, "xl/missing.xml", ee.Entry)
}

func TestReaderErrors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.xlsx"))
	require.ErrorIs(t, err, errs.ErrFileNotFound)

	path := filepath.Join(t.TempDir(), "garbage.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("this is not a zip archive"), 0o644))
	_, err = Open(path)
	require.ErrorIs(t, err, errs.ErrCorruptContainer)
}

func TestReaderCorruptEntry(t *testing.T) {
	payload := strings.Repeat("abcdefgh", 4096)
	data := writeContainer(t, 0, map[string]string{"a.txt": payload}, []string{"a.txt"})

	// Flip a byte inside the stored payload so the checksum no longer matches.
	idx := bytes.Index(data, []byte("abcdefgh"))
	require.GreaterOrEqual(t, idx, 0)
	data[idx+10] ^= 0xff

	r, err := NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	er, err := r.OpenEntry("a.txt")
	require.NoError(t, err)
	_, err = io.ReadAll(er)
	require.ErrorIs(t, err, errs.ErrCorruptContainer)
}

func TestReaderClosed(t *testing.T) {
	data := writeContainer(t, 6, map[string]string{"a": "b"}, []string{"a"})
	r, err := NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.OpenEntry("a")
	require.ErrorIs(t, err, errs.ErrReaderNotOpen)
}
