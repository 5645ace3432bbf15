package csv

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/errs"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/models"
)

func readAll(t *testing.T, r *Reader) [][]string {
	t.Helper()
	var out [][]string
	for r.HasNextRow() {
		row, err := r.NextRow()
		if err != nil {
			t.Fatalf("NextRow failed: %v", err)
		}
		out = append(out, row.Strings())
	}
	return out
}

func parse(t *testing.T, input string, opts Options) ([][]string, error) {
	t.Helper()
	r := NewReader(opts)
	if err := r.OpenReader(strings.NewReader(input)); err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer r.Close()

	var out [][]string
	for {
		row, err := r.NextRow()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, row.Strings())
	}
}

func TestReaderSplit(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected [][]string
	}{
		{"simple", "a,b,c\n1,2,3\n", [][]string{{"a", "b", "c"}, {"1", "2", "3"}}},
		{"no trailing newline", "a,b\nc,d", [][]string{{"a", "b"}, {"c", "d"}}},
		{"crlf", "a,b\r\nc,d\r\n", [][]string{{"a", "b"}, {"c", "d"}}},
		{"quoted delimiter", `"a,b",c` + "\n", [][]string{{"a,b", "c"}}},
		{"doubled enclosure", `"say ""hi""",x` + "\n", [][]string{{`say "hi"`, "x"}}},
		{"multiline field", "\"line1\nline2\",z\n", [][]string{{"line1\nline2", "z"}}},
		{"multiline crlf", "\"line1\r\nline2\",z\r\n", [][]string{{"line1\r\nline2", "z"}}},
		{"empty fields", ",,\n", [][]string{{"", "", ""}}},
		{"enclosed empty", `""` + "\n", [][]string{{""}}},
		{"blank lines skipped", "a\n\n\nb\n", [][]string{{"a"}, {"b"}}},
		{"text after enclosure", `"ab"cd,e` + "\n", [][]string{{"abcd", "e"}}},
		{"bom stripped", "\xEF\xBB\xBFa,b\n", [][]string{{"a", "b"}}},
		{"ragged rows", "a\nb,c,d\n", [][]string{{"a"}, {"b", "c", "d"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parse(t, tt.input, DefaultOptions())
			if err != nil {
				t.Fatalf("parse(%q) error: %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("parse(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestReaderCustomDialect(t *testing.T) {
	opts := DefaultOptions()
	opts.Delimiter = ';'
	opts.Enclosure = '\''

	got, err := parse(t, "'a;b';'it''s'\n1;2\n", opts)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	expected := [][]string{{"a;b", "it's"}, {"1", "2"}}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("parse = %q, expected %q", got, expected)
	}
}

func TestReaderPreserveEmptyRows(t *testing.T) {
	opts := DefaultOptions()
	opts.PreserveEmptyRows = true

	got, err := parse(t, "a\n\nb\n", opts)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	expected := [][]string{{"a"}, {}, {"b"}}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("parse = %q, expected %q", got, expected)
	}
}

func TestReaderUnterminatedEnclosure(t *testing.T) {
	got, err := parse(t, "ok,row\n\"open,\nstill open\n", DefaultOptions())

	if !errors.Is(err, errs.ErrMalformedRecord) {
		t.Fatalf("error = %v, expected ErrMalformedRecord", err)
	}
	var recErr *errs.RecordError
	if !errors.As(err, &recErr) {
		t.Fatalf("error %T is not a *RecordError", err)
	}
	if recErr.Line != 2 {
		t.Errorf("RecordError.Line = %d, expected 2", recErr.Line)
	}
	if len(got) != 1 {
		t.Errorf("rows before failure = %d, expected 1", len(got))
	}
}

func TestReaderEncoding(t *testing.T) {
	opts := DefaultOptions()
	opts.Encoding = "windows-1252"

	// 0xE9 is "é" in windows-1252.
	got, err := parse(t, "caf\xe9,1\n", opts)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if got[0][0] != "café" {
		t.Errorf("decoded field = %q, expected %q", got[0][0], "café")
	}
}

func TestReaderUnknownEncoding(t *testing.T) {
	opts := DefaultOptions()
	opts.Encoding = "no-such-charset"

	r := NewReader(opts)
	err := r.OpenReader(strings.NewReader("a"))
	if !errors.Is(err, errs.ErrUnsupportedFormat) {
		t.Errorf("OpenReader error = %v, expected ErrUnsupportedFormat", err)
	}
}

func TestReaderState(t *testing.T) {
	r := NewReader(DefaultOptions())
	if _, err := r.NextRow(); !errors.Is(err, errs.ErrReaderNotOpen) {
		t.Errorf("NextRow before open = %v, expected ErrReaderNotOpen", err)
	}
	if r.HasNextRow() {
		t.Error("HasNextRow before open = true, expected false")
	}

	if err := r.OpenReader(strings.NewReader("a\n")); err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	if err := r.OpenReader(strings.NewReader("a\n")); !errors.Is(err, errs.ErrAlreadyOpen) {
		t.Errorf("second OpenReader = %v, expected ErrAlreadyOpen", err)
	}
	if !r.HasNextSheet() {
		t.Error("HasNextSheet = false, expected true")
	}
	if _, err := r.NextSheet(); err != nil {
		t.Errorf("NextSheet failed: %v", err)
	}
	if _, err := r.NextSheet(); err != io.EOF {
		t.Errorf("second NextSheet = %v, expected io.EOF", err)
	}

	readAll(t, r)
	if _, err := r.NextRow(); err != io.EOF {
		t.Errorf("NextRow after last = %v, expected io.EOF", err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close = %v, expected nil", err)
	}
	if _, err := r.NextRow(); !errors.Is(err, errs.ErrReaderNotOpen) {
		t.Errorf("NextRow after close = %v, expected ErrReaderNotOpen", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	r := NewReader(DefaultOptions())
	err := r.Open(filepath.Join(t.TempDir(), "missing.csv"))
	if !errors.Is(err, errs.ErrFileNotFound) {
		t.Errorf("Open error = %v, expected ErrFileNotFound", err)
	}
}

func TestWriterQuoting(t *testing.T) {
	tests := []struct {
		name     string
		row      models.Row
		expected string
	}{
		{"plain", models.StringRow("a", "b", "c"), "a,b,c\n"},
		{"delimiter", models.StringRow("a,b", "c"), "\"a,b\",c\n"},
		{"enclosure", models.StringRow(`say "hi"`), "\"say \"\"hi\"\"\"\n"},
		{"newline", models.StringRow("x\ny"), "\"x\ny\"\n"},
		{"carriage return", models.StringRow("x\ry"), "\"x\ry\"\n"},
		{"spaces stay bare", models.StringRow(" a ", "b c"), " a ,b c\n"},
		{"lone empty cell", models.StringRow(""), "\"\"\n"},
		{"empty cells", models.StringRow("", ""), ",\n"},
		{"typed values", models.NewRow(int64(1), 2.5, true, nil), "1,2.5,TRUE,\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(DefaultOptions())
			if err := w.OpenWriter(&buf); err != nil {
				t.Fatalf("OpenWriter failed: %v", err)
			}
			if err := w.AppendRow(tt.row); err != nil {
				t.Fatalf("AppendRow failed: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}
			if buf.String() != tt.expected {
				t.Errorf("AppendRow(%q) wrote %q, expected %q", tt.row.Strings(), buf.String(), tt.expected)
			}
		})
	}
}

func TestWriteReadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	w := NewWriter(DefaultOptions())
	if err := w.Open(path); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	w.AppendRow(models.StringRow("a", "b", "c"))
	w.AppendRow(models.StringRow("1", "2", "3"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close = %v, expected nil", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "a,b,c\n1,2,3\n" {
		t.Errorf("file content = %q, expected %q", data, "a,b,c\n1,2,3\n")
	}

	r := NewReader(DefaultOptions())
	if err := r.Open(path); err != nil {
		t.Fatalf("reader Open failed: %v", err)
	}
	defer r.Close()
	got := readAll(t, r)
	expected := [][]string{{"a", "b", "c"}, {"1", "2", "3"}}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("read back %q, expected %q", got, expected)
	}
	if r.Sheets()[0].Name != "out" {
		t.Errorf("sheet name = %q, expected %q", r.Sheets()[0].Name, "out")
	}
}

func TestRoundTripTrickyValues(t *testing.T) {
	rows := []models.Row{
		models.StringRow("plain", "with,comma", `with "quote"`),
		models.StringRow("multi\nline", "crlf\r\ninside", ""),
		models.StringRow(""),
		models.StringRow("ünïcödé", "日本語", "tab\there"),
		models.StringRow(`"`, `""`, ","),
	}

	for _, dialect := range []Options{
		DefaultOptions(),
		{Delimiter: ';', Enclosure: '\'', LineEnding: "\r\n"},
		{Delimiter: '\t', Enclosure: '"', LineEnding: "\n", Encoding: "utf-16le", AddBOM: true},
	} {
		var buf bytes.Buffer
		w := NewWriter(dialect)
		if err := w.OpenWriter(&buf); err != nil {
			t.Fatalf("OpenWriter failed: %v", err)
		}
		if err := w.AppendRows(rows); err != nil {
			t.Fatalf("AppendRows failed: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		got, err := parse(t, buf.String(), dialect)
		if err != nil {
			t.Fatalf("parse error with delimiter %q: %v", dialect.Delimiter, err)
		}
		if len(got) != len(rows) {
			t.Fatalf("read %d rows, expected %d", len(got), len(rows))
		}
		for i, row := range rows {
			if !reflect.DeepEqual(got[i], row.Strings()) {
				t.Errorf("row %d = %q, expected %q", i, got[i], row.Strings())
			}
		}
	}
}

func TestWriterState(t *testing.T) {
	w := NewWriter(DefaultOptions())
	if err := w.AppendRow(models.StringRow("a")); !errors.Is(err, errs.ErrWriterNotOpen) {
		t.Errorf("AppendRow before open = %v, expected ErrWriterNotOpen", err)
	}

	var buf bytes.Buffer
	if err := w.OpenWriter(&buf); err != nil {
		t.Fatalf("OpenWriter failed: %v", err)
	}
	if err := w.OpenWriter(&buf); !errors.Is(err, errs.ErrAlreadyOpen) {
		t.Errorf("second OpenWriter = %v, expected ErrAlreadyOpen", err)
	}
	w.AppendRow(models.StringRow("a"))
	w.Close()

	if err := w.AppendRow(models.StringRow("b")); !errors.Is(err, errs.ErrWriterNotOpen) {
		t.Errorf("AppendRow after close = %v, expected ErrWriterNotOpen", err)
	}
	sheets := w.Sheets()
	if sheets[0].RowCount != 1 || !sheets[0].Finalized {
		t.Errorf("Sheets() = %+v, expected one finalized row", sheets)
	}
}

func TestWriterUnwritableDestination(t *testing.T) {
	w := NewWriter(DefaultOptions())
	err := w.Open(filepath.Join(t.TempDir(), "no", "such", "dir", "out.csv"))
	if !errors.Is(err, errs.ErrFileNotFound) {
		t.Errorf("Open error = %v, expected ErrFileNotFound", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestWriterIOError(t *testing.T) {
	w := NewWriter(DefaultOptions())
	if err := w.OpenWriter(failingWriter{}); err != nil {
		t.Fatalf("OpenWriter failed: %v", err)
	}
	w.AppendRow(models.StringRow("a"))
	err := w.Close()
	if !errors.Is(err, errs.ErrIO) {
		t.Errorf("Close error = %v, expected ErrIO", err)
	}
}

func TestWriterAddBOM(t *testing.T) {
	opts := DefaultOptions()
	opts.AddBOM = true

	var buf bytes.Buffer
	w := NewWriter(opts)
	w.OpenWriter(&buf)
	w.AppendRow(models.StringRow("a"))
	w.Close()

	if !bytes.HasPrefix(buf.Bytes(), []byte("\xEF\xBB\xBF")) {
		t.Errorf("output %q does not start with a UTF-8 BOM", buf.Bytes())
	}
}

// liveHeap reports the heap still reachable after a collection.
func liveHeap() uint64 {
	var ms runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

func TestTwoMillionRows(t *testing.T) {
	if os.Getenv("TABSTREAM_PERF") != "1" {
		t.Skip("set TABSTREAM_PERF=1 to run")
	}
	const (
		rows    = 2_000_000
		ceiling = 10 << 20
		every   = 100_000
	)
	row := func(i int) models.Row {
		n := strconv.Itoa(i + 1)
		return models.StringRow("csv--"+n+"1", "csv--"+n+"2", "csv--"+n+"3")
	}
	path := filepath.Join(t.TempDir(), "perf.csv")

	start := time.Now()
	w := NewWriter(DefaultOptions())
	if err := w.Open(path); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	var peak uint64
	for i := 0; i < rows; i++ {
		if err := w.AppendRow(row(i)); err != nil {
			t.Fatalf("AppendRow(%d) failed: %v", i, err)
		}
		if i%every == 0 {
			peak = max(peak, liveHeap())
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if peak >= ceiling {
		t.Errorf("write heap = %d, expected under %d", peak, ceiling)
	}
	if elapsed := time.Since(start); elapsed > time.Minute {
		t.Errorf("write took %v, expected under 1m", elapsed)
	}

	start = time.Now()
	r := NewReader(DefaultOptions())
	if err := r.Open(path); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()
	peak = 0
	read := 0
	var last []string
	for r.HasNextRow() {
		got, err := r.NextRow()
		if err != nil {
			t.Fatalf("NextRow after %d rows failed: %v", read, err)
		}
		last = got.Strings()
		read++
		if read%every == 0 {
			peak = max(peak, liveHeap())
		}
	}
	if read != rows {
		t.Errorf("read %d rows, expected %d", read, rows)
	}
	if expected := row(rows - 1).Strings(); !reflect.DeepEqual(last, expected) {
		t.Errorf("last row = %q, expected %q", last, expected)
	}
	if peak >= ceiling {
		t.Errorf("read heap = %d, expected under %d", peak, ceiling)
	}
	if elapsed := time.Since(start); elapsed > 150*time.Second {
		t.Errorf("read took %v, expected under 2m30s", elapsed)
	}
}
