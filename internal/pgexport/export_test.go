package pgexport

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/ukaji3/tabstream-go/pkg/tabstream"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/models"
)

// fakeRows replays fixed values through the pgx.Rows interface.
type fakeRows struct {
	fields []pgconn.FieldDescription
	values [][]any
	pos    int
	err    error
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }
func (r *fakeRows) Scan(dest ...any) error                       { return errors.New("not supported") }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.values) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.values[r.pos-1], nil
}

type fakeConn struct {
	rows  *fakeRows
	query string
	args  []any
	err   error
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	c.query = sql
	c.args = args
	if c.err != nil {
		return nil, c.err
	}
	return c.rows, nil
}

func csvWriter(t *testing.T, buf *bytes.Buffer) tabstream.Writer {
	t.Helper()
	w, err := tabstream.NewWriter(tabstream.FormatCSV, tabstream.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, w.OpenWriter(buf))
	return w
}

func TestExport(t *testing.T) {
	rows := &fakeRows{
		fields: []pgconn.FieldDescription{
			{Name: "id", DataTypeOID: pgtype.Int8OID},
			{Name: "name", DataTypeOID: pgtype.TextOID},
			{Name: "joined", DataTypeOID: pgtype.DateOID},
		},
		values: [][]any{
			{int64(1), "ada", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
			{int64(2), "grace, rear admiral", nil},
		},
	}
	conn := &fakeConn{rows: rows}

	var buf bytes.Buffer
	w := csvWriter(t, &buf)
	n, err := Export(context.Background(), conn, "SELECT id, name, joined FROM people WHERE id > $1", w, true, 0)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.Equal(t, 2, n)
	require.True(t, rows.closed)
	require.Equal(t, []any{0}, conn.args)
	require.Equal(t, "id,name,joined\n1,ada,2024-03-01\n2,\"grace, rear admiral\",\n", buf.String())
}

func TestExportWithoutHeader(t *testing.T) {
	rows := &fakeRows{
		fields: []pgconn.FieldDescription{{Name: "n", DataTypeOID: pgtype.Int4OID}},
		values: [][]any{{int32(7)}},
	}

	var buf bytes.Buffer
	w := csvWriter(t, &buf)
	n, err := Export(context.Background(), &fakeConn{rows: rows}, "SELECT 7", w, false)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.Equal(t, 1, n)
	require.Equal(t, "7\n", buf.String())
}

func TestExportErrors(t *testing.T) {
	queryErr := errors.New("relation does not exist")
	var buf bytes.Buffer
	_, err := Export(context.Background(), &fakeConn{err: queryErr}, "SELECT * FROM nope", csvWriter(t, &buf), true)
	require.ErrorIs(t, err, queryErr)

	streamErr := errors.New("connection reset")
	rows := &fakeRows{
		fields: []pgconn.FieldDescription{{Name: "n"}},
		values: [][]any{{int64(1)}},
		err:    streamErr,
	}
	n, err := Export(context.Background(), &fakeConn{rows: rows}, "SELECT n", csvWriter(t, &buf), false)
	require.ErrorIs(t, err, streamErr)
	require.Equal(t, 1, n)

	w, err := tabstream.NewWriter(tabstream.FormatCSV, tabstream.DefaultOptions())
	require.NoError(t, err)
	_, err = Export(context.Background(), &fakeConn{rows: &fakeRows{fields: rows.fields}}, "SELECT n", w, true)
	require.ErrorIs(t, err, tabstream.ErrWriterNotOpen)
}

func TestCellFor(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		oid      uint32
		value    any
		expected any
	}{
		{"null", pgtype.TextOID, nil, nil},
		{"integral numeric", pgtype.NumericOID, pgtype.Numeric{Int: big.NewInt(42), Exp: 1, Valid: true}, int64(420)},
		{"fractional numeric", pgtype.NumericOID, pgtype.Numeric{Int: big.NewInt(1250), Exp: -2, Valid: true}, 12.5},
		{"null numeric", pgtype.NumericOID, pgtype.Numeric{}, nil},
		{"nan numeric", pgtype.NumericOID, pgtype.Numeric{NaN: true, Valid: true}, "NaN"},
		{"date", pgtype.DateOID, at, "2024-03-01"},
		{"timestamp", pgtype.TimestampOID, at, "2024-03-01T12:30:00"},
		{"timestamptz", pgtype.TimestamptzOID, at, "2024-03-01T12:30:00Z"},
		{"uuid", pgtype.UUIDOID, [16]byte(id), id.String()},
		{"bytea", pgtype.ByteaOID, []byte{0xde, 0xad}, `\xdead`},
		{"json object", pgtype.JSONBOID, map[string]any{"k": "v"}, `{"k":"v"}`},
		{"json array", pgtype.JSONBOID, []any{1.0, "a"}, `[1,"a"]`},
		{"bool", pgtype.BoolOID, true, true},
		{"float", pgtype.Float8OID, 0.5, 0.5},
		{"smallint", pgtype.Int2OID, int16(-3), int64(-3)},
		{"text", pgtype.TextOID, "plain", "plain"},
	}

	for _, tt := range tests {
		got := cellFor(tt.oid, tt.value)
		if got.Value != tt.expected {
			t.Errorf("cellFor(%s) = %#v, expected %#v", tt.name, got.Value, tt.expected)
		}
	}
}

func TestRowFromValuesWithoutFields(t *testing.T) {
	row := RowFromValues(nil, []any{"a", int64(1)})
	require.Equal(t, models.NewRow("a", int64(1)), row)
}
