// Package pgexport streams the result of a PostgreSQL query into a
// tabstream writer, one row at a time.
package pgexport

import (
	"context"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ukaji3/tabstream-go/pkg/tabstream"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/models"
)

// Querier runs a query. *pgx.Conn and *pgxpool.Pool satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Export runs query and appends every result row to w, preceded by the
// column names when header is set. w must already be open; Export does
// not close it. The returned count excludes the header row.
func Export(ctx context.Context, conn Querier, query string, w tabstream.Writer, header bool, args ...any) (int, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	if header {
		names := make([]string, len(fields))
		for i, f := range fields {
			names[i] = f.Name
		}
		if err := w.AppendRow(models.StringRow(names...)); err != nil {
			return 0, err
		}
	}

	n := 0
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return n, fmt.Errorf("row %d: %w", n+1, err)
		}
		if err := w.AppendRow(RowFromValues(fields, values)); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("query: %w", err)
	}
	return n, nil
}

// RowFromValues maps decoded column values to a row.
func RowFromValues(fields []pgconn.FieldDescription, values []any) models.Row {
	row := make(models.Row, len(values))
	for i, v := range values {
		var oid uint32
		if i < len(fields) {
			oid = fields[i].DataTypeOID
		}
		row[i] = cellFor(oid, v)
	}
	return row
}

// cellFor converts one decoded value into a cell. Values the engine has
// no scalar for are written as their PostgreSQL text form.
func cellFor(oid uint32, v any) models.Cell {
	switch val := v.(type) {
	case nil:
		return models.Cell{}

	case pgtype.Numeric:
		return numericCell(val)

	case time.Time:
		switch oid {
		case pgtype.DateOID:
			return models.StringCell(val.Format(time.DateOnly))
		case pgtype.TimestampOID:
			return models.StringCell(val.Format("2006-01-02T15:04:05.999999"))
		}
		return models.StringCell(val.Format(time.RFC3339Nano))

	case [16]byte:
		return models.StringCell(uuid.UUID(val).String())

	case []byte:
		if oid == pgtype.ByteaOID {
			return models.StringCell(`\x` + hex.EncodeToString(val))
		}
		return models.StringCell(string(val))

	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return models.StringCell(fmt.Sprint(val))
		}
		return models.StringCell(string(b))

	case driver.Valuer:
		dv, err := val.Value()
		if err != nil {
			return models.StringCell(fmt.Sprint(val))
		}
		return models.NewCell(dv)
	}
	return models.NewCell(v)
}

// numericCell keeps integral numerics that fit int64 exact and converts
// the rest to float64. NaN and infinities are kept as text.
func numericCell(n pgtype.Numeric) models.Cell {
	if !n.Valid {
		return models.Cell{}
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		v, err := n.Value()
		if err != nil {
			return models.Cell{}
		}
		return models.NewCell(v)
	}
	if n.Exp >= 0 {
		if i, err := n.Int64Value(); err == nil && i.Valid {
			return models.NewCell(i.Int64)
		}
	}
	f, err := n.Float64Value()
	if err != nil || !f.Valid {
		return models.Cell{}
	}
	return models.NewCell(f.Float64)
}
