// Package models defines the data structures shared by readers and writers.
package models

import (
	"fmt"
	"math"
	"strconv"
)

// Source identifies the representation a cell was read from or written as.
type Source uint8

const (
	// SourceNone is the zero value for cells built by callers.
	SourceNone Source = iota
	// SourceText is a field of a delimited-text record.
	SourceText
	// SourceSharedString is a packaged cell of type "s" (shared string index).
	SourceSharedString
	// SourceInlineString is a packaged cell of type "inlineStr".
	SourceInlineString
	// SourceNumber is a packaged cell of type "n" or without a type.
	SourceNumber
	// SourceBool is a packaged cell of type "b".
	SourceBool
	// SourceFormulaString is a packaged cell of type "str" (cached formula text).
	SourceFormulaString
	// SourceError is a packaged cell of type "e".
	SourceError
	// SourceDate is a packaged cell of type "d" (ISO 8601 text).
	SourceDate
)

var sourceNames = [...]string{
	SourceNone:          "none",
	SourceText:          "text",
	SourceSharedString:  "s",
	SourceInlineString:  "inlineStr",
	SourceNumber:        "n",
	SourceBool:          "b",
	SourceFormulaString: "str",
	SourceError:         "e",
	SourceDate:          "d",
}

func (s Source) String() string {
	if int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return "Source(" + strconv.Itoa(int(s)) + ")"
}

// Kind is the scalar category of a cell value.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindString
	KindNumber
	KindBool
)

// Cell is a single scalar value.
//
// Value holds nil (empty), string, int64, float64 or bool. NewCell
// normalizes other Go numeric types into int64 or float64.
type Cell struct {
	// Value is the scalar value of the cell.
	Value any
	// Source is the representation the value was read from or written as.
	Source Source
}

// NewCell builds a cell from a Go value.
func NewCell(v any) Cell {
	switch t := v.(type) {
	case nil:
		return Cell{}
	case Cell:
		return t
	case string:
		return Cell{Value: t}
	case []byte:
		return Cell{Value: string(t)}
	case bool:
		return Cell{Value: t}
	case int:
		return Cell{Value: int64(t)}
	case int8:
		return Cell{Value: int64(t)}
	case int16:
		return Cell{Value: int64(t)}
	case int32:
		return Cell{Value: int64(t)}
	case int64:
		return Cell{Value: t}
	case uint8:
		return Cell{Value: int64(t)}
	case uint16:
		return Cell{Value: int64(t)}
	case uint32:
		return Cell{Value: int64(t)}
	case uint:
		if uint64(t) > math.MaxInt64 {
			return Cell{Value: float64(t)}
		}
		return Cell{Value: int64(t)}
	case uint64:
		if t > math.MaxInt64 {
			return Cell{Value: float64(t)}
		}
		return Cell{Value: int64(t)}
	case float32:
		return Cell{Value: float64(t)}
	case float64:
		return Cell{Value: t}
	case fmt.Stringer:
		return Cell{Value: t.String()}
	default:
		return Cell{Value: fmt.Sprint(t)}
	}
}

// StringCell returns a text cell.
func StringCell(s string) Cell {
	return Cell{Value: s}
}

// Kind reports the scalar category of the cell.
func (c Cell) Kind() Kind {
	switch v := c.Value.(type) {
	case nil:
		return KindEmpty
	case string:
		if v == "" {
			return KindEmpty
		}
		return KindString
	case int64, float64:
		return KindNumber
	case bool:
		return KindBool
	default:
		return KindString
	}
}

// IsEmpty reports whether the cell carries no value.
func (c Cell) IsEmpty() bool {
	return c.Kind() == KindEmpty
}

// String returns the textual form of the value, the one written to
// delimited text.
func (c Cell) String() string {
	switch v := c.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return FormatFloat(v)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(v)
	}
}

// FormatFloat renders f in the shortest form that parses back to the same
// value, avoiding exponents for magnitudes a spreadsheet shows in full.
func FormatFloat(f float64) string {
	abs := math.Abs(f)
	if f == 0 || (abs >= 1e-6 && abs < 1e21) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'E', -1, 64)
}

// ParseNumber parses spreadsheet numeric text.
// Returns int64 for integers, float64 for decimals, or false when s is not
// a number.
func ParseNumber(s string) (any, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	return nil, false
}
