package xlsx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/errs"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/models"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/sst"
)

// rowEncoder serializes rows into <row> elements. With a non-nil builder
// text cells reference the shared string table, otherwise they are
// written inline.
type rowEncoder struct {
	shared  *sst.Builder
	columns []string
	buf     bytes.Buffer
}

func (e *rowEncoder) columnName(i int) (string, error) {
	for len(e.columns) <= i {
		name, err := excelize.ColumnNumberToName(len(e.columns) + 1)
		if err != nil {
			return "", err
		}
		e.columns = append(e.columns, name)
	}
	return e.columns[i], nil
}

// encode renders row number rowNum. The returned slice is valid until the
// next call.
func (e *rowEncoder) encode(rowNum int, row models.Row) ([]byte, error) {
	e.buf.Reset()
	num := strconv.Itoa(rowNum)

	e.buf.WriteString(`<row r="`)
	e.buf.WriteString(num)
	e.buf.WriteString(`">`)
	for i, c := range row {
		col, err := e.columnName(i)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum, err)
		}
		e.encodeCell(col+num, c)
	}
	e.buf.WriteString(`</row>`)
	return e.buf.Bytes(), nil
}

func (e *rowEncoder) encodeCell(ref string, c models.Cell) {
	b := &e.buf
	switch v := c.Value.(type) {
	case nil:
		e.emptyCell(ref)
	case string:
		if v == "" {
			e.emptyCell(ref)
			return
		}
		e.textCell(ref, v)
	case bool:
		b.WriteString(`<c r="`)
		b.WriteString(ref)
		if v {
			b.WriteString(`" t="b"><v>1</v></c>`)
		} else {
			b.WriteString(`" t="b"><v>0</v></c>`)
		}
	case int64:
		e.numberCell(ref, strconv.FormatInt(v, 10))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			e.textCell(ref, models.FormatFloat(v))
			return
		}
		e.numberCell(ref, models.FormatFloat(v))
	default:
		e.encodeCell(ref, models.NewCell(v))
	}
}

func (e *rowEncoder) emptyCell(ref string) {
	e.buf.WriteString(`<c r="`)
	e.buf.WriteString(ref)
	e.buf.WriteString(`"/>`)
}

func (e *rowEncoder) numberCell(ref, v string) {
	e.buf.WriteString(`<c r="`)
	e.buf.WriteString(ref)
	e.buf.WriteString(`"><v>`)
	e.buf.WriteString(v)
	e.buf.WriteString(`</v></c>`)
}

func (e *rowEncoder) textCell(ref, v string) {
	b := &e.buf
	b.WriteString(`<c r="`)
	b.WriteString(ref)
	if e.shared != nil {
		b.WriteString(`" t="s"><v>`)
		b.WriteString(strconv.Itoa(e.shared.Internalize(v)))
		b.WriteString(`</v></c>`)
		return
	}
	b.WriteString(`" t="inlineStr"><is><t xml:space="preserve">`)
	escapeText(b, v)
	b.WriteString(`</t></is></c>`)
}

// decodeRow reads the cells of the <row> element start up to its end tag.
// prevRow is the number of the previous row, used when the element has no
// r attribute.
func decodeRow(d *xml.Decoder, start xml.StartElement, table sst.Resolver, prevRow int) (int, models.Row, error) {
	rowNum := prevRow + 1
	if v := attr(start, "r"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, nil, fmt.Errorf("%w: bad row number %q", errs.ErrCorruptContainer, v)
		}
		rowNum = n
	}

	var row models.Row
	for {
		tok, err := d.Token()
		if err != nil {
			return 0, nil, corrupt(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "c" {
				if err := d.Skip(); err != nil {
					return 0, nil, corrupt(err)
				}
				continue
			}
			col := len(row) + 1
			if ref := attr(t, "r"); ref != "" {
				col, _, err = excelize.CellNameToCoordinates(ref)
				if err != nil {
					return 0, nil, fmt.Errorf("%w: bad cell reference %q", errs.ErrCorruptContainer, ref)
				}
			}
			cell, err := decodeCell(d, t, table)
			if err != nil {
				return 0, nil, err
			}
			if col <= len(row) {
				row[col-1] = cell
				continue
			}
			for len(row) < col-1 {
				row = append(row, models.Cell{})
			}
			row = append(row, cell)
		case xml.EndElement:
			return rowNum, row, nil
		}
	}
}

func decodeCell(d *xml.Decoder, start xml.StartElement, table sst.Resolver) (models.Cell, error) {
	typ := attr(start, "t")
	var (
		value    string
		inline   string
		hasValue bool
	)
	for done := false; !done; {
		tok, err := d.Token()
		if err != nil {
			return models.Cell{}, corrupt(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "v":
				value, err = readElementText(d)
				hasValue = true
			case "is":
				inline, err = readStringItem(d)
			default:
				err = d.Skip()
			}
			if err != nil {
				return models.Cell{}, corrupt(err)
			}
		case xml.EndElement:
			done = true
		}
	}

	switch typ {
	case "s":
		if !hasValue {
			return models.Cell{}, nil
		}
		idx, err := strconv.Atoi(value)
		if err != nil {
			return models.Cell{}, fmt.Errorf("%w: bad shared string index %q", errs.ErrCorruptContainer, value)
		}
		if table == nil {
			return models.Cell{}, fmt.Errorf("%w: index %d, workbook has no shared strings", errs.ErrUnresolvedStringIndex, idx)
		}
		s, err := table.Resolve(idx)
		if err != nil {
			return models.Cell{}, err
		}
		return models.Cell{Value: s, Source: models.SourceSharedString}, nil
	case "inlineStr":
		return models.Cell{Value: unescapeText(inline), Source: models.SourceInlineString}, nil
	case "b":
		if !hasValue {
			return models.Cell{}, nil
		}
		return models.Cell{Value: value == "1" || value == "true", Source: models.SourceBool}, nil
	case "str":
		return models.Cell{Value: unescapeText(value), Source: models.SourceFormulaString}, nil
	case "e":
		return models.Cell{Value: value, Source: models.SourceError}, nil
	case "d":
		return models.Cell{Value: value, Source: models.SourceDate}, nil
	default:
		if !hasValue || value == "" {
			return models.Cell{}, nil
		}
		return models.Cell{Value: parseValue(value), Source: models.SourceNumber}, nil
	}
}

// parseValue attempts to parse a string value as a number.
// Returns int64 for integers, float64 for decimals, or the original string.
func parseValue(s string) any {
	if v, ok := models.ParseNumber(strings.TrimSpace(s)); ok {
		return v
	}
	return s
}

// readElementText returns the character data of the current element and
// consumes its end tag.
func readElementText(d *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return sb.String(), err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return sb.String(), nil
}

// readStringItem concatenates the <t> runs of an <is> or <si> element,
// ignoring phonetic runs.
func readStringItem(d *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				s, err := readElementText(d)
				if err != nil {
					return "", err
				}
				sb.WriteString(s)
			case "rPh", "phoneticPr":
				if err := d.Skip(); err != nil {
					return "", err
				}
			default:
				depth++
			}
		case xml.EndElement:
			depth--
		}
	}
	return sb.String(), nil
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func corrupt(err error) error {
	if errors.Is(err, errs.ErrCorruptContainer) || errors.Is(err, errs.ErrIO) {
		return err
	}
	return fmt.Errorf("%w: %v", errs.ErrCorruptContainer, err)
}
