package xlsx

import (
	"bytes"
	"strconv"
	"strings"
	"unicode/utf8"
)

const hexDigits = "0123456789ABCDEF"

// isEscapeToken reports whether s starts with an _xHHHH_ token.
func isEscapeToken(s string) bool {
	if len(s) < 7 || s[0] != '_' || s[1] != 'x' || s[6] != '_' {
		return false
	}
	for i := 2; i < 6; i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

// needsControlEscape reports control characters XML 1.0 cannot carry, and
// carriage returns, which parsers fold into line feeds.
func needsControlEscape(r rune) bool {
	return r < 0x20 && r != '\t' && r != '\n'
}

func writeEscapeToken(buf *bytes.Buffer, r rune) {
	buf.WriteString("_x")
	buf.WriteByte(hexDigits[(r>>12)&0xF])
	buf.WriteByte(hexDigits[(r>>8)&0xF])
	buf.WriteByte(hexDigits[(r>>4)&0xF])
	buf.WriteByte(hexDigits[r&0xF])
	buf.WriteByte('_')
}

// escapeText appends s to buf as spreadsheet cell text: markup characters
// become entities, disallowed control characters become _xHHHH_ tokens, a
// literal token is protected with _x005F, and code points outside the XML
// character ranges become U+FFFD.
func escapeText(buf *bytes.Buffer, s string) {
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch {
			case c == '&':
				buf.WriteString("&amp;")
			case c == '<':
				buf.WriteString("&lt;")
			case c == '>':
				buf.WriteString("&gt;")
			case c == '_' && isEscapeToken(s[i:]):
				buf.WriteString("_x005F_")
			case needsControlEscape(rune(c)):
				writeEscapeToken(buf, rune(c))
			default:
				buf.WriteByte(c)
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if (r == utf8.RuneError && size == 1) || r == 0xFFFE || r == 0xFFFF {
			buf.WriteRune(utf8.RuneError)
		} else {
			buf.WriteString(s[i : i+size])
		}
		i += size
	}
}

// escapeAttr appends s to buf as an attribute value.
func escapeAttr(buf *bytes.Buffer, s string) {
	for _, r := range s {
		switch r {
		case '&':
			buf.WriteString("&amp;")
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		case '"':
			buf.WriteString("&quot;")
		case '\'':
			buf.WriteString("&apos;")
		default:
			buf.WriteRune(r)
		}
	}
}

// unescapeText reverses the _xHHHH_ tokens of escapeText. Entities are
// already resolved by the XML decoder.
func unescapeText(s string) string {
	if !strings.Contains(s, "_x") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '_' && isEscapeToken(s[i:]) {
			v, _ := strconv.ParseUint(s[i+2:i+6], 16, 32)
			sb.WriteRune(rune(v))
			i += 7
			continue
		}
		sb.WriteByte(s[i])
		i++
	}
	return sb.String()
}
