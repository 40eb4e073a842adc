package fsprog

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Variable is a named, typed slot in the generated program.
type Variable struct {
	Name    string
	Payload Payload
	Kind    Kind
}

// IsPointer reports whether the variable decays to a pointer when passed to a syscall.
func (v Variable) IsPointer() bool {
	switch v.Payload.(type) {
	case Text, ByteBuffer, OpaquePointer:
		return true
	}
	return false
}

func (v Variable) clone() Variable {
	v.Payload = clonePayload(v.Payload)
	return v
}

func (v Variable) declare(b *strings.Builder) error {
	switch p := v.Payload.(type) {
	case Integer:
		writeLine(b, 1, fmt.Sprintf("long %s = %s;", v.Name, cInt(int64(p))))
	case Text:
		if strings.IndexByte(string(p), 0) >= 0 {
			return fmt.Errorf("variable %s: %w", v.Name, ErrInteriorNUL)
		}
		writeLine(b, 1, fmt.Sprintf("char %s[] = \"%s\\x00\";", v.Name, cEscape([]byte(p))))
	case ByteBuffer:
		writeLine(b, 1, fmt.Sprintf("unsigned char %s[%d];", v.Name, p.Size))
		n := uint32(len(p.Content))
		if p.Content == nil || n < p.Size {
			writeLine(b, 1, fmt.Sprintf("memset(%s, 0, %d);", v.Name, p.Size))
		}
		if p.Content != nil {
			writeLine(b, 1, fmt.Sprintf("memcpy(%s, \"%s\", %d);", v.Name, cEscape(p.Content), min(n, p.Size)))
		}
	case OpaquePointer, MapBase, Unset, nil:
		return fmt.Errorf("variable %s (%T): %w", v.Name, p, ErrUnsupportedPayload)
	default:
		return fmt.Errorf("variable %s (%T): %w", v.Name, p, ErrUnsupportedPayload)
	}
	return nil
}

// cInt renders v as a C integer constant. The most negative value has no
// literal form in C since the literal itself would overflow.
func cInt(v int64) string {
	if v == math.MinInt64 {
		return "(-9223372036854775807L - 1)"
	}
	return strconv.FormatInt(v, 10)
}

// cEscape renders bytes for a C string literal body. Non-printable bytes
// use fixed-width octal escapes so a following digit never extends them.
func cEscape(s []byte) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\'':
			b.WriteString(`\'`)
		default:
			if c < 0x20 || c > 0x7e {
				fmt.Fprintf(&b, `\%03o`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}
