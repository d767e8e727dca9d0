package constgen

import (
	"fmt"
	"strconv"
	"strings"
)

// IssuerLen is the fixed width of the CCID issuer identifier.
const IssuerLen = 13

// Kind selects how a constant is declared and formatted.
type Kind uint8

const (
	String Kind = iota
	Uint16
	Uint32
	Address
	Bytes13
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Address:
		return "address"
	case Bytes13:
		return "bytes13"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Constant is one generated declaration. Value must match Kind:
// string for String, uint16 for Uint16, uint32 for Uint32 and Address,
// [IssuerLen]byte for Bytes13.
type Constant struct {
	Name  string
	Kind  Kind
	Value any
	Doc   string
}

// Decl renders the Go declaration for c.
func (c Constant) Decl() (string, error) {
	switch c.Kind {
	case String:
		v, ok := c.Value.(string)
		if !ok {
			return "", c.typeError()
		}
		return fmt.Sprintf("const %s string = %s", c.Name, strconv.Quote(v)), nil
	case Uint16:
		v, ok := c.Value.(uint16)
		if !ok {
			return "", c.typeError()
		}
		return fmt.Sprintf("const %s uint16 = %d", c.Name, v), nil
	case Uint32:
		v, ok := c.Value.(uint32)
		if !ok {
			return "", c.typeError()
		}
		return fmt.Sprintf("const %s uint32 = %d", c.Name, v), nil
	case Address:
		v, ok := c.Value.(uint32)
		if !ok {
			return "", c.typeError()
		}
		return fmt.Sprintf("const %s uintptr = 0x%x", c.Name, v), nil
	case Bytes13:
		v, ok := c.Value.([IssuerLen]byte)
		if !ok {
			return "", c.typeError()
		}
		elems := make([]string, len(v))
		for i, b := range v {
			elems[i] = strconv.Itoa(int(b))
		}
		return fmt.Sprintf("var %s = [%d]byte{%s}", c.Name, IssuerLen, strings.Join(elems, ", ")), nil
	default:
		return "", fmt.Errorf("constant %s: unknown kind %s", c.Name, c.Kind)
	}
}

func (c Constant) typeError() error {
	return fmt.Errorf("constant %s: %T is not a valid %s value", c.Name, c.Value, c.Kind)
}

// IssuerBytes encodes s into the fixed-width issuer array, zero padded on
// the right. Input longer than IssuerLen bytes is cut and truncated is true.
func IssuerBytes(s string) (b [IssuerLen]byte, truncated bool) {
	n := copy(b[:], s)
	return b, n < len(s)
}
