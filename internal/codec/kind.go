package codec

import (
	"strings"
)

// Kind is the primitive type of a column and of its index keys. The numeric
// values are the type codes written into the low byte of the tree header flags
// and into the items file header.
type Kind uint8

const (
	KindInvalid Kind = 0
	KindBool    Kind = 3
	KindChar    Kind = 4
	KindByte    Kind = 6
	KindInt16   Kind = 7
	KindInt32   Kind = 9
	KindInt64   Kind = 11
	KindSingle  Kind = 13
	KindDouble  Kind = 14
	KindDecimal Kind = 15
	KindString  Kind = 18
)

// Kinds lists every supported kind in declaration order.
var Kinds = []Kind{
	KindBool, KindChar, KindByte, KindInt16, KindInt32,
	KindInt64, KindSingle, KindDouble, KindDecimal, KindString,
}

var kindNames = map[Kind]string{
	KindBool:    "Bool",
	KindChar:    "Char",
	KindByte:    "Byte",
	KindInt16:   "Int16",
	KindInt32:   "Int32",
	KindInt64:   "Int64",
	KindSingle:  "Single",
	KindDouble:  "Double",
	KindDecimal: "Decimal",
	KindString:  "String",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Invalid"
}

func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// IsInteger reports whether keys of this kind live in Key.I as whole numbers.
func (k Kind) IsInteger() bool {
	switch k {
	case KindByte, KindInt16, KindInt32, KindInt64:
		return true
	}
	return false
}

// IsNumeric reports whether values of this kind can be summed/averaged.
func (k Kind) IsNumeric() bool {
	return k.IsInteger() || k == KindSingle || k == KindDouble || k == KindDecimal
}

// FixedSize is the encoded key width in bytes, or 0 for variable-length kinds.
func (k Kind) FixedSize() int {
	switch k {
	case KindBool, KindByte:
		return 1
	case KindChar, KindInt16:
		return 2
	case KindInt32, KindSingle:
		return 4
	case KindInt64, KindDouble:
		return 8
	case KindDecimal:
		return 16
	}
	return 0
}

// KindByName resolves a type name (case-insensitive). A few common SQL
// spellings are accepted as aliases.
func KindByName(name string) (Kind, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "BOOL", "BOOLEAN":
		return KindBool, true
	case "CHAR":
		return KindChar, true
	case "BYTE":
		return KindByte, true
	case "INT16", "SMALLINT":
		return KindInt16, true
	case "INT32", "INT", "INTEGER":
		return KindInt32, true
	case "INT64", "BIGINT":
		return KindInt64, true
	case "SINGLE", "FLOAT":
		return KindSingle, true
	case "DOUBLE":
		return KindDouble, true
	case "DECIMAL":
		return KindDecimal, true
	case "STRING", "TEXT":
		return KindString, true
	}
	return KindInvalid, false
}

// MarshalText lets kinds round-trip through the JSON table meta by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	kind, ok := KindByName(string(b))
	if !ok {
		return ErrUnknownKind
	}
	*k = kind
	return nil
}
