package codec

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Key is a single typed value. Which field holds the payload depends on Kind:
// integer kinds, Char and Bool use I; Single and Double use F; Decimal uses D;
// String uses S.
type Key struct {
	Kind Kind
	I    int64
	F    float64
	D    decimal.Decimal
	S    string
}

func Bool(v bool) Key {
	if v {
		return Key{Kind: KindBool, I: 1}
	}
	return Key{Kind: KindBool}
}

func Char(r rune) Key               { return Key{Kind: KindChar, I: int64(r)} }
func Byte(v uint8) Key              { return Key{Kind: KindByte, I: int64(v)} }
func Int16(v int16) Key             { return Key{Kind: KindInt16, I: int64(v)} }
func Int32(v int32) Key             { return Key{Kind: KindInt32, I: int64(v)} }
func Int64(v int64) Key             { return Key{Kind: KindInt64, I: v} }
func Single(v float32) Key          { return Key{Kind: KindSingle, F: float64(v)} }
func Double(v float64) Key          { return Key{Kind: KindDouble, F: v} }
func Decimal(v decimal.Decimal) Key { return Key{Kind: KindDecimal, D: v} }
func String(v string) Key           { return Key{Kind: KindString, S: v} }

// Compare orders two keys. Keys of different kinds order by kind code so the
// relation stays total; callers normally convert first.
func Compare(a, b Key) int {
	if a.Kind != b.Kind {
		return cmp.Compare(a.Kind, b.Kind)
	}
	switch a.Kind {
	case KindSingle, KindDouble:
		return cmp.Compare(a.F, b.F)
	case KindDecimal:
		return a.D.Cmp(b.D)
	case KindString:
		return strings.Compare(a.S, b.S)
	default:
		return cmp.Compare(a.I, b.I)
	}
}

func (k Key) Equal(o Key) bool { return Compare(k, o) == 0 }

// String renders the value the way it would appear in a CSV cell.
func (k Key) String() string {
	switch k.Kind {
	case KindBool:
		return strconv.FormatBool(k.I != 0)
	case KindChar:
		return string(rune(k.I))
	case KindSingle:
		return strconv.FormatFloat(k.F, 'g', -1, 32)
	case KindDouble:
		return strconv.FormatFloat(k.F, 'g', -1, 64)
	case KindDecimal:
		return k.D.String()
	case KindString:
		return k.S
	case KindInvalid:
		return "<invalid>"
	default:
		return strconv.FormatInt(k.I, 10)
	}
}

// Literal renders the value as a query literal: strings are single-quoted
// with embedded quotes doubled.
func (k Key) Literal() string {
	switch k.Kind {
	case KindString, KindChar:
		return "'" + strings.ReplaceAll(k.String(), "'", "''") + "'"
	case KindSingle, KindDouble:
		if !math.IsInf(k.F, 0) && !math.IsNaN(k.F) && k.F == math.Trunc(k.F) {
			return strconv.FormatFloat(k.F, 'f', 1, 64)
		}
		return k.String()
	default:
		return k.String()
	}
}

// Native returns the Go value carried by the key.
func (k Key) Native() any {
	switch k.Kind {
	case KindBool:
		return k.I != 0
	case KindChar:
		return string(rune(k.I))
	case KindByte:
		return uint8(k.I)
	case KindInt16:
		return int16(k.I)
	case KindInt32:
		return int32(k.I)
	case KindInt64:
		return k.I
	case KindSingle:
		return float32(k.F)
	case KindDouble:
		return k.F
	case KindDecimal:
		return k.D
	case KindString:
		return k.S
	}
	return nil
}

// AsDecimal returns the key as a decimal, for numeric kinds only.
func (k Key) AsDecimal() (decimal.Decimal, error) {
	switch {
	case k.Kind.IsInteger():
		return decimal.NewFromInt(k.I), nil
	case k.Kind == KindSingle || k.Kind == KindDouble:
		if math.IsNaN(k.F) || math.IsInf(k.F, 0) {
			return decimal.Zero, fmt.Errorf("codec: %v is not a finite number", k.F)
		}
		return decimal.NewFromFloat(k.F), nil
	case k.Kind == KindDecimal:
		return k.D, nil
	}
	return decimal.Zero, fmt.Errorf("codec: %s is not numeric", k.Kind)
}

// Null is the key of an empty cell.
var Null = Key{}

func (k Key) IsNull() bool { return k.Kind == KindInvalid }
