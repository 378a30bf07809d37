package codec

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Parse converts the textual form of a value (a CSV cell or a string literal)
// into a key of the given kind.
func Parse(kind Kind, text string) (Key, error) {
	if kind != KindString && kind != KindChar {
		text = strings.TrimSpace(text)
	}
	switch kind {
	case KindString:
		return String(text), nil
	case KindChar:
		r, size := utf8.DecodeRuneInString(text)
		if size == 0 || size != len(text) || r > math.MaxUint16 {
			return Key{}, castErr(text, kind)
		}
		return Char(r), nil
	case KindBool:
		v, err := strconv.ParseBool(text)
		if err != nil {
			return Key{}, castErr(text, kind)
		}
		return Bool(v), nil
	case KindByte:
		v, err := strconv.ParseUint(text, 10, 8)
		if err != nil {
			return Key{}, castErr(text, kind)
		}
		return Byte(uint8(v)), nil
	case KindInt16, KindInt32, KindInt64:
		v, err := strconv.ParseInt(text, 10, intBits(kind))
		if err != nil {
			return Key{}, castErr(text, kind)
		}
		return Key{Kind: kind, I: v}, nil
	case KindSingle:
		v, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return Key{}, castErr(text, kind)
		}
		return Single(float32(v)), nil
	case KindDouble:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Key{}, castErr(text, kind)
		}
		return Double(v), nil
	case KindDecimal:
		v, err := decimal.NewFromString(text)
		if err != nil {
			return Key{}, castErr(text, kind)
		}
		if v, err = FitDecimal(v); err != nil {
			return Key{}, err
		}
		return Decimal(v), nil
	}
	return Key{}, errors.Wrapf(ErrUnknownKind, "parse %q", text)
}

// Convert casts a key to another kind. Narrowing conversions that would lose
// information (out of range, fractional to integer) fail with ErrCast.
func Convert(k Key, to Kind) (Key, error) {
	if k.Kind == to {
		return k, nil
	}
	if !to.Valid() {
		return Key{}, errors.Wrapf(ErrUnknownKind, "convert to %d", to)
	}
	switch {
	case to == KindString:
		return String(k.String()), nil
	case k.Kind == KindString:
		return Parse(to, k.S)
	}

	switch to {
	case KindBool:
		if k.Kind.IsInteger() && (k.I == 0 || k.I == 1) {
			return Bool(k.I == 1), nil
		}
	case KindChar:
		if (k.Kind.IsInteger() || k.Kind == KindChar) && k.I >= 0 && k.I <= math.MaxUint16 {
			return Char(rune(k.I)), nil
		}
	case KindByte, KindInt16, KindInt32, KindInt64:
		v, ok := wholeNumber(k)
		if ok && fitsInt(v, to) {
			return Key{Kind: to, I: v}, nil
		}
	case KindSingle, KindDouble:
		f, ok := float(k)
		if ok {
			if to == KindSingle {
				return Single(float32(f)), nil
			}
			return Double(f), nil
		}
	case KindDecimal:
		if k.Kind.IsNumeric() {
			d, err := k.AsDecimal()
			if err == nil {
				if d, err = FitDecimal(d); err != nil {
					return Key{}, err
				}
				return Decimal(d), nil
			}
		}
	}
	return Key{}, castErr(k.String(), to)
}

func wholeNumber(k Key) (int64, bool) {
	switch {
	case k.Kind.IsInteger(), k.Kind == KindBool, k.Kind == KindChar:
		return k.I, true
	case k.Kind == KindSingle || k.Kind == KindDouble:
		if k.F != math.Trunc(k.F) || math.IsInf(k.F, 0) || k.F > math.MaxInt64 || k.F < math.MinInt64 {
			return 0, false
		}
		return int64(k.F), true
	case k.Kind == KindDecimal:
		if !k.D.IsInteger() {
			return 0, false
		}
		c := k.D.BigInt()
		if !c.IsInt64() {
			return 0, false
		}
		return c.Int64(), true
	}
	return 0, false
}

func float(k Key) (float64, bool) {
	switch {
	case k.Kind.IsInteger():
		return float64(k.I), true
	case k.Kind == KindSingle || k.Kind == KindDouble:
		return k.F, true
	case k.Kind == KindDecimal:
		f, _ := k.D.Float64()
		return f, true
	}
	return 0, false
}

func intBits(kind Kind) int {
	switch kind {
	case KindByte:
		return 8
	case KindInt16:
		return 16
	case KindInt32:
		return 32
	}
	return 64
}

func fitsInt(v int64, kind Kind) bool {
	switch kind {
	case KindByte:
		return v >= 0 && v <= math.MaxUint8
	case KindInt16:
		return v >= math.MinInt16 && v <= math.MaxInt16
	case KindInt32:
		return v >= math.MinInt32 && v <= math.MaxInt32
	}
	return true
}

func castErr(text string, to Kind) error {
	return errors.Wrapf(ErrCast, "%q is not a valid %s", Truncate(text), to)
}
