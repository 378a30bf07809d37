package codec

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/tuannm99/novacsv/internal/alias/bx"
)

// Writer appends little-endian fields to a growing buffer.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) Len() int      { return len(w.buf) }
func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Reset()        { w.buf = w.buf[:0] }

func (w *Writer) Int16(v int16) { w.buf = bx.AppendI16(w.buf, v) }
func (w *Writer) Int32(v int32) { w.buf = bx.AppendI32(w.buf, v) }
func (w *Writer) Byte(v byte)   { w.buf = append(w.buf, v) }
func (w *Writer) Raw(b []byte)  { w.buf = append(w.buf, b...) }

// PatchInt32 overwrites a previously written Int32 (size backpatching).
func (w *Writer) PatchInt32(off int, v int32) { bx.PutI32At(w.buf, off, v) }

// Key writes a key in its self-delimiting form: fixed kinds as their fixed
// width, strings as one length byte followed by the bytes.
func (w *Writer) Key(k Key) error {
	if k.Kind == KindString {
		if len(k.S) > 255 {
			return errors.Wrapf(ErrKeyTooLong, "key %q", Truncate(k.S))
		}
		w.Byte(byte(len(k.S)))
		w.Raw([]byte(k.S))
		return nil
	}
	return w.FixedKey(k)
}

// FixedKey writes the fixed-width body of a non-string key.
func (w *Writer) FixedKey(k Key) error {
	var b [16]byte
	switch k.Kind {
	case KindBool, KindByte:
		w.Byte(byte(k.I))
	case KindChar, KindInt16:
		w.Int16(int16(k.I))
	case KindInt32:
		w.Int32(int32(k.I))
	case KindInt64:
		bx.PutI64(b[:8], k.I)
		w.Raw(b[:8])
	case KindSingle:
		bx.PutF32(b[:4], float32(k.F))
		w.Raw(b[:4])
	case KindDouble:
		bx.PutF64(b[:8], k.F)
		w.Raw(b[:8])
	case KindDecimal:
		if err := putDecimal(b[:], k.D); err != nil {
			return err
		}
		w.Raw(b[:])
	default:
		return errors.Wrapf(ErrUnknownKind, "encode %s", k.Kind)
	}
	return nil
}

// Reader consumes little-endian fields from a byte slice.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) Pos() int       { return r.pos }
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.buf) {
		return errors.Wrapf(ErrShortBuffer, "seek %d of %d", pos, len(r.buf))
	}
	r.pos = pos
	return nil
}

func (r *Reader) next(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, errors.Wrapf(ErrShortBuffer, "need %d bytes at %d, have %d", n, r.pos, r.Remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) Byte() (byte, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Int16() (int16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return bx.I16(b), nil
}

func (r *Reader) Int32() (int32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return bx.I32(b), nil
}

func (r *Reader) Raw(n int) ([]byte, error) { return r.next(n) }

// Key reads a self-delimiting key of the given kind (see Writer.Key).
func (r *Reader) Key(kind Kind) (Key, error) {
	if kind == KindString {
		n, err := r.Byte()
		if err != nil {
			return Key{}, err
		}
		return r.StringBody(int(n))
	}
	return r.FixedKey(kind)
}

// StringBody reads n bytes as a String key.
func (r *Reader) StringBody(n int) (Key, error) {
	b, err := r.next(n)
	if err != nil {
		return Key{}, err
	}
	return String(string(b)), nil
}

func (r *Reader) FixedKey(kind Kind) (Key, error) {
	size := kind.FixedSize()
	if size == 0 {
		return Key{}, errors.Wrapf(ErrUnknownKind, "decode %s", kind)
	}
	b, err := r.next(size)
	if err != nil {
		return Key{}, err
	}
	switch kind {
	case KindBool:
		if b[0] != 0 {
			return Bool(true), nil
		}
		return Bool(false), nil
	case KindByte:
		return Byte(b[0]), nil
	case KindChar:
		return Char(rune(uint16(bx.I16(b)))), nil
	case KindInt16:
		return Int16(bx.I16(b)), nil
	case KindInt32:
		return Int32(bx.I32(b)), nil
	case KindInt64:
		return Int64(bx.I64(b)), nil
	case KindSingle:
		return Single(bx.F32(b)), nil
	case KindDouble:
		return Double(bx.F64(b)), nil
	default:
		d, err := getDecimal(b)
		if err != nil {
			return Key{}, err
		}
		return Decimal(d), nil
	}
}

// Decimal layout (16 bytes): 96-bit magnitude as three little-endian Int32
// words (lo, mid, hi) followed by a flags word holding the scale in bits
// 16..23 and the sign in bit 31.
const maxDecimalScale = 28

var maxDecimalMagnitude = new(big.Int).Lsh(big.NewInt(1), 96)

// FitDecimal returns d in the form the 16-byte layout stores. Trailing zeros
// beyond scale 28 are dropped; any other loss of digits is ErrDecimalRange, so
// two distinct keys never encode to the same bytes.
func FitDecimal(d decimal.Decimal) (decimal.Decimal, error) {
	_, _, err := decimalParts(d)
	if err != nil {
		return decimal.Zero, err
	}
	if -d.Exponent() > maxDecimalScale {
		d = d.Round(maxDecimalScale)
	}
	return d, nil
}

func decimalParts(d decimal.Decimal) (*big.Int, int32, error) {
	if -d.Exponent() > maxDecimalScale {
		r := d.Round(maxDecimalScale)
		if !r.Equal(d) {
			return nil, 0, errors.Wrapf(ErrDecimalRange, "decimal %s has more than %d fractional digits", Truncate(d.String()), maxDecimalScale)
		}
		d = r
	}
	coef := d.Coefficient()
	scale := -d.Exponent()
	if scale < 0 {
		coef.Mul(coef, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-scale)), nil))
		scale = 0
	}
	if new(big.Int).Abs(coef).Cmp(maxDecimalMagnitude) >= 0 {
		return nil, 0, errors.Wrapf(ErrDecimalRange, "decimal %s", Truncate(d.String()))
	}
	return coef, scale, nil
}

func putDecimal(b []byte, d decimal.Decimal) error {
	coef, scale, err := decimalParts(d)
	if err != nil {
		return err
	}
	neg := coef.Sign() < 0
	mag := new(big.Int).Abs(coef)

	var be [12]byte
	mag.FillBytes(be[:])
	for i := 0; i < 12; i++ {
		b[i] = be[11-i]
	}
	flags := uint32(scale) << 16
	if neg {
		flags |= 1 << 31
	}
	bx.PutU32(b[12:16], flags)
	return nil
}

func getDecimal(b []byte) (decimal.Decimal, error) {
	flags := bx.U32(b[12:16])
	scale := int32((flags >> 16) & 0xFF)
	if scale > maxDecimalScale || flags&0x7F00FFFF != 0 {
		return decimal.Zero, errors.Wrapf(ErrShortBuffer, "bad decimal flags %#x", flags)
	}
	var be [12]byte
	for i := 0; i < 12; i++ {
		be[i] = b[11-i]
	}
	coef := new(big.Int).SetBytes(be[:])
	if flags&(1<<31) != 0 {
		coef.Neg(coef)
	}
	return decimal.NewFromBigInt(coef, -scale), nil
}

// Truncate shortens s for error messages.
func Truncate(s string) string {
	if len(s) > 32 {
		return s[:32] + "..."
	}
	return s
}
