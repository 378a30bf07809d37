package codec

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyEncodeDecode_AllKinds(t *testing.T) {
	keys := []Key{
		Bool(true),
		Char('Z'),
		Byte(200),
		Int16(-1234),
		Int32(-7),
		Int64(1 << 40),
		Single(1.5),
		Double(-2.25),
		Decimal(decimal.RequireFromString("-123.4500")),
		String("route 66"),
	}

	w := NewWriter(64)
	for _, k := range keys {
		require.NoError(t, w.Key(k))
	}

	r := NewReader(w.Bytes())
	for _, want := range keys {
		got, err := r.Key(want.Kind)
		require.NoError(t, err)
		assert.True(t, want.Equal(got), "want %s got %s", want, got)
	}
	assert.Equal(t, 0, r.Remaining())
}

func TestFixedSizes(t *testing.T) {
	for _, kind := range Kinds {
		if kind == KindString {
			assert.Equal(t, 0, kind.FixedSize())
			continue
		}
		k, err := Convert(Int32(1), kind)
		require.NoError(t, err, kind.String())

		w := NewWriter(16)
		require.NoError(t, w.Key(k))
		assert.Equal(t, kind.FixedSize(), w.Len(), kind.String())
	}
}

func TestDecimalLayout(t *testing.T) {
	w := NewWriter(16)
	require.NoError(t, w.Key(Decimal(decimal.RequireFromString("-1.5"))))

	b := w.Bytes()
	require.Len(t, b, 16)
	// magnitude 15, scale 1, sign bit set
	assert.Equal(t, byte(15), b[0])
	assert.Equal(t, []byte{0, 0, 1, 0x80}, b[12:16])
}

func TestStringKeyTooLong(t *testing.T) {
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	err := NewWriter(0).Key(String(string(long)))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrKeyTooLong))
}

func TestReaderTruncated(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_, err := r.Int32()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrShortBuffer))
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare(Int32(1), Int32(2)))
	assert.Equal(t, 1, Compare(String("b"), String("a")))
	assert.Equal(t, 0, Compare(Decimal(decimal.RequireFromString("1.50")), Decimal(decimal.RequireFromString("1.5"))))
	assert.Equal(t, -1, Compare(Double(-1), Double(0)))
}

func TestParse(t *testing.T) {
	k, err := Parse(KindInt32, " 42 ")
	require.NoError(t, err)
	assert.Equal(t, Int32(42), k)

	_, err = Parse(KindInt16, "70000")
	require.True(t, errors.Is(err, ErrCast))

	k, err = Parse(KindChar, "é")
	require.NoError(t, err)
	assert.Equal(t, int64('é'), k.I)

	_, err = Parse(KindChar, "ab")
	require.True(t, errors.Is(err, ErrCast))

	k, err = Parse(KindBool, "true")
	require.NoError(t, err)
	assert.Equal(t, Bool(true), k)
}

func TestConvert(t *testing.T) {
	k, err := Convert(Double(5), KindInt32)
	require.NoError(t, err)
	assert.Equal(t, Int32(5), k)

	_, err = Convert(Double(4.5), KindInt32)
	require.True(t, errors.Is(err, ErrCast))

	_, err = Convert(Int64(1<<40), KindInt32)
	require.True(t, errors.Is(err, ErrCast))

	k, err = Convert(String("12.5"), KindDecimal)
	require.NoError(t, err)
	assert.Equal(t, "12.5", k.String())

	k, err = Convert(Int32(7), KindString)
	require.NoError(t, err)
	assert.Equal(t, String("7"), k)
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, "'it''s'", String("it's").Literal())
	assert.Equal(t, "3.0", Double(3).Literal())
	assert.Equal(t, "-4", Int32(-4).Literal())
}

func TestKindText(t *testing.T) {
	var k Kind
	require.NoError(t, k.UnmarshalText([]byte("int32")))
	assert.Equal(t, KindInt32, k)

	b, err := KindDecimal.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Decimal", string(b))

	require.Error(t, k.UnmarshalText([]byte("blob")))
}

func TestDecimalScaleLimit(t *testing.T) {
	_, err := Parse(KindDecimal, "0.00000000000000000000000000001")
	require.True(t, errors.Is(err, ErrDecimalRange))

	k, err := Parse(KindDecimal, "1.500000000000000000000000000000")
	require.NoError(t, err)
	assert.True(t, k.D.Equal(decimal.RequireFromString("1.5")))
	assert.LessOrEqual(t, -k.D.Exponent(), int32(28))

	_, err = Convert(Double(1e-30), KindDecimal)
	require.True(t, errors.Is(err, ErrDecimalRange))

	var buf [16]byte
	err = putDecimal(buf[:], decimal.RequireFromString("0.00000000000000000000000000001"))
	require.True(t, errors.Is(err, ErrDecimalRange))

	fit := decimal.RequireFromString("-12.3400000000000000000000000000000")
	require.NoError(t, putDecimal(buf[:], fit))
	got, err := getDecimal(buf[:])
	require.NoError(t, err)
	assert.True(t, got.Equal(fit))
}
