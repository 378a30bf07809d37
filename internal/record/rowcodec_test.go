package record

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novacsv/internal/codec"
)

// makeTestSchema builds a simple schema used across tests.
func makeTestSchema() Schema {
	s := Schema{
		Cols: []Column{
			{Name: "id32", Type: codec.KindInt32, IsKey: true},
			{Name: "id64", Type: codec.KindInt64},
			{Name: "active", Type: codec.KindBool},
			{Name: "score", Type: codec.KindDouble},
			{Name: "name", Type: codec.KindString},
			{Name: "price", Type: codec.KindDecimal},
		},
	}
	s.Normalize()
	return s
}

func TestEncodeDecodeRow_RoundTrip(t *testing.T) {
	schema := makeTestSchema()

	values := []codec.Key{
		codec.Int32(42),
		codec.Int64(123456789),
		codec.Bool(true),
		codec.Double(3.14159),
		codec.String("hello"),
		codec.Decimal(decimal.RequireFromString("9.99")),
	}

	buf, err := EncodeRow(schema, values)
	require.NoError(t, err)
	require.NotEmpty(t, buf)

	row, err := DecodeRow(schema, buf)
	require.NoError(t, err)

	require.Len(t, row, len(values))
	for i := range values {
		require.True(t, values[i].Equal(row[i]), "col %d: want %s got %s", i, values[i], row[i])
	}
}

func TestEncodeDecodeRow_Nulls(t *testing.T) {
	schema := makeTestSchema()

	values := []codec.Key{
		codec.Int32(1),
		codec.Null,
		codec.Bool(false),
		codec.Double(0),
		codec.Null,
		codec.Null,
	}

	buf, err := EncodeRow(schema, values)
	require.NoError(t, err)

	row, err := DecodeRow(schema, buf)
	require.NoError(t, err)
	require.True(t, row[1].IsNull())
	require.True(t, row[4].IsNull())
	require.True(t, row[5].IsNull())
	require.Equal(t, codec.Int32(1), row[0])
}

func TestEncodeRow_SchemaMismatch(t *testing.T) {
	schema := makeTestSchema()

	_, err := EncodeRow(schema, []codec.Key{codec.Int32(1)})
	require.ErrorIs(t, err, ErrSchemaMismatch)

	values := []codec.Key{
		codec.String("wrong"), codec.Int64(1), codec.Bool(true),
		codec.Double(1), codec.String("x"), codec.Null,
	}
	_, err = EncodeRow(schema, values)
	require.True(t, errors.Is(err, ErrSchemaMismatch))
}

func TestEncodeRow_LongString(t *testing.T) {
	schema := Schema{Cols: []Column{{Name: "s", Type: codec.KindString}}}
	_, err := EncodeRow(schema, []codec.Key{codec.String(strings.Repeat("x", 70000))})
	require.ErrorIs(t, err, ErrVarTooLong)
}

func TestDecodeRow_Truncated(t *testing.T) {
	schema := makeTestSchema()
	buf, err := EncodeRow(schema, []codec.Key{
		codec.Int32(1), codec.Int64(2), codec.Bool(true),
		codec.Double(1), codec.String("abc"), codec.Null,
	})
	require.NoError(t, err)

	_, err = DecodeRow(schema, buf[:len(buf)-2])
	require.ErrorIs(t, err, ErrBadBuffer)
}

func TestSchema_Lookup(t *testing.T) {
	s := makeTestSchema()

	c, ok := s.Col("NAME")
	require.True(t, ok)
	require.Equal(t, 4, c.Ordinal)

	k, ok := s.KeyColumn()
	require.True(t, ok)
	require.Equal(t, "id32", k.Name)
	require.True(t, k.IsIndexed)
}
