package bx

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestLittleEndianReadWrite verifies that the signed put/get helpers
// round-trip values using little-endian encoding.
func TestLittleEndianReadWrite(t *testing.T) {
	// ---- I16 ----
	{
		b := make([]byte, 2)
		PutI16(b, 0x1234)
		// in LE, least-significant byte goes first
		assert.Equal(t, []byte{0x34, 0x12}, b)
		assert.Equal(t, int16(0x1234), I16(b))
	}

	// ---- I32 ----
	{
		b := make([]byte, 4)
		PutI32(b, 0x01020304)
		assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, b)
		assert.Equal(t, int32(0x01020304), I32(b))
	}

	// ---- I64 ----
	{
		b := make([]byte, 8)
		PutI64(b, -1234567890)
		assert.Equal(t, int64(-1234567890), I64(b))
	}
}

func TestFloats(t *testing.T) {
	b := make([]byte, 8)
	PutF64(b, math.Pi)
	assert.Equal(t, math.Pi, F64(b))

	PutF32(b, float32(-2.5))
	assert.Equal(t, float32(-2.5), F32(b))
}

// TestLittleEndianAt verifies the *At variants that work with an offset
// into a larger buffer (backpatching sizes in node/leaf buffers).
func TestLittleEndianAt(t *testing.T) {
	buf := make([]byte, 16)

	PutI16At(buf, 0, -2)
	PutI32At(buf, 2, 0x01020304)
	PutI64At(buf, 6, -7)

	assert.Equal(t, int16(-2), I16At(buf, 0))
	assert.Equal(t, int32(0x01020304), I32At(buf, 2))
	assert.Equal(t, int64(-7), I64At(buf, 6))
}

func TestAppend(t *testing.T) {
	var b []byte
	b = AppendI32(b, 3)
	b = AppendI16(b, -1)
	b = AppendI64(b, 9)

	assert.Len(t, b, 14)
	assert.Equal(t, int32(3), I32(b))
	assert.Equal(t, int16(-1), I16At(b, 4))
	assert.Equal(t, int64(9), I64At(b, 6))
}
