// stand for bytes helper
package bx

import (
	"encoding/binary"
	"math"
)

// LE is the byte order of every on-disk structure (index files, binary rows).
var LE = binary.LittleEndian

// --- LE: read ---
func U16(b []byte) uint16  { return LE.Uint16(b) }
func U32(b []byte) uint32  { return LE.Uint32(b) }
func U64(b []byte) uint64  { return LE.Uint64(b) }
func I16(b []byte) int16   { return int16(U16(b)) }
func I32(b []byte) int32   { return int32(U32(b)) }
func I64(b []byte) int64   { return int64(U64(b)) }
func F32(b []byte) float32 { return math.Float32frombits(U32(b)) }
func F64(b []byte) float64 { return math.Float64frombits(U64(b)) }

// --- LE: write ---
func PutU16(b []byte, v uint16)  { LE.PutUint16(b, v) }
func PutU32(b []byte, v uint32)  { LE.PutUint32(b, v) }
func PutU64(b []byte, v uint64)  { LE.PutUint64(b, v) }
func PutI16(b []byte, v int16)   { PutU16(b, uint16(v)) }
func PutI32(b []byte, v int32)   { PutU32(b, uint32(v)) }
func PutI64(b []byte, v int64)   { PutU64(b, uint64(v)) }
func PutF32(b []byte, v float32) { PutU32(b, math.Float32bits(v)) }
func PutF64(b []byte, v float64) { PutU64(b, math.Float64bits(v)) }

// --- LE: At (offset) ---
func I16At(b []byte, off int) int16       { return I16(b[off:]) }
func I32At(b []byte, off int) int32       { return I32(b[off:]) }
func I64At(b []byte, off int) int64       { return I64(b[off:]) }
func PutI16At(b []byte, off int, v int16) { PutI16(b[off:], v) }
func PutI32At(b []byte, off int, v int32) { PutI32(b[off:], v) }
func PutI64At(b []byte, off int, v int64) { PutI64(b[off:], v) }

// --- LE: append ---
func AppendI16(b []byte, v int16) []byte { return LE.AppendUint16(b, uint16(v)) }
func AppendI32(b []byte, v int32) []byte { return LE.AppendUint32(b, uint32(v)) }
func AppendI64(b []byte, v int64) []byte { return LE.AppendUint64(b, uint64(v)) }
