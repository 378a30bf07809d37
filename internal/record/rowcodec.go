package record

import (
	"math"

	"github.com/pkg/errors"

	"github.com/tuannm99/novacsv/internal/alias/bx"
	"github.com/tuannm99/novacsv/internal/codec"
)

var (
	ErrSchemaMismatch = errors.New("rowcodec: schema/values mismatch")
	ErrBadBuffer      = errors.New("rowcodec: buffer underflow/overflow")
	ErrVarTooLong     = errors.New("rowcodec: variable length exceeds u16")
)

// EncodeRow packs a record for the binary row store.
// Format:
// [nullmap: ceil(N/8) bytes, bit=1 => NULL] | [field0 data?] [field1 data?] ...
// Strings are u16 length (LE) + UTF-8 bytes; other kinds use their fixed key width.
func EncodeRow(s Schema, values []codec.Key) ([]byte, error) {
	nc := s.NumCols()
	if len(values) != nc {
		return nil, ErrSchemaMismatch
	}

	nbBytes := (nc + 7) / 8
	w := codec.NewWriter(nbBytes + nc*8)
	w.Raw(make([]byte, nbBytes))

	for i, col := range s.Cols {
		v := values[i]
		if v.IsNull() {
			w.Bytes()[i/8] |= 1 << (uint(i) & 7)
			continue
		}
		if v.Kind != col.Type {
			return nil, errors.Wrapf(ErrSchemaMismatch, "column %s expects %s, got %s", col.Name, col.Type, v.Kind)
		}

		if col.Type == codec.KindString {
			if len(v.S) > math.MaxUint16 {
				return nil, ErrVarTooLong
			}
			var l [2]byte
			bx.PutU16(l[:], uint16(len(v.S)))
			w.Raw(l[:])
			w.Raw([]byte(v.S))
			continue
		}
		if err := w.FixedKey(v); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

// DecodeRow is the inverse of EncodeRow.
func DecodeRow(s Schema, buf []byte) ([]codec.Key, error) {
	nc := s.NumCols()
	nbBytes := (nc + 7) / 8
	if len(buf) < nbBytes {
		return nil, ErrBadBuffer
	}
	nullmap := buf[:nbBytes]
	r := codec.NewReader(buf)
	if err := r.Seek(nbBytes); err != nil {
		return nil, ErrBadBuffer
	}

	out := make([]codec.Key, nc)
	for i, col := range s.Cols {
		if (nullmap[i/8]>>(uint(i)&7))&1 == 1 {
			out[i] = codec.Null
			continue
		}

		if col.Type == codec.KindString {
			l, err := r.Raw(2)
			if err != nil {
				return nil, ErrBadBuffer
			}
			k, err := r.StringBody(int(bx.U16(l)))
			if err != nil {
				return nil, ErrBadBuffer
			}
			out[i] = k
			continue
		}

		k, err := r.FixedKey(col.Type)
		if err != nil {
			return nil, errors.Wrapf(ErrBadBuffer, "column %s: %v", col.Name, err)
		}
		out[i] = k
	}
	return out, nil
}
