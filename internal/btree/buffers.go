package btree

import (
	"math"

	"github.com/pkg/errors"

	"github.com/tuannm99/novacsv/internal/codec"
)

// encodeNode appends one node buffer:
// [flags][selfByteSize][unique: value | count, values...][key].
func encodeNode(w *codec.Writer, e Entry, unique bool) error {
	start := w.Len()
	flags := bufNode
	if unique {
		flags |= bufUnique
	}
	w.Int32(flags)
	w.Int32(0)
	if unique {
		w.Int32(e.Offsets[0])
	} else {
		w.Int32(int32(len(e.Offsets)))
		for _, off := range e.Offsets {
			w.Int32(off)
		}
	}
	if err := w.Key(e.Key); err != nil {
		return err
	}
	w.PatchInt32(start+4, int32(w.Len()-start))
	return nil
}

// encodeLeaf appends one leaf buffer located at selfOffset in the items file:
// [flags][selfOffset][selfByteSize][itemCount][keys][values].
func encodeLeaf(w *codec.Writer, entries []Entry, kind codec.Kind, selfOffset int32, unique bool) error {
	start := w.Len()
	flags := bufItems
	if unique {
		flags |= bufUnique
	}
	w.Int32(flags)
	w.Int32(selfOffset)
	w.Int32(0)
	w.Int32(int32(len(entries)))

	if kind == codec.KindString {
		for i := range entries {
			if len(entries[i].Key.S) > math.MaxUint8 {
				return errors.Wrapf(codec.ErrKeyTooLong, "key %q", codec.Truncate(entries[i].Key.S))
			}
			w.Byte(byte(len(entries[i].Key.S)))
		}
		for i := range entries {
			w.Raw([]byte(entries[i].Key.S))
		}
	} else {
		for i := range entries {
			if err := w.FixedKey(entries[i].Key); err != nil {
				return err
			}
		}
	}

	for i := range entries {
		if unique {
			w.Int32(entries[i].Offsets[0])
			continue
		}
		n := len(entries[i].Offsets)
		if n > math.MaxUint16 {
			return errors.Wrapf(ErrTooManyOffsets, "key %s has %d offsets", entries[i].Key, n)
		}
		w.Int16(int16(uint16(n)))
		for _, off := range entries[i].Offsets {
			w.Int32(off)
		}
	}
	w.PatchInt32(start+8, int32(w.Len()-start))
	return nil
}

// decodeLeafBody decodes the entries of a leaf buffer whose 16-byte prefix has
// already been validated. buf holds the whole leaf buffer.
func decodeLeafBody(buf []byte, kind codec.Kind, count int, unique bool) ([]Entry, error) {
	r := codec.NewReader(buf)
	if err := r.Seek(LeafPrefixSize); err != nil {
		return nil, err
	}

	entries := make([]Entry, count)
	if kind == codec.KindString {
		lens, err := r.Raw(count)
		if err != nil {
			return nil, err
		}
		for i := 0; i < count; i++ {
			k, err := r.StringBody(int(lens[i]))
			if err != nil {
				return nil, err
			}
			entries[i].Key = k
		}
	} else {
		for i := 0; i < count; i++ {
			k, err := r.FixedKey(kind)
			if err != nil {
				return nil, err
			}
			entries[i].Key = k
		}
	}

	for i := 0; i < count; i++ {
		n := 1
		if !unique {
			c, err := r.Int16()
			if err != nil {
				return nil, err
			}
			n = int(uint16(c))
		}
		offs := make([]int32, n)
		for j := range offs {
			v, err := r.Int32()
			if err != nil {
				return nil, err
			}
			offs[j] = v
		}
		entries[i].Offsets = offs
	}
	if r.Remaining() != 0 {
		return nil, errors.Errorf("%d trailing bytes", r.Remaining())
	}
	return entries, nil
}
