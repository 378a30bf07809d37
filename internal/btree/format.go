package btree

import (
	"path/filepath"

	"github.com/tuannm99/novacsv/internal/alias/bx"
	"github.com/tuannm99/novacsv/internal/codec"
)

// On-disk layout. All integers are little-endian Int32 unless noted.
//
// Items file (<table>.<column>.index.bin):
//
//	[pageCount][keyTypeCode] then pageCount leaf buffers back to back.
//
// Tree file (<table>.<column>.index):
//
//	[reserved][pageCount][columnOrdinal][flags] then, unless IsLeaf, the
//	pre-order body: node buffers interleaved with {3, itemsOffset} leaf refs.
const (
	ItemsHeaderSize = 8
	TreeHeaderSize  = 16
	LeafPrefixSize  = 16
	LeafRefSize     = 8

	bufNode   int32 = 1
	bufItems  int32 = 2
	bufUnique int32 = 4
	bufRef          = bufNode | bufItems

	hdrUnique int32 = 1 << 8
	hdrIsKey  int32 = 1 << 9
	hdrIsLeaf int32 = 1 << 10
	hdrKnown        = hdrUnique | hdrIsKey | hdrIsLeaf | 0xFF
)

// Header is the fixed 16-byte prefix of a tree file.
type Header struct {
	Reserved  int32
	PageCount int32
	Ordinal   int32
	Unique    bool
	IsKey     bool
	IsLeaf    bool
	Kind      codec.Kind
}

func (h Header) flags() int32 {
	f := int32(h.Kind)
	if h.Unique {
		f |= hdrUnique
	}
	if h.IsKey {
		f |= hdrIsKey
	}
	if h.IsLeaf {
		f |= hdrIsLeaf
	}
	return f
}

func (h Header) encode() []byte {
	b := make([]byte, TreeHeaderSize)
	bx.PutI32At(b, 0, h.Reserved)
	bx.PutI32At(b, 4, h.PageCount)
	bx.PutI32At(b, 8, h.Ordinal)
	bx.PutI32At(b, 12, h.flags())
	return b
}

func decodeHeader(path string, b []byte) (Header, error) {
	if len(b) < TreeHeaderSize {
		return Header{}, corrupt(path, 0, "tree header truncated (%d bytes)", len(b))
	}
	flags := bx.I32At(b, 12)
	h := Header{
		Reserved:  bx.I32At(b, 0),
		PageCount: bx.I32At(b, 4),
		Ordinal:   bx.I32At(b, 8),
		Unique:    flags&hdrUnique != 0,
		IsKey:     flags&hdrIsKey != 0,
		IsLeaf:    flags&hdrIsLeaf != 0,
		Kind:      codec.Kind(flags & 0xFF),
	}
	if flags&^hdrKnown != 0 {
		return Header{}, corrupt(path, 12, "unknown header flags %#x", flags)
	}
	if !h.Kind.Valid() {
		return Header{}, corrupt(path, 12, "unknown key type code %d", flags&0xFF)
	}
	if h.PageCount < 1 {
		return Header{}, corrupt(path, 4, "page count %d", h.PageCount)
	}
	return h, nil
}

// FileSet names the two artifacts of one column index.
type FileSet struct {
	Dir    string
	Table  string
	Column string
}

func (fs FileSet) base() string {
	return filepath.Join(fs.Dir, fs.Table+"."+fs.Column+".index")
}

func (fs FileSet) TreePath() string  { return fs.base() }
func (fs FileSet) ItemsPath() string { return fs.base() + ".bin" }
