package btree

import (
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tuannm99/novacsv/internal/codec"
	"github.com/tuannm99/novacsv/internal/logger"
)

// Options describe the column an index is built for.
type Options struct {
	PageSize int
	Kind     codec.Kind
	Ordinal  int
	IsKey    bool
}

// Stats summarize a finished build. Unique is derived from the data and may
// contradict what the catalog believed about the column.
type Stats struct {
	Keys   int
	Pairs  int
	Nodes  int
	Leaves int
	Height int
	Unique bool
}

func (s Stats) PageCount() int { return s.Nodes + s.Leaves }

// buildNode is one arena slot. Internal nodes point at entries[entry];
// leaves cover entries[lo..hi].
type buildNode struct {
	leaf        bool
	entry       int
	lo, hi      int
	left, right int32
}

// Built holds both serialized artifacts of one index.
type Built struct {
	Tree  []byte
	Items []byte
	Stats Stats
}

// Build splits a sorted key collection into a height-balanced binary tree
// whose leaves hold at most opts.PageSize keys, and serializes it.
func Build(entries []Entry, opts Options) (*Built, error) {
	if opts.PageSize < 2 {
		return nil, errors.Wrapf(ErrBadPageSize, "got %d", opts.PageSize)
	}
	if !opts.Kind.Valid() {
		return nil, errors.Wrapf(codec.ErrUnknownKind, "index kind %d", opts.Kind)
	}
	if err := Validate(entries); err != nil {
		return nil, err
	}
	if len(entries) > 0 && entries[0].Key.Kind != opts.Kind {
		return nil, errors.Wrapf(ErrKeyKind, "column is %s, keys are %s", opts.Kind, entries[0].Key.Kind)
	}

	arena, height := split(entries, opts.PageSize)
	unique := IsUnique(entries)

	st := Stats{Keys: len(entries), Height: height, Unique: unique}
	for i := range arena {
		if arena[i].leaf {
			st.Leaves++
		} else {
			st.Nodes++
		}
	}
	for i := range entries {
		st.Pairs += len(entries[i].Offsets)
	}

	items, leafOffsets, err := writeItems(entries, arena, opts.Kind, unique)
	if err != nil {
		return nil, err
	}
	tree, err := writeTree(entries, arena, leafOffsets, opts, st)
	if err != nil {
		return nil, err
	}
	return &Built{Tree: tree, Items: items, Stats: st}, nil
}

// split builds the arena with an explicit work stack. Slot 0 is the root.
func split(entries []Entry, pageSize int) ([]buildNode, int) {
	type job struct {
		lo, hi int
		parent int32
		right  bool
		depth  int
	}

	var arena []buildNode
	height := 0
	stack := []job{{lo: 0, hi: len(entries) - 1, parent: -1, depth: 1}}
	for len(stack) > 0 {
		j := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		idx := int32(len(arena))
		n := j.hi - j.lo + 1
		if n <= pageSize {
			arena = append(arena, buildNode{leaf: true, lo: j.lo, hi: j.hi, left: -1, right: -1})
		} else {
			c := n / 2
			arena = append(arena, buildNode{entry: j.lo + c, left: -1, right: -1})
			stack = append(stack,
				job{lo: j.lo + c + 1, hi: j.hi, parent: idx, right: true, depth: j.depth + 1},
				job{lo: j.lo, hi: j.lo + c - 1, parent: idx, depth: j.depth + 1},
			)
		}
		if j.depth > height {
			height = j.depth
		}

		if j.parent >= 0 {
			if j.right {
				arena[j.parent].right = idx
			} else {
				arena[j.parent].left = idx
			}
		}
	}
	return arena, height
}

// inOrderLeaves lists leaf slots left to right.
func inOrderLeaves(arena []buildNode) []int32 {
	var out []int32
	var stack []int32
	cur := int32(0)
	for cur >= 0 || len(stack) > 0 {
		for cur >= 0 && !arena[cur].leaf {
			stack = append(stack, cur)
			cur = arena[cur].left
		}
		if cur >= 0 {
			out = append(out, cur)
		}
		if len(stack) == 0 {
			break
		}
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cur = arena[n].right
	}
	return out
}

// writeItems is the first serialization pass: every leaf gets its items-file
// offset and is written in key order after the 8-byte header.
func writeItems(entries []Entry, arena []buildNode, kind codec.Kind, unique bool) ([]byte, map[int32]int32, error) {
	leaves := inOrderLeaves(arena)
	offsets := make(map[int32]int32, len(leaves))

	w := codec.NewWriter(ItemsHeaderSize + len(entries)*(kind.FixedSize()+8))
	w.Int32(int32(len(leaves)))
	w.Int32(int32(kind))
	for _, slot := range leaves {
		if w.Len() > math.MaxInt32 {
			return nil, nil, ErrFileTooLarge
		}
		off := int32(w.Len())
		n := arena[slot]
		if err := encodeLeaf(w, entries[n.lo:n.hi+1], kind, off, unique); err != nil {
			return nil, nil, err
		}
		offsets[slot] = off
	}
	if w.Len() > math.MaxInt32 {
		return nil, nil, ErrFileTooLarge
	}
	return w.Bytes(), offsets, nil
}

// writeTree is the second pass: header, then the pre-order body where leaves
// are replaced by references into the items file.
func writeTree(entries []Entry, arena []buildNode, leafOffsets map[int32]int32, opts Options, st Stats) ([]byte, error) {
	h := Header{
		PageCount: int32(st.PageCount()),
		Ordinal:   int32(opts.Ordinal),
		Unique:    st.Unique,
		IsKey:     opts.IsKey,
		IsLeaf:    arena[0].leaf,
		Kind:      opts.Kind,
	}

	w := codec.NewWriter(TreeHeaderSize + st.Nodes*32 + st.Leaves*LeafRefSize)
	w.Raw(h.encode())
	if h.IsLeaf {
		return w.Bytes(), nil
	}

	stack := []int32{0}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := arena[idx]
		if n.leaf {
			w.Int32(bufRef)
			w.Int32(leafOffsets[idx])
			continue
		}
		if n.left < 0 || n.right < 0 {
			return nil, errors.Wrapf(ErrMissingChild, "node for key %s", entries[n.entry].Key)
		}
		if err := encodeNode(w, entries[n.entry], st.Unique); err != nil {
			return nil, err
		}
		stack = append(stack, n.right, n.left)
	}
	return w.Bytes(), nil
}

// WriteIndex builds and atomically writes both files of one column index.
// The items file is replaced first so the tree never references pages from an
// older build.
func WriteIndex(fs FileSet, entries []Entry, opts Options) (Stats, error) {
	built, err := Build(entries, opts)
	if err != nil {
		return Stats{}, errors.Wrapf(err, "build %s.%s", fs.Table, fs.Column)
	}
	if err := commitFiles(fs, built.Items, built.Tree); err != nil {
		return Stats{}, err
	}

	logger.WithFields(logrus.Fields{
		"table":  fs.Table,
		"column": fs.Column,
		"keys":   built.Stats.Keys,
		"nodes":  built.Stats.Nodes,
		"leaves": built.Stats.Leaves,
		"height": built.Stats.Height,
		"unique": built.Stats.Unique,
	}).Debug("btree.index.written")
	return built.Stats, nil
}
