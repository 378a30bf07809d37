package btree

import (
	"os"

	"github.com/pkg/errors"

	"github.com/tuannm99/novacsv/internal/codec"
)

// ref addresses a child: an arena slot for nodes, an items-file page offset
// for leaves.
type ref struct {
	leaf bool
	at   int32
}

type treeNode struct {
	key         codec.Key
	offsets     []int32
	left, right ref
}

// Tree is a tree file loaded fully into memory. Nodes live in an arena and
// are addressed by index; the structure is immutable after load.
type Tree struct {
	Header Header
	nodes  []treeNode
	root   ref
	leaves int
}

// OpenTree reads and decodes a tree file. No disk access happens afterwards.
func OpenTree(path string) (*Tree, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open tree file %s", path)
	}
	return decodeTree(path, buf)
}

func decodeTree(path string, buf []byte) (*Tree, error) {
	h, err := decodeHeader(path, buf)
	if err != nil {
		return nil, err
	}
	t := &Tree{Header: h}
	if h.IsLeaf {
		if len(buf) != TreeHeaderSize {
			return nil, corrupt(path, TreeHeaderSize, "single-leaf tree has a body")
		}
		if h.PageCount != 1 {
			return nil, corrupt(path, 4, "single-leaf tree with page count %d", h.PageCount)
		}
		t.leaves = 1
		return t, nil
	}

	r := codec.NewReader(buf)
	if err := r.Seek(TreeHeaderSize); err != nil {
		return nil, corrupt(path, 0, "%v", err)
	}

	// Pre-order decode with an explicit stack of slots waiting for a child.
	type slot struct {
		parent int32
		right  bool
	}
	stack := []slot{{parent: -1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		pos := int64(r.Pos())
		flags, err := r.Int32()
		if err != nil {
			return nil, corrupt(path, pos, "missing child buffer")
		}

		var c ref
		switch {
		case flags == bufRef:
			off, err := r.Int32()
			if err != nil {
				return nil, corrupt(path, pos, "truncated leaf reference")
			}
			if off < ItemsHeaderSize {
				return nil, corrupt(path, pos, "leaf reference to offset %d", off)
			}
			c = ref{leaf: true, at: off}
			t.leaves++
		case flags&^bufUnique == bufNode:
			n, err := decodeNode(r, h.Kind, flags&bufUnique != 0)
			if err != nil {
				return nil, corrupt(path, pos, "%v", err)
			}
			if int64(r.Pos())-pos != int64(n.size) {
				return nil, corrupt(path, pos, "node size %d, decoded %d bytes", n.size, int64(r.Pos())-pos)
			}
			c = ref{at: int32(len(t.nodes))}
			t.nodes = append(t.nodes, n.node)
			stack = append(stack, slot{parent: c.at, right: true}, slot{parent: c.at})
		default:
			return nil, corrupt(path, pos, "unexpected buffer flags %#x", flags)
		}

		switch {
		case s.parent < 0:
			t.root = c
		case s.right:
			t.nodes[s.parent].right = c
		default:
			t.nodes[s.parent].left = c
		}
	}

	if r.Remaining() != 0 {
		return nil, corrupt(path, int64(r.Pos()), "%d trailing bytes", r.Remaining())
	}
	if t.root.leaf {
		return nil, corrupt(path, TreeHeaderSize, "root is a leaf reference but IsLeaf is unset")
	}
	if got := int32(len(t.nodes) + t.leaves); got != h.PageCount {
		return nil, corrupt(path, 4, "header page count %d, body has %d", h.PageCount, got)
	}
	return t, nil
}

type decodedNode struct {
	node treeNode
	size int32
}

func decodeNode(r *codec.Reader, kind codec.Kind, unique bool) (decodedNode, error) {
	size, err := r.Int32()
	if err != nil {
		return decodedNode{}, err
	}
	var offsets []int32
	if unique {
		v, err := r.Int32()
		if err != nil {
			return decodedNode{}, err
		}
		offsets = []int32{v}
	} else {
		n, err := r.Int32()
		if err != nil {
			return decodedNode{}, err
		}
		if n < 1 || int(n) > r.Remaining()/4 {
			return decodedNode{}, errors.Errorf("bad offset count %d", n)
		}
		offsets = make([]int32, n)
		for i := range offsets {
			if offsets[i], err = r.Int32(); err != nil {
				return decodedNode{}, err
			}
		}
	}
	key, err := r.Key(kind)
	if err != nil {
		return decodedNode{}, err
	}
	return decodedNode{node: treeNode{key: key, offsets: offsets}, size: size}, nil
}

// Nodes is the number of internal nodes.
func (t *Tree) Nodes() int { return len(t.nodes) }

// Leaves is the number of leaf references.
func (t *Tree) Leaves() int { return t.leaves }

// Height is the number of levels from the root to the deepest leaf.
func (t *Tree) Height() int {
	if t.Header.IsLeaf {
		return 1
	}
	type item struct {
		r     ref
		depth int
	}
	best := 0
	stack := []item{{t.root, 1}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if it.r.leaf {
			best = max(best, it.depth)
			continue
		}
		n := t.nodes[it.r.at]
		stack = append(stack, item{n.left, it.depth + 1}, item{n.right, it.depth + 1})
	}
	return best
}
