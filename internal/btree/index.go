package btree

import (
	"iter"

	"github.com/pkg/errors"

	"github.com/tuannm99/novacsv/internal/codec"
)

// Index is an opened column index: the in-memory tree plus its items file.
// Every lookup yields row offsets in ascending key order.
type Index struct {
	fs    FileSet
	tree  *Tree
	items *Items
	root  ref
}

// Open loads the tree file and pre-scans the items file of one column index.
func Open(fs FileSet) (*Index, error) {
	tree, err := OpenTree(fs.TreePath())
	if err != nil {
		return nil, err
	}
	items, err := OpenItems(fs.ItemsPath())
	if err != nil {
		return nil, err
	}
	ix := &Index{fs: fs, tree: tree, items: items, root: tree.root}
	if tree.Header.IsLeaf {
		ix.root = ref{leaf: true, at: ItemsHeaderSize}
	}
	if err := ix.check(); err != nil {
		_ = items.Close()
		return nil, err
	}
	return ix, nil
}

// check cross-validates the two files: same key kind, and the tree's leaf
// references are exactly the items pages in file order.
func (ix *Index) check() error {
	if ix.items.Kind() != ix.tree.Header.Kind {
		return corrupt(ix.fs.ItemsPath(), 4, "items kind %s, tree kind %s", ix.items.Kind(), ix.tree.Header.Kind)
	}
	pages := ix.items.Pages()
	var refs []int32
	ix.walk(ix.root, func(r ref) { refs = append(refs, r.at) })
	if len(refs) != len(pages) {
		return corrupt(ix.fs.ItemsPath(), 0, "tree references %d pages, items file has %d", len(refs), len(pages))
	}
	for i := range refs {
		if refs[i] != pages[i] {
			return corrupt(ix.fs.TreePath(), 0, "leaf %d references offset %d, expected %d", i, refs[i], pages[i])
		}
	}
	return nil
}

// walk visits leaf references left to right.
func (ix *Index) walk(r ref, visit func(ref)) {
	stack := []ref{r}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.leaf {
			visit(cur)
			continue
		}
		n := &ix.tree.nodes[cur.at]
		stack = append(stack, n.right, n.left)
	}
}

func (ix *Index) Header() Header   { return ix.tree.Header }
func (ix *Index) Kind() codec.Kind { return ix.tree.Header.Kind }
func (ix *Index) Height() int      { return ix.tree.Height() }
func (ix *Index) Unique() bool     { return ix.tree.Header.Unique }
func (ix *Index) Items() *Items    { return ix.items }
func (ix *Index) Files() FileSet   { return ix.fs }
func (ix *Index) PageCount() int32 { return ix.tree.Header.PageCount }
func (ix *Index) Close() error     { return ix.items.Close() }

func (ix *Index) checkKey(key codec.Key) error {
	if key.Kind != ix.Kind() {
		return errors.Wrapf(ErrKeyKind, "%s.%s is %s, probe is %s", ix.fs.Table, ix.fs.Column, ix.Kind(), key.Kind)
	}
	return nil
}

// Find dispatches on op.
func (ix *Index) Find(op Op, key codec.Key) iter.Seq2[int32, error] {
	switch op {
	case OpEq:
		return ix.FindExact(key)
	case OpNe:
		return ix.FindNotEqual(key)
	case OpLt:
		return ix.FindLess(key)
	case OpLe:
		return ix.FindLessOrEqual(key)
	case OpGt:
		return ix.FindGreater(key)
	case OpGe:
		return ix.FindGreaterOrEqual(key)
	}
	return func(yield func(int32, error) bool) {
		yield(0, errors.Errorf("btree: unsupported operator %d", op))
	}
}

// Dump yields every offset of the index.
func (ix *Index) Dump() iter.Seq2[int32, error] {
	return func(yield func(int32, error) bool) {
		ix.dump(ix.root, yield)
	}
}

func (ix *Index) FindExact(key codec.Key) iter.Seq2[int32, error] {
	return ix.seq(key, func(yield func(int32, error) bool) {
		cur := ix.root
		for !cur.leaf {
			n := &ix.tree.nodes[cur.at]
			switch c := codec.Compare(key, n.key); {
			case c == 0:
				emit(n.offsets, yield)
				return
			case c < 0:
				cur = n.left
			default:
				cur = n.right
			}
		}
		e, ok, err := ix.items.Find(cur.at, key)
		if err != nil {
			yield(0, err)
			return
		}
		if ok {
			emit(e.Offsets, yield)
		}
	})
}

func (ix *Index) FindGreater(key codec.Key) iter.Seq2[int32, error] {
	return ix.seq(key, func(yield func(int32, error) bool) { ix.greater(key, false, yield) })
}

func (ix *Index) FindGreaterOrEqual(key codec.Key) iter.Seq2[int32, error] {
	return ix.seq(key, func(yield func(int32, error) bool) { ix.greater(key, true, yield) })
}

func (ix *Index) FindLess(key codec.Key) iter.Seq2[int32, error] {
	return ix.seq(key, func(yield func(int32, error) bool) { ix.less(key, false, yield) })
}

func (ix *Index) FindLessOrEqual(key codec.Key) iter.Seq2[int32, error] {
	return ix.seq(key, func(yield func(int32, error) bool) { ix.less(key, true, yield) })
}

// FindNotEqual is the strict-less result followed by the strict-greater one.
func (ix *Index) FindNotEqual(key codec.Key) iter.Seq2[int32, error] {
	return ix.seq(key, func(yield func(int32, error) bool) {
		if ix.less(key, false, yield) {
			ix.greater(key, false, yield)
		}
	})
}

func (ix *Index) seq(key codec.Key, body func(yield func(int32, error) bool)) iter.Seq2[int32, error] {
	return func(yield func(int32, error) bool) {
		if err := ix.checkKey(key); err != nil {
			yield(0, err)
			return
		}
		body(yield)
	}
}

// greater descends toward key. Nodes whose key exceeds the probe are kept
// pending; once the descent ends they are unwound innermost first, each
// followed by its right subtree.
func (ix *Index) greater(key codec.Key, inclusive bool, yield func(int32, error) bool) bool {
	op := OpGt
	if inclusive {
		op = OpGe
	}
	var pending []*treeNode
	cur := ix.root
	for {
		if cur.leaf {
			if !ix.items.filter(cur.at, key, op, yield) {
				return false
			}
			break
		}
		n := &ix.tree.nodes[cur.at]
		c := codec.Compare(key, n.key)
		if c < 0 {
			pending = append(pending, n)
			cur = n.left
			continue
		}
		if c == 0 {
			if inclusive && !emit(n.offsets, yield) {
				return false
			}
			if !ix.dump(n.right, yield) {
				return false
			}
			break
		}
		cur = n.right
	}
	for i := len(pending) - 1; i >= 0; i-- {
		n := pending[i]
		if !emit(n.offsets, yield) || !ix.dump(n.right, yield) {
			return false
		}
	}
	return true
}

// less walks from the smallest key upward: every node below the probe
// contributes its left subtree and itself before the walk turns right.
func (ix *Index) less(key codec.Key, inclusive bool, yield func(int32, error) bool) bool {
	op := OpLt
	if inclusive {
		op = OpLe
	}
	cur := ix.root
	for !cur.leaf {
		n := &ix.tree.nodes[cur.at]
		c := codec.Compare(key, n.key)
		switch {
		case c > 0:
			if !ix.dump(n.left, yield) || !emit(n.offsets, yield) {
				return false
			}
			cur = n.right
		case c == 0:
			if !ix.dump(n.left, yield) {
				return false
			}
			if inclusive {
				return emit(n.offsets, yield)
			}
			return true
		default:
			cur = n.left
		}
	}
	return ix.items.filter(cur.at, key, op, yield)
}

// dump yields a whole subtree in order.
func (ix *Index) dump(r ref, yield func(int32, error) bool) bool {
	var stack []*treeNode
	cur := r
	for {
		for !cur.leaf {
			n := &ix.tree.nodes[cur.at]
			stack = append(stack, n)
			cur = n.left
		}
		if !ix.items.emitAll(cur.at, yield) {
			return false
		}
		if len(stack) == 0 {
			return true
		}
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !emit(n.offsets, yield) {
			return false
		}
		cur = n.right
	}
}

func emit(offsets []int32, yield func(int32, error) bool) bool {
	for _, off := range offsets {
		if !yield(off, nil) {
			return false
		}
	}
	return true
}

// Collect drains a lookup into a slice, stopping at the first error.
func Collect(seq iter.Seq2[int32, error]) ([]int32, error) {
	var out []int32
	for off, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, off)
	}
	return out, nil
}
