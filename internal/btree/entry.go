package btree

import (
	gbtree "github.com/google/btree"
	"github.com/pkg/errors"

	"github.com/tuannm99/novacsv/internal/codec"
)

// Entry is one distinct key with every row offset that carries it.
type Entry struct {
	Key     codec.Key
	Offsets []int32
}

// Collector groups raw (key, offset) pairs into the sorted, deduplicated
// key collection the builder consumes.
type Collector struct {
	kind  codec.Kind
	tree  *gbtree.BTreeG[*Entry]
	pairs int
}

func NewCollector(kind codec.Kind) *Collector {
	return &Collector{
		kind: kind,
		tree: gbtree.NewG[*Entry](32, func(a, b *Entry) bool {
			return codec.Compare(a.Key, b.Key) < 0
		}),
	}
}

// Add records that the row at off carries key. Offsets of one key keep the
// order in which they were added.
func (c *Collector) Add(key codec.Key, off int32) error {
	if key.Kind != c.kind {
		return errors.Wrapf(ErrKeyKind, "collector %s got %s", c.kind, key.Kind)
	}
	if key.Kind == codec.KindDecimal {
		d, err := codec.FitDecimal(key.D)
		if err != nil {
			return err
		}
		key = codec.Decimal(d)
	}
	c.pairs++
	probe := &Entry{Key: key}
	if e, ok := c.tree.Get(probe); ok {
		e.Offsets = append(e.Offsets, off)
		return nil
	}
	probe.Offsets = []int32{off}
	c.tree.ReplaceOrInsert(probe)
	return nil
}

func (c *Collector) Len() int   { return c.tree.Len() }
func (c *Collector) Pairs() int { return c.pairs }

// Entries returns the collection in ascending key order.
func (c *Collector) Entries() []Entry {
	out := make([]Entry, 0, c.tree.Len())
	c.tree.Ascend(func(e *Entry) bool {
		out = append(out, *e)
		return true
	})
	return out
}

// Validate checks the builder's input invariants.
func Validate(entries []Entry) error {
	for i := range entries {
		if len(entries[i].Offsets) == 0 {
			return errors.Wrapf(ErrEmptyOffsets, "entry %d (%s)", i, entries[i].Key)
		}
		if i == 0 {
			continue
		}
		if entries[i].Key.Kind != entries[0].Key.Kind {
			return errors.Wrapf(ErrKeyKind, "entry %d is %s, entry 0 is %s", i, entries[i].Key.Kind, entries[0].Key.Kind)
		}
		if codec.Compare(entries[i-1].Key, entries[i].Key) >= 0 {
			return errors.Wrapf(ErrUnsortedInput, "entry %d (%s) after %s", i, entries[i].Key, entries[i-1].Key)
		}
	}
	return nil
}

// IsUnique reports whether every key has exactly one offset.
func IsUnique(entries []Entry) bool {
	for i := range entries {
		if len(entries[i].Offsets) != 1 {
			return false
		}
	}
	return true
}
