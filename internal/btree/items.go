package btree

import (
	"io"
	"iter"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/tuannm99/novacsv/internal/alias/bx"
	"github.com/tuannm99/novacsv/internal/codec"
	"github.com/tuannm99/novacsv/pkg/clockx"
)

// pageInfo is what the pre-scan learns about one leaf without decoding it.
type pageInfo struct {
	offset  int32
	size    int32
	count   int32
	unique  bool
	entries []Entry // nil until first access
}

// Items reads leaf pages of an items file on demand. Decoded pages are
// memoized per reader; the cache is guarded so a reader may be shared. With a
// cache limit, a CLOCK replacer picks the page to drop when the limit is hit.
type Items struct {
	path  string
	f     *os.File
	kind  codec.Kind
	pages map[int32]*pageInfo
	order []int32

	mu     sync.Mutex
	clock  *clockx.Clock
	slots  []int32
	slotOf map[int32]int
}

// OpenItems opens an items file and pre-scans every page prefix.
func OpenItems(path string) (*Items, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open items file %s", path)
	}
	it := &Items{path: path, f: f, pages: make(map[int32]*pageInfo)}
	if err := it.scan(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return it, nil
}

func (it *Items) scan() error {
	st, err := it.f.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat %s", it.path)
	}
	size := st.Size()

	var hdr [ItemsHeaderSize]byte
	if _, err := it.f.ReadAt(hdr[:], 0); err != nil {
		if errors.Is(err, io.EOF) {
			return corrupt(it.path, 0, "items header truncated")
		}
		return errors.Wrapf(err, "read %s", it.path)
	}
	pageCount := bx.I32At(hdr[:], 0)
	it.kind = codec.Kind(bx.I32At(hdr[:], 4))
	if !it.kind.Valid() {
		return corrupt(it.path, 4, "unknown key type code %d", bx.I32At(hdr[:], 4))
	}
	if pageCount < 1 {
		return corrupt(it.path, 0, "page count %d", pageCount)
	}

	off := int64(ItemsHeaderSize)
	var prefix [LeafPrefixSize]byte
	for i := int32(0); i < pageCount; i++ {
		if off+LeafPrefixSize > size {
			return corrupt(it.path, off, "page %d prefix past end of file", i)
		}
		if _, err := it.f.ReadAt(prefix[:], off); err != nil {
			return errors.Wrapf(err, "read %s", it.path)
		}
		flags := bx.I32At(prefix[:], 0)
		self := bx.I32At(prefix[:], 4)
		psize := bx.I32At(prefix[:], 8)
		count := bx.I32At(prefix[:], 12)

		if flags&^bufUnique != bufItems {
			return corrupt(it.path, off, "unexpected page flags %#x", flags)
		}
		if int64(self) != off {
			return corrupt(it.path, off, "page claims offset %d", self)
		}
		if psize < LeafPrefixSize || off+int64(psize) > size {
			return corrupt(it.path, off, "page size %d", psize)
		}
		if count < 0 {
			return corrupt(it.path, off, "item count %d", count)
		}

		it.pages[self] = &pageInfo{offset: self, size: psize, count: count, unique: flags&bufUnique != 0}
		it.order = append(it.order, self)
		off += int64(psize)
	}
	if off != size {
		return corrupt(it.path, off, "%d trailing bytes", size-off)
	}
	return nil
}

func (it *Items) Kind() codec.Kind { return it.kind }
func (it *Items) PageCount() int   { return len(it.order) }

// Pages lists page offsets in file order.
func (it *Items) Pages() []int32 { return append([]int32(nil), it.order...) }

// Entries returns the decoded entries of a page, loading it on first use.
func (it *Items) Entries(page int32) ([]Entry, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	p, ok := it.pages[page]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownPage, "%s offset %d", it.path, page)
	}
	if p.entries != nil {
		if slot, ok := it.slotOf[page]; ok {
			it.clock.Touch(slot)
		}
		return p.entries, nil
	}

	buf := make([]byte, p.size)
	if _, err := it.f.ReadAt(buf, int64(p.offset)); err != nil {
		return nil, errors.Wrapf(err, "read page %d of %s", p.offset, it.path)
	}
	entries, err := decodeLeafBody(buf, it.kind, int(p.count), p.unique)
	if err != nil {
		return nil, corrupt(it.path, int64(p.offset), "decode page: %v", err)
	}
	for i := 1; i < len(entries); i++ {
		if codec.Compare(entries[i-1].Key, entries[i].Key) >= 0 {
			return nil, corrupt(it.path, int64(p.offset), "page keys out of order at item %d", i)
		}
	}
	p.entries = entries
	it.admit(page)
	return entries, nil
}

// SetCacheLimit bounds how many decoded pages stay cached; n <= 0 removes the
// bound. Pages cached so far are dropped.
func (it *Items) SetCacheLimit(n int) {
	it.mu.Lock()
	defer it.mu.Unlock()
	for _, p := range it.pages {
		p.entries = nil
	}
	it.clock, it.slots, it.slotOf = nil, nil, nil
	if n > 0 {
		it.clock = clockx.New(n)
		it.slots = make([]int32, n)
		it.slotOf = make(map[int32]int, n)
	}
}

// admit gives a freshly decoded page a replacer slot, evicting another page
// when all slots are taken. Callers hold it.mu.
func (it *Items) admit(page int32) {
	if it.clock == nil {
		return
	}
	slot, ok := it.clock.Acquire()
	if !ok {
		slot, _ = it.clock.Evict()
		victim := it.slots[slot]
		it.pages[victim].entries = nil
		delete(it.slotOf, victim)
	}
	it.slots[slot] = page
	it.slotOf[page] = slot
}

// Release drops the cached entries of a page.
func (it *Items) Release(page int32) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if p, ok := it.pages[page]; ok {
		p.entries = nil
	}
	if slot, ok := it.slotOf[page]; ok {
		it.clock.Remove(slot)
		delete(it.slotOf, page)
	}
}

// Cached reports how many pages are currently decoded.
func (it *Items) Cached() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	n := 0
	for _, p := range it.pages {
		if p.entries != nil {
			n++
		}
	}
	return n
}

// Find looks key up in one page.
func (it *Items) Find(page int32, key codec.Key) (Entry, bool, error) {
	entries, err := it.Entries(page)
	if err != nil {
		return Entry{}, false, err
	}
	i := sort.Search(len(entries), func(i int) bool {
		return codec.Compare(entries[i].Key, key) >= 0
	})
	if i < len(entries) && codec.Compare(entries[i].Key, key) == 0 {
		return entries[i], true, nil
	}
	return Entry{}, false, nil
}

// Filter yields, in key order, the offsets of every entry of the page whose
// key satisfies `entry op key`.
func (it *Items) Filter(page int32, key codec.Key, op Op) iter.Seq2[int32, error] {
	return func(yield func(int32, error) bool) {
		it.filter(page, key, op, yield)
	}
}

func (it *Items) filter(page int32, key codec.Key, op Op, yield func(int32, error) bool) bool {
	entries, err := it.Entries(page)
	if err != nil {
		yield(0, err)
		return false
	}
	for i := range entries {
		if !op.Match(codec.Compare(entries[i].Key, key)) {
			continue
		}
		for _, off := range entries[i].Offsets {
			if !yield(off, nil) {
				return false
			}
		}
	}
	return true
}

func (it *Items) emitAll(page int32, yield func(int32, error) bool) bool {
	entries, err := it.Entries(page)
	if err != nil {
		yield(0, err)
		return false
	}
	for i := range entries {
		for _, off := range entries[i].Offsets {
			if !yield(off, nil) {
				return false
			}
		}
	}
	return true
}

func (it *Items) Close() error {
	if it.f == nil {
		return nil
	}
	err := it.f.Close()
	it.f = nil
	return err
}
