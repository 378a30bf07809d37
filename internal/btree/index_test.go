package btree

import (
	"os"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novacsv/internal/codec"
)

func openIndex(t *testing.T, entries []Entry, kind codec.Kind, page int) *Index {
	t.Helper()
	fs := FileSet{Dir: t.TempDir(), Table: "t", Column: "c"}
	_, err := WriteIndex(fs, entries, Options{PageSize: page, Kind: kind})
	require.NoError(t, err)
	ix, err := Open(fs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

// expected filters the sorted input the slow way.
func expected(entries []Entry, op Op, key codec.Key) []int32 {
	var out []int32
	for _, e := range entries {
		if op.Match(codec.Compare(e.Key, key)) {
			out = append(out, e.Offsets...)
		}
	}
	return out
}

func TestIndex_OperatorsMatchScan(t *testing.T) {
	for _, tc := range []struct {
		name string
		n    int
		page int
		dup  bool
	}{
		{"single leaf", 6, 8, false},
		{"page 2", 31, 2, false},
		{"page 3 dup", 64, 3, true},
		{"page 5", 200, 5, true},
		{"exact fit", 256, 256, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			entries := intEntries(tc.n, tc.dup)
			ix := openIndex(t, entries, codec.KindInt32, tc.page)

			for probe := int32(-2); probe <= int32(tc.n)+1; probe++ {
				key := codec.Int32(probe)
				for _, op := range []Op{OpEq, OpNe, OpLt, OpLe, OpGt, OpGe} {
					got, err := Collect(ix.Find(op, key))
					require.NoError(t, err)
					require.Equal(t, expected(entries, op, key), got, "%s %d", op, probe)
				}
			}

			all, err := Collect(ix.Dump())
			require.NoError(t, err)
			require.Equal(t, expected(entries, OpNe, codec.Int32(-100)), all)
		})
	}
}

func TestIndex_StrictBoundsExcludeProbe(t *testing.T) {
	ix := openIndex(t, intEntries(40, false), codec.KindInt32, 2)

	// Probe every key that sits in an internal node as well as in a leaf.
	for probe := int32(0); probe < 40; probe++ {
		gt, err := Collect(ix.FindGreater(codec.Int32(probe)))
		require.NoError(t, err)
		require.NotContains(t, gt, probe*4)

		lt, err := Collect(ix.FindLess(codec.Int32(probe)))
		require.NoError(t, err)
		require.NotContains(t, lt, probe*4)

		require.Len(t, gt, 39-int(probe))
		require.Len(t, lt, int(probe))
	}
}

func TestIndex_EarlyStop(t *testing.T) {
	ix := openIndex(t, intEntries(100, false), codec.KindInt32, 3)
	var got []int32
	for off, err := range ix.FindGreaterOrEqual(codec.Int32(10)) {
		require.NoError(t, err)
		got = append(got, off)
		if len(got) == 5 {
			break
		}
	}
	require.Equal(t, []int32{40, 44, 48, 52, 56}, got)
}

func TestIndex_StringKeys(t *testing.T) {
	c := NewCollector(codec.KindString)
	names := []string{"pear", "apple", "fig", "kiwi", "banana", "cherry", "date", "grape", "apple", "lime"}
	for i, n := range names {
		require.NoError(t, c.Add(codec.String(n), int32(i*10)))
	}
	entries := c.Entries()
	ix := openIndex(t, entries, codec.KindString, 2)
	require.False(t, ix.Unique())

	got, err := Collect(ix.FindExact(codec.String("apple")))
	require.NoError(t, err)
	require.Equal(t, []int32{10, 80}, got)

	got, err = Collect(ix.FindLess(codec.String("cherry")))
	require.NoError(t, err)
	require.Equal(t, []int32{10, 80, 40}, got)

	got, err = Collect(ix.FindGreaterOrEqual(codec.String("kiwi")))
	require.NoError(t, err)
	require.Equal(t, []int32{30, 90, 0}, got)

	got, err = Collect(ix.FindExact(codec.String("zzz")))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestIndex_EmptyIndex(t *testing.T) {
	ix := openIndex(t, nil, codec.KindInt64, 4)
	require.Equal(t, 1, ix.Height())
	for _, op := range []Op{OpEq, OpNe, OpLt, OpGt} {
		got, err := Collect(ix.Find(op, codec.Int64(1)))
		require.NoError(t, err)
		require.Empty(t, got)
	}
}

func TestIndex_KeyKindMismatch(t *testing.T) {
	ix := openIndex(t, intEntries(10, false), codec.KindInt32, 4)
	_, err := Collect(ix.FindExact(codec.Int64(3)))
	require.True(t, errors.Is(err, ErrKeyKind))
}

func TestIndex_HeightAndCounts(t *testing.T) {
	ix := openIndex(t, intEntries(1000, false), codec.KindInt32, 16)
	require.True(t, ix.Unique())
	require.Equal(t, int32(ix.tree.Nodes()+ix.tree.Leaves()), ix.PageCount())
	require.Equal(t, ix.tree.Leaves(), ix.Items().PageCount())
	require.LessOrEqual(t, ix.Height(), 8)
}

func TestItems_LazyPagesAndRelease(t *testing.T) {
	ix := openIndex(t, intEntries(64, false), codec.KindInt32, 4)
	items := ix.Items()
	require.Equal(t, 0, items.Cached())

	_, err := Collect(ix.FindExact(codec.Int32(1)))
	require.NoError(t, err)
	require.Equal(t, 1, items.Cached())

	pages := items.Pages()
	entries, err := items.Entries(pages[0])
	require.NoError(t, err)
	require.Equal(t, codec.Int32(0), entries[0].Key)

	items.Release(pages[0])
	require.Equal(t, 0, items.Cached())

	_, err = items.Entries(3)
	require.True(t, errors.Is(err, ErrUnknownPage))

	got, err := Collect(items.Filter(pages[0], codec.Int32(1), OpGe))
	require.NoError(t, err)
	require.NotEmpty(t, got)
	require.Equal(t, int32(4), got[0])
}

func writeAndCorrupt(t *testing.T, mutate func(fs FileSet)) error {
	t.Helper()
	fs := FileSet{Dir: t.TempDir(), Table: "t", Column: "c"}
	_, err := WriteIndex(fs, intEntries(30, true), Options{PageSize: 3, Kind: codec.KindInt32})
	require.NoError(t, err)
	mutate(fs)
	ix, err := Open(fs)
	if err == nil {
		_, err = Collect(ix.Dump())
		_ = ix.Close()
	}
	return err
}

func patch(t *testing.T, path string, fn func(b []byte) []byte) {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, fn(b), 0o644))
}

func TestOpen_DetectsCorruption(t *testing.T) {
	cases := map[string]func(fs FileSet){
		"tree flags": func(fs FileSet) {
			patch(t, fs.TreePath(), func(b []byte) []byte { b[TreeHeaderSize] = 9; return b })
		},
		"tree trailing": func(fs FileSet) {
			patch(t, fs.TreePath(), func(b []byte) []byte { return append(b, 0) })
		},
		"tree truncated": func(fs FileSet) {
			patch(t, fs.TreePath(), func(b []byte) []byte { return b[:len(b)-4] })
		},
		"header kind": func(fs FileSet) {
			patch(t, fs.TreePath(), func(b []byte) []byte { b[12] = 99; return b })
		},
		"page count": func(fs FileSet) {
			patch(t, fs.TreePath(), func(b []byte) []byte { b[4]++; return b })
		},
		"items truncated": func(fs FileSet) {
			patch(t, fs.ItemsPath(), func(b []byte) []byte { return b[:len(b)-1] })
		},
		"items self offset": func(fs FileSet) {
			patch(t, fs.ItemsPath(), func(b []byte) []byte { b[ItemsHeaderSize+4]++; return b })
		},
		"items kind": func(fs FileSet) {
			patch(t, fs.ItemsPath(), func(b []byte) []byte { b[4] = byte(codec.KindInt64); return b })
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			err := writeAndCorrupt(t, mutate)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrCorruptIndex), "%v", err)
		})
	}
}

func TestItems_CacheLimit(t *testing.T) {
	entries := intEntries(64, false)
	ix := openIndex(t, entries, codec.KindInt32, 4)
	items := ix.Items()
	items.SetCacheLimit(2)

	got, err := Collect(ix.Dump())
	require.NoError(t, err)
	require.Len(t, got, len(entries))
	for i, e := range entries {
		require.Equal(t, e.Offsets[0], got[i])
	}
	require.Equal(t, 2, items.Cached())

	pages := items.Pages()
	items.Release(pages[len(pages)-1])
	require.Equal(t, 1, items.Cached())

	// loads past the limit evict instead of growing the cache
	_, err = items.Entries(pages[0])
	require.NoError(t, err)
	_, err = items.Entries(pages[1])
	require.NoError(t, err)
	require.Equal(t, 2, items.Cached())

	items.SetCacheLimit(0)
	require.Equal(t, 0, items.Cached())
	got, err = Collect(ix.FindLess(codec.Int32(10)))
	require.NoError(t, err)
	require.Len(t, got, 10)
	require.Positive(t, items.Cached())
}
