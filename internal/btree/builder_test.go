package btree

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novacsv/internal/codec"
)

func intEntries(n int, dup bool) []Entry {
	out := make([]Entry, n)
	for i := range out {
		out[i] = Entry{Key: codec.Int32(int32(i)), Offsets: []int32{int32(i) * 4}}
		if dup && i%3 == 0 {
			out[i].Offsets = append(out[i].Offsets, int32(i)*4+1)
		}
	}
	return out
}

func TestBuild_Validation(t *testing.T) {
	_, err := Build(intEntries(3, false), Options{PageSize: 1, Kind: codec.KindInt32})
	require.True(t, errors.Is(err, ErrBadPageSize))

	unsorted := []Entry{
		{Key: codec.Int32(2), Offsets: []int32{0}},
		{Key: codec.Int32(1), Offsets: []int32{4}},
	}
	_, err = Build(unsorted, Options{PageSize: 4, Kind: codec.KindInt32})
	require.True(t, errors.Is(err, ErrUnsortedInput))

	dupKey := []Entry{
		{Key: codec.Int32(1), Offsets: []int32{0}},
		{Key: codec.Int32(1), Offsets: []int32{4}},
	}
	_, err = Build(dupKey, Options{PageSize: 4, Kind: codec.KindInt32})
	require.True(t, errors.Is(err, ErrUnsortedInput))

	empty := []Entry{{Key: codec.Int32(1)}}
	_, err = Build(empty, Options{PageSize: 4, Kind: codec.KindInt32})
	require.True(t, errors.Is(err, ErrEmptyOffsets))

	_, err = Build(intEntries(3, false), Options{PageSize: 4, Kind: codec.KindInt64})
	require.True(t, errors.Is(err, ErrKeyKind))
}

func TestBuild_SingleLeaf(t *testing.T) {
	b, err := Build(intEntries(5, false), Options{PageSize: 8, Kind: codec.KindInt32, Ordinal: 2, IsKey: true})
	require.NoError(t, err)

	require.Len(t, b.Tree, TreeHeaderSize)
	h, err := decodeHeader("mem", b.Tree)
	require.NoError(t, err)
	require.True(t, h.IsLeaf)
	require.True(t, h.IsKey)
	require.True(t, h.Unique)
	require.Equal(t, int32(1), h.PageCount)
	require.Equal(t, int32(2), h.Ordinal)
	require.Equal(t, codec.KindInt32, h.Kind)

	require.Equal(t, 1, b.Stats.Leaves)
	require.Equal(t, 0, b.Stats.Nodes)
	require.Equal(t, 1, b.Stats.Height)
}

func TestBuild_Empty(t *testing.T) {
	b, err := Build(nil, Options{PageSize: 4, Kind: codec.KindString})
	require.NoError(t, err)
	require.Equal(t, 1, b.Stats.Leaves)
	require.Equal(t, 0, b.Stats.Keys)
	// header + one empty leaf prefix
	require.Len(t, b.Items, ItemsHeaderSize+LeafPrefixSize)
}

func TestBuild_Shape(t *testing.T) {
	for _, tc := range []struct {
		n, page int
	}{
		{3, 2}, {10, 2}, {100, 3}, {1000, 16}, {1025, 256}, {4096, 7},
	} {
		entries := intEntries(tc.n, false)
		arena, height := split(entries, tc.page)

		leaves := inOrderLeaves(arena)
		covered := 0
		prevHi := -1
		for _, slot := range leaves {
			n := arena[slot]
			size := n.hi - n.lo + 1
			require.LessOrEqual(t, size, tc.page)
			require.Positive(t, size, "n=%d page=%d: empty leaf", tc.n, tc.page)
			require.Greater(t, n.lo, prevHi)
			prevHi = n.hi
			covered += size
		}

		nodes := 0
		for i := range arena {
			if !arena[i].leaf {
				nodes++
				require.GreaterOrEqual(t, arena[i].left, int32(0))
				require.GreaterOrEqual(t, arena[i].right, int32(0))
			}
		}
		require.Equal(t, tc.n, covered+nodes, "every key lands in exactly one page")

		var depth func(i int32) int
		depth = func(i int32) int {
			if arena[i].leaf {
				return 1
			}
			l, r := depth(arena[i].left), depth(arena[i].right)
			require.LessOrEqual(t, abs(l-r), 1, "unbalanced at slot %d", i)
			return 1 + max(l, r)
		}
		require.Equal(t, height, depth(0))
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestBuild_MedianSplit(t *testing.T) {
	// 5 keys with page size 2: root is entries[2], leaves {0,1} and {3,4}.
	entries := intEntries(5, false)
	arena, height := split(entries, 2)
	require.Equal(t, 2, height)
	require.False(t, arena[0].leaf)
	require.Equal(t, 2, arena[0].entry)

	l, r := arena[arena[0].left], arena[arena[0].right]
	require.True(t, l.leaf)
	require.True(t, r.leaf)
	require.Equal(t, [2]int{0, 1}, [2]int{l.lo, l.hi})
	require.Equal(t, [2]int{3, 4}, [2]int{r.lo, r.hi})
}

func TestBuild_TooManyOffsets(t *testing.T) {
	offs := make([]int32, 1<<16)
	for i := range offs {
		offs[i] = int32(i)
	}
	_, err := Build([]Entry{{Key: codec.Int32(7), Offsets: offs}}, Options{PageSize: 4, Kind: codec.KindInt32})
	require.True(t, errors.Is(err, ErrTooManyOffsets))

	_, err = Build([]Entry{{Key: codec.Int32(7), Offsets: offs[:1<<16-1]}}, Options{PageSize: 4, Kind: codec.KindInt32})
	require.NoError(t, err)
}

func TestWriteIndex_FilesAndDrop(t *testing.T) {
	fs := FileSet{Dir: t.TempDir(), Table: "routes", Column: "route_id"}
	st, err := WriteIndex(fs, intEntries(50, true), Options{PageSize: 4, Kind: codec.KindInt32})
	require.NoError(t, err)
	require.False(t, st.Unique)
	require.True(t, Exists(fs))

	require.Equal(t, filepath.Join(fs.Dir, "routes.route_id.index"), fs.TreePath())
	require.Equal(t, filepath.Join(fs.Dir, "routes.route_id.index.bin"), fs.ItemsPath())

	tree, err := os.ReadFile(fs.TreePath())
	require.NoError(t, err)
	h, err := decodeHeader(fs.TreePath(), tree)
	require.NoError(t, err)
	require.Equal(t, int32(st.PageCount()), h.PageCount)
	require.False(t, h.Unique)

	matches, err := filepath.Glob(filepath.Join(fs.Dir, "*.tmp-*"))
	require.NoError(t, err)
	require.Empty(t, matches)
	for _, p := range []string{fs.TreePath(), fs.ItemsPath()} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(indexFilePerm), info.Mode().Perm())
	}

	// a rebuild replaces both files in place
	_, err = WriteIndex(fs, intEntries(3, false), Options{PageSize: 4, Kind: codec.KindInt32})
	require.NoError(t, err)
	ix, err := Open(fs)
	require.NoError(t, err)
	got, err := Collect(ix.Dump())
	require.NoError(t, err)
	require.Equal(t, []int32{0, 4, 8}, got)
	require.NoError(t, ix.Close())

	require.NoError(t, DropIndex(fs))
	require.False(t, Exists(fs))
	require.NoError(t, DropIndex(fs))
}

func TestCollector(t *testing.T) {
	c := NewCollector(codec.KindString)
	require.NoError(t, c.Add(codec.String("b"), 10))
	require.NoError(t, c.Add(codec.String("a"), 20))
	require.NoError(t, c.Add(codec.String("b"), 5))
	require.True(t, errors.Is(c.Add(codec.Int32(1), 0), ErrKeyKind))

	require.Equal(t, 2, c.Len())
	require.Equal(t, 3, c.Pairs())

	got := c.Entries()
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].Key.S)
	require.Equal(t, []int32{20}, got[0].Offsets)
	require.Equal(t, "b", got[1].Key.S)
	require.Equal(t, []int32{10, 5}, got[1].Offsets)
	require.NoError(t, Validate(got))
	require.False(t, IsUnique(got))
}

func TestWriteIndex_DecimalRoundTrip(t *testing.T) {
	fs := FileSet{Dir: t.TempDir(), Table: "fares", Column: "amount"}

	c := NewCollector(codec.KindDecimal)
	var want []int32
	for i := 0; i < 40; i++ {
		d := decimal.New(int64(i*37%40), -2)
		require.NoError(t, c.Add(codec.Decimal(d), int32(i)))
	}
	// equal to 1.5 once the trailing zeros are dropped
	require.NoError(t, c.Add(codec.Decimal(decimal.RequireFromString("1.500000000000000000000000000000")), 100))
	require.NoError(t, c.Add(codec.Decimal(decimal.RequireFromString("1.5")), 101))
	err := c.Add(codec.Decimal(decimal.RequireFromString("0.00000000000000000000000000001")), 102)
	require.True(t, errors.Is(err, codec.ErrDecimalRange))

	entries := c.Entries()
	require.NoError(t, Validate(entries))
	for _, e := range entries {
		want = append(want, e.Offsets...)
	}

	_, err = WriteIndex(fs, entries, Options{PageSize: 4, Kind: codec.KindDecimal, Ordinal: 1})
	require.NoError(t, err)
	ix, err := Open(fs)
	require.NoError(t, err)
	defer func() { _ = ix.Close() }()

	got, err := Collect(ix.Dump())
	require.NoError(t, err)
	require.Equal(t, want, got)

	got, err = Collect(ix.FindExact(codec.Decimal(decimal.RequireFromString("1.5"))))
	require.NoError(t, err)
	require.Equal(t, []int32{100, 101}, got)
}

func TestWriteIndex_RejectsUnencodableDecimal(t *testing.T) {
	fs := FileSet{Dir: t.TempDir(), Table: "fares", Column: "amount"}
	entries := []Entry{
		{Key: codec.Decimal(decimal.Zero), Offsets: []int32{0}},
		{Key: codec.Decimal(decimal.RequireFromString("0.00000000000000000000000000001")), Offsets: []int32{4}},
		{Key: codec.Decimal(decimal.NewFromInt(1)), Offsets: []int32{8}},
	}
	_, err := WriteIndex(fs, entries, Options{PageSize: 4, Kind: codec.KindDecimal})
	require.True(t, errors.Is(err, codec.ErrDecimalRange))
	require.False(t, Exists(fs))
}

func TestWriteIndex_LongStringKey(t *testing.T) {
	fs := FileSet{Dir: t.TempDir(), Table: "stops", Column: "name"}
	long := strings.Repeat("x", 300)
	entries := []Entry{
		{Key: codec.String("a"), Offsets: []int32{0}},
		{Key: codec.String(long), Offsets: []int32{4}},
	}
	_, err := WriteIndex(fs, entries, Options{PageSize: 4, Kind: codec.KindString})
	require.True(t, errors.Is(err, codec.ErrKeyTooLong))
	require.Contains(t, err.Error(), codec.Truncate(long))
	require.NotContains(t, err.Error(), long)
	require.False(t, Exists(fs))
}
