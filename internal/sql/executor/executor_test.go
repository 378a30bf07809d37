package executor

import (
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novacsv/internal/btree"
	"github.com/tuannm99/novacsv/internal/codec"
	"github.com/tuannm99/novacsv/internal/record"
	"github.com/tuannm99/novacsv/internal/sql/planner"
)

// ---- fakes ----

type memRows map[int32][]codec.Key

func (m memRows) ReadRecord(off int32) ([]codec.Key, error) {
	r, ok := m[off]
	if !ok {
		return nil, fmt.Errorf("no row at %d", off)
	}
	return r, nil
}

type fakeDB struct {
	dir      string
	schemas  map[string]*record.Schema
	rows     map[string]memRows
	opened   int
	released int
}

func newFakeDB(t *testing.T) *fakeDB {
	return &fakeDB{dir: t.TempDir(), schemas: map[string]*record.Schema{}, rows: map[string]memRows{}}
}

func (f *fakeDB) TableSchema(name string) (*record.Schema, bool) {
	s, ok := f.schemas[strings.ToLower(name)]
	return s, ok
}

func (f *fakeDB) OpenIndex(table, column string) (*btree.Index, func(), error) {
	ix, err := btree.Open(btree.FileSet{Dir: f.dir, Table: table, Column: column})
	if err != nil {
		return nil, nil, err
	}
	f.opened++
	return ix, func() { f.released++; _ = ix.Close() }, nil
}

func (f *fakeDB) Rows(table string) (RowReader, error) {
	r, ok := f.rows[table]
	if !ok {
		return nil, fmt.Errorf("no rows for %s", table)
	}
	return r, nil
}

// addTable stores rows at offsets 0, 4, 8, ... and indexes every indexed
// column with a small page size so trees have several levels.
func (f *fakeDB) addTable(t *testing.T, name string, schema *record.Schema, rows [][]codec.Key) []int32 {
	t.Helper()
	schema.Normalize()
	f.schemas[name] = schema
	mem := memRows{}
	offs := make([]int32, len(rows))
	for i, r := range rows {
		offs[i] = int32(i * 4)
		mem[offs[i]] = r
	}
	f.rows[name] = mem

	for _, col := range schema.Cols {
		if !col.IsIndexed {
			continue
		}
		c := btree.NewCollector(col.Type)
		for i, r := range rows {
			if r[col.Ordinal].IsNull() {
				continue
			}
			require.NoError(t, c.Add(r[col.Ordinal], offs[i]))
		}
		_, err := btree.WriteIndex(btree.FileSet{Dir: f.dir, Table: name, Column: col.Name}, c.Entries(),
			btree.Options{PageSize: 4, Kind: col.Type, Ordinal: col.Ordinal, IsKey: col.IsKey})
		require.NoError(t, err)
	}
	return offs
}

func routesDB(t *testing.T) *fakeDB {
	db := newFakeDB(t)
	var rows [][]codec.Key
	for i := 1; i <= 500; i++ {
		name := codec.String(fmt.Sprintf("route-%03d", i))
		agency := codec.Int32(int32(i % 7))
		if i%50 == 0 {
			agency = codec.Null
		}
		rows = append(rows, []codec.Key{codec.Int32(int32(i)), agency, name,
			codec.Decimal(decimal.New(int64(i), -1))})
	}
	db.addTable(t, "routes", &record.Schema{Cols: []record.Column{
		{Name: "route_id", Type: codec.KindInt32, IsKey: true},
		{Name: "agency_id", Type: codec.KindInt32, IsIndexed: true},
		{Name: "name", Type: codec.KindString},
		{Name: "fare", Type: codec.KindDecimal},
	}}, rows)

	db.addTable(t, "agencies", &record.Schema{Cols: []record.Column{
		{Name: "agency_id", Type: codec.KindInt32, IsKey: true},
		{Name: "title", Type: codec.KindString},
	}}, [][]codec.Key{
		{codec.Int32(1), codec.String("North")},
		{codec.Int32(2), codec.String("South")},
		{codec.Int32(3), codec.String("East")},
	})
	return db
}

func ints(res *Result, col int) []int64 {
	var out []int64
	for _, r := range res.Rows {
		switch v := r[col].(type) {
		case int32:
			out = append(out, int64(v))
		case int64:
			out = append(out, v)
		default:
			out = append(out, -1)
		}
	}
	return out
}

// ---- tests ----

func TestExecSQL_RoutesExample(t *testing.T) {
	db := routesDB(t)
	e := NewExecutor(db)

	res, err := e.ExecSQL("SELECT route_id FROM routes WHERE route_id >= 5 AND route_id <> 300 SKIP 2 LIMIT 5;")
	require.NoError(t, err)
	require.Equal(t, []string{"route_id"}, res.Columns)
	require.Equal(t, []int64{7, 8, 9, 10, 11}, ints(res, 0))
	require.Equal(t, []int32{24, 28, 32, 36, 40}, res.Offsets)
	require.Equal(t, db.opened, db.released)
}

func TestExecSQL_NoWhereDumpsKeyOrder(t *testing.T) {
	e := NewExecutor(routesDB(t))
	res, err := e.ExecSQL("SELECT * FROM routes LIMIT 3")
	require.NoError(t, err)
	require.Equal(t, []string{"route_id", "agency_id", "name", "fare"}, res.Columns)
	require.Equal(t, []int64{1, 2, 3}, ints(res, 0))
	require.Equal(t, "route-002", res.Rows[1][2])
}

func TestExecSQL_SingleComparisonKeepsKeyOrder(t *testing.T) {
	e := NewExecutor(routesDB(t))
	// agency_id order: all rows of agency 6 come in row order.
	res, err := e.ExecSQL("SELECT route_id, agency_id FROM routes WHERE agency_id >= 5 LIMIT 4")
	require.NoError(t, err)
	require.Equal(t, []int64{5, 12, 19, 26}, ints(res, 0))
	require.Equal(t, []int64{5, 5, 5, 5}, ints(res, 1))

	res, err = e.ExecSQL("SELECT route_id FROM routes WHERE route_id < 4")
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, ints(res, 0))
}

func TestExecSQL_StrictOperators(t *testing.T) {
	e := NewExecutor(routesDB(t))
	res, err := e.ExecSQL("SELECT route_id FROM routes WHERE route_id > 498")
	require.NoError(t, err)
	require.Equal(t, []int64{499, 500}, ints(res, 0))

	res, err = e.ExecSQL("SELECT route_id FROM routes WHERE 3 >= route_id")
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, ints(res, 0))
}

func TestExecSQL_Top(t *testing.T) {
	e := NewExecutor(routesDB(t))
	res, err := e.ExecSQL("SELECT TOP 2 route_id FROM routes WHERE route_id > 10")
	require.NoError(t, err)
	require.Equal(t, []int64{11, 12}, ints(res, 0))

	// 1 percent of 15 rows rounds up to 1.
	res, err = e.ExecSQL("SELECT TOP 1 PERCENT route_id FROM routes WHERE route_id <= 15")
	require.NoError(t, err)
	require.Equal(t, []int64{1}, ints(res, 0))

	res, err = e.ExecSQL("SELECT route_id FROM routes WHERE route_id <= 15 LIMIT 0")
	require.NoError(t, err)
	require.Empty(t, res.Rows)
}

func TestExecSQL_Aggregates(t *testing.T) {
	e := NewExecutor(routesDB(t))
	res, err := e.ExecSQL("SELECT COUNT(*), SUM(route_id), AVG(fare), MIN(name), MAX(agency_id) FROM routes WHERE route_id <= 4")
	require.NoError(t, err)
	require.Equal(t, []string{"COUNT(*)", "SUM(route_id)", "AVG(fare)", "MIN(name)", "MAX(agency_id)"}, res.Columns)
	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	require.Equal(t, int64(4), row[0])
	require.True(t, decimal.NewFromInt(10).Equal(row[1].(decimal.Decimal)))
	require.True(t, decimal.RequireFromString("0.25").Equal(row[2].(decimal.Decimal)))
	require.Equal(t, "route-001", row[3])
	require.Equal(t, int32(4), row[4])

	res, err = e.ExecSQL("SELECT COUNT(*), SUM(fare) FROM routes WHERE route_id > 1000")
	require.NoError(t, err)
	require.Equal(t, []any{int64(0), nil}, res.Rows[0])
}

func TestExecSQL_Join(t *testing.T) {
	e := NewExecutor(routesDB(t))

	res, err := e.ExecSQL("SELECT r.route_id, a.title FROM routes r JOIN agencies a ON r.agency_id = a.agency_id WHERE r.route_id <= 4")
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, ints(res, 0))
	require.Equal(t, []any{"North", "South", "East"}, []any{res.Rows[0][1], res.Rows[1][1], res.Rows[2][1]})

	res, err = e.ExecSQL("SELECT r.route_id, a.title FROM routes r LEFT OUTER JOIN agencies a ON a.agency_id = r.agency_id WHERE r.route_id <= 4")
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3, 4}, ints(res, 0))
	require.Nil(t, res.Rows[3][1])

	// non-equi join: agencies with a larger id than the route's agency
	res, err = e.ExecSQL("SELECT a.agency_id FROM routes r JOIN agencies a ON r.agency_id < a.agency_id WHERE r.route_id = 1")
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3}, ints(res, 0))

	_, err = e.ExecSQL("SELECT * FROM routes r RIGHT OUTER JOIN agencies a ON r.agency_id = a.agency_id")
	require.True(t, errors.Is(err, ErrNotSupported))
}

func TestExecSQL_Errors(t *testing.T) {
	e := NewExecutor(routesDB(t))
	_, err := e.ExecSQL("SELECT * FROM routes WHERE name = 'x'")
	require.True(t, errors.Is(err, planner.ErrUnsupportedPredicate))

	_, err = e.ExecSQL("SELECT * FROM nope")
	require.Error(t, err)
}

func TestExecSQL_OpensEveryIndexBeforeWalking(t *testing.T) {
	db := routesDB(t)
	require.NoError(t, btree.DropIndex(btree.FileSet{Dir: db.dir, Table: "routes", Column: "agency_id"}))
	e := NewExecutor(db)

	// the left side matches nothing, the right side has no index files
	_, err := e.ExecSQL("SELECT * FROM routes WHERE route_id > 1000 AND agency_id = 1")
	require.Error(t, err)
	_, err = e.ExecSQL("SELECT * FROM routes WHERE agency_id = 1 AND route_id > 1000")
	require.Error(t, err)
	require.Equal(t, db.opened, db.released)

	res, err := e.ExecSQL("SELECT * FROM routes WHERE route_id > 1000")
	require.NoError(t, err)
	require.Empty(t, res.Rows)
}

func TestWindowAndTop(t *testing.T) {
	src := func(yield func(int32, error) bool) {
		for i := int32(0); i < 10; i++ {
			if !yield(i, nil) {
				return
			}
		}
	}
	got, err := btree.Collect(window(src, 3, -1))
	require.NoError(t, err)
	require.Equal(t, []int32{3, 4, 5, 6, 7, 8, 9}, got)

	got, err = btree.Collect(window(src, 8, 5))
	require.NoError(t, err)
	require.Equal(t, []int32{8, 9}, got)

	got, err = btree.Collect(window(src, 20, 1))
	require.NoError(t, err)
	require.Empty(t, got)
}

// TestAndOr_MatchesBruteForce compares index evaluation of random two- and
// three-predicate WHERE clauses with a row-by-row filter.
func TestAndOr_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	db := newFakeDB(t)
	var rows [][]codec.Key
	for i := 0; i < 300; i++ {
		rows = append(rows, []codec.Key{
			codec.Int32(int32(rng.Intn(40))),
			codec.Int64(int64(rng.Intn(25))),
		})
	}
	offs := db.addTable(t, "t", &record.Schema{Cols: []record.Column{
		{Name: "a", Type: codec.KindInt32, IsIndexed: true},
		{Name: "b", Type: codec.KindInt64, IsIndexed: true},
	}}, rows)
	e := NewExecutor(db)

	ops := []string{"=", "<>", "<", "<=", ">", ">="}
	match := func(v int64, op string, c int64) bool {
		switch op {
		case "=":
			return v == c
		case "<>":
			return v != c
		case "<":
			return v < c
		case "<=":
			return v <= c
		case ">":
			return v > c
		}
		return v >= c
	}

	for n := 0; n < 200; n++ {
		op1, op2, op3 := ops[rng.Intn(6)], ops[rng.Intn(6)], ops[rng.Intn(6)]
		c1, c2, c3 := int64(rng.Intn(45)-2), int64(rng.Intn(28)-2), int64(rng.Intn(45)-2)
		and1, and2 := rng.Intn(2) == 0, rng.Intn(2) == 0
		conj := func(and bool) string {
			if and {
				return "AND"
			}
			return "OR"
		}
		q := fmt.Sprintf("SELECT a FROM t WHERE (a %s %d %s b %s %d) %s a %s %d",
			op1, c1, conj(and1), op2, c2, conj(and2), op3, c3)

		var want []int32
		for i, r := range rows {
			x := match(r[0].I, op1, c1)
			y := match(r[1].I, op2, c2)
			z := match(r[0].I, op3, c3)
			inner := x || y
			if and1 {
				inner = x && y
			}
			ok := inner || z
			if and2 {
				ok = inner && z
			}
			if ok {
				want = append(want, offs[i])
			}
		}

		res, err := e.ExecSQL(q)
		require.NoError(t, err, q)
		require.True(t, slices.IsSorted(res.Offsets), q)
		if len(want) == 0 {
			require.Empty(t, res.Offsets, q)
			continue
		}
		require.Equal(t, want, res.Offsets, q)
	}
}
