package executor

import (
	"iter"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tuannm99/novacsv/internal/btree"
	"github.com/tuannm99/novacsv/internal/codec"
	"github.com/tuannm99/novacsv/internal/logger"
	"github.com/tuannm99/novacsv/internal/sql/parser"
	"github.com/tuannm99/novacsv/internal/sql/planner"
)

// ErrNotSupported is shared with the parser so callers test one sentinel.
var ErrNotSupported = parser.ErrNotSupported

// RowReader materializes one row of a table from its offset.
type RowReader interface {
	ReadRecord(off int32) ([]codec.Key, error)
}

// executorDB is a small seam for unit-testing Executor without a real DB.
type executorDB interface {
	parser.Catalog
	// OpenIndex hands out a shared index; release must be called once the
	// caller is done with it.
	OpenIndex(table, column string) (ix *btree.Index, release func(), err error)
	Rows(table string) (RowReader, error)
}

// Executor runs SELECT statements against a database.
type Executor struct {
	DB executorDB
}

func NewExecutor(db executorDB) *Executor {
	return &Executor{DB: db}
}

// ExecSQL is the top-level entry: SQL string -> Result.
func (e *Executor) ExecSQL(sql string) (*Result, error) {
	start := time.Now()
	stmt, err := parser.Parse(sql, e.DB)
	if err != nil {
		return nil, err
	}
	plan, err := planner.BuildPlan(stmt)
	if err != nil {
		return nil, err
	}
	res, err := e.Execute(plan)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"table":   plan.Table,
		"rows":    len(res.Rows),
		"elapsed": time.Since(start).String(),
	}).Debug("executor.query")
	return res, nil
}

// Execute runs a plan.
func (e *Executor) Execute(plan *planner.SelectPlan) (*Result, error) {
	if plan.Join != nil && plan.Join.Kind != parser.JoinInner &&
		plan.Join.Kind != parser.JoinCross && plan.Join.Kind != parser.JoinLeftOuter {
		return nil, errors.Wrapf(ErrNotSupported, "%s", plan.Join.Kind)
	}

	s := newSession(e.DB)
	defer s.close()

	offsets, err := s.offsets(plan)
	if err != nil {
		return nil, err
	}

	switch {
	case plan.Aggregate:
		return s.aggregate(plan, offsets)
	case plan.Join != nil:
		return s.join(plan, offsets)
	default:
		return s.project(plan, offsets)
	}
}

// Offsets evaluates only the row selection of a plan: WHERE (or the full key
// scan), then SKIP, LIMIT and TOP.
func (e *Executor) Offsets(plan *planner.SelectPlan) ([]int32, error) {
	s := newSession(e.DB)
	defer s.close()
	return s.offsets(plan)
}

// session scopes the index handles opened by one query.
type session struct {
	db       executorDB
	indexes  map[string]*btree.Index
	releases []func()
}

func newSession(db executorDB) *session {
	return &session{db: db, indexes: make(map[string]*btree.Index)}
}

func (s *session) index(table, column string) (*btree.Index, error) {
	key := table + "." + column
	if ix, ok := s.indexes[key]; ok {
		return ix, nil
	}
	ix, release, err := s.db.OpenIndex(table, column)
	if err != nil {
		return nil, err
	}
	s.indexes[key] = ix
	s.releases = append(s.releases, release)
	return ix, nil
}

func (s *session) close() {
	for _, r := range s.releases {
		r()
	}
	s.releases = nil
}

func (s *session) offsets(plan *planner.SelectPlan) ([]int32, error) {
	seq, err := s.selection(plan)
	if err != nil {
		return nil, err
	}
	out, err := btree.Collect(window(seq, plan.Skip, plan.Limit))
	if err != nil {
		return nil, err
	}
	return top(out, plan.Top), nil
}

// selection yields the offsets matching WHERE. A lone comparison keeps the
// index's key order; combined predicates come back in ascending offset order.
func (s *session) selection(plan *planner.SelectPlan) (iter.Seq2[int32, error], error) {
	if plan.Where == nil {
		ix, err := s.index(plan.Table, plan.Scan.Name)
		if err != nil {
			return nil, err
		}
		return ix.Dump(), nil
	}
	if p, ok := plan.Where.(*planner.IndexPredicate); ok {
		ix, err := s.index(p.Table, p.Column.Name)
		if err != nil {
			return nil, err
		}
		return ix.Find(p.Op, p.Key), nil
	}
	if err := s.openIndexes(plan.Where); err != nil {
		return nil, err
	}
	bm, err := s.evalSet(plan.Where)
	if err != nil {
		return nil, err
	}
	return bitmapSeq(bm), nil
}

// window applies SKIP then LIMIT lazily. limit < 0 means no limit.
func window(seq iter.Seq2[int32, error], skip, limit int64) iter.Seq2[int32, error] {
	return func(yield func(int32, error) bool) {
		if limit == 0 {
			return
		}
		var seen, taken int64
		for off, err := range seq {
			if err != nil {
				yield(0, err)
				return
			}
			if seen < skip {
				seen++
				continue
			}
			if !yield(off, nil) {
				return
			}
			taken++
			if limit > 0 && taken >= limit {
				return
			}
		}
	}
}

// top keeps the first n rows, or the first n percent rounded up.
func top(offsets []int32, t *parser.Top) []int32 {
	if t == nil {
		return offsets
	}
	n := t.N
	if t.Percent {
		n = (int64(len(offsets))*t.N + 99) / 100
	}
	if n < int64(len(offsets)) {
		return offsets[:n]
	}
	return offsets
}
