package executor

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/tuannm99/novacsv/internal/codec"
	"github.com/tuannm99/novacsv/internal/sql/parser"
	"github.com/tuannm99/novacsv/internal/sql/planner"
)

func labels(outs []planner.Output) []string {
	cols := make([]string, len(outs))
	for i, o := range outs {
		cols[i] = o.Label
	}
	return cols
}

func native(k codec.Key) any {
	if k.IsNull() {
		return nil
	}
	return k.Native()
}

func (s *session) project(plan *planner.SelectPlan, offsets []int32) (*Result, error) {
	rows, err := s.db.Rows(plan.Table)
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: labels(plan.Outputs), Offsets: offsets}
	for _, off := range offsets {
		rec, err := rows.ReadRecord(off)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(plan.Outputs))
		for i, o := range plan.Outputs {
			out[i] = native(rec[o.Ordinal])
		}
		res.Rows = append(res.Rows, out)
	}
	return res, nil
}

// join runs an index nested loop: each primary row probes the joined
// table's index with its ON value.
func (s *session) join(plan *planner.SelectPlan, offsets []int32) (*Result, error) {
	j := plan.Join
	left, err := s.db.Rows(plan.Table)
	if err != nil {
		return nil, err
	}
	right, err := s.db.Rows(j.Table)
	if err != nil {
		return nil, err
	}
	ix, err := s.index(j.Table, j.Right.Name)
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: labels(plan.Outputs)}
	emit := func(off int32, l, r []codec.Key) {
		out := make([]any, len(plan.Outputs))
		for i, o := range plan.Outputs {
			switch {
			case o.Side == planner.SidePrimary:
				out[i] = native(l[o.Ordinal])
			case r != nil:
				out[i] = native(r[o.Ordinal])
			}
		}
		res.Rows = append(res.Rows, out)
		res.Offsets = append(res.Offsets, off)
	}

	for _, off := range offsets {
		lrow, err := left.ReadRecord(off)
		if err != nil {
			return nil, err
		}
		matched := false
		if probe, ok := joinKey(lrow[j.LeftOrdinal], j.Right.Type); ok {
			for roff, err := range ix.Find(j.Op, probe) {
				if err != nil {
					return nil, err
				}
				rrow, err := right.ReadRecord(roff)
				if err != nil {
					return nil, err
				}
				emit(off, lrow, rrow)
				matched = true
			}
		}
		if !matched && j.Kind == parser.JoinLeftOuter {
			emit(off, lrow, nil)
		}
	}
	return res, nil
}

// joinKey converts the primary side's ON value to the joined column's kind.
// NULL and unconvertible values match nothing.
func joinKey(v codec.Key, kind codec.Kind) (codec.Key, bool) {
	if v.IsNull() {
		return codec.Key{}, false
	}
	k, err := codec.Convert(v, kind)
	if err != nil {
		return codec.Key{}, false
	}
	return k, true
}

type accumulator struct {
	out   planner.Output
	count int64
	sum   decimal.Decimal
	best  codec.Key
}

func (a *accumulator) add(v codec.Key) error {
	if v.IsNull() {
		return nil
	}
	switch a.out.Agg {
	case parser.AggSum, parser.AggAvg:
		d, err := v.AsDecimal()
		if err != nil {
			return errors.Wrapf(parser.ErrSchema, "%s(%s): %v", a.out.Agg, a.out.Label, err)
		}
		a.sum = a.sum.Add(d)
	case parser.AggMin:
		if a.best.IsNull() || codec.Compare(v, a.best) < 0 {
			a.best = v
		}
	case parser.AggMax:
		if a.best.IsNull() || codec.Compare(v, a.best) > 0 {
			a.best = v
		}
	}
	a.count++
	return nil
}

func (a *accumulator) result(rows int) any {
	switch a.out.Agg {
	case parser.AggCount:
		return int64(rows)
	case parser.AggSum:
		if a.count == 0 {
			return nil
		}
		return a.sum
	case parser.AggAvg:
		if a.count == 0 {
			return nil
		}
		return a.sum.Div(decimal.NewFromInt(a.count))
	}
	return native(a.best)
}

// aggregate reduces the selected rows to one result row. COUNT never reads
// rows; the other functions skip NULLs.
func (s *session) aggregate(plan *planner.SelectPlan, offsets []int32) (*Result, error) {
	accs := make([]*accumulator, len(plan.Outputs))
	needRows := false
	for i, o := range plan.Outputs {
		accs[i] = &accumulator{out: o}
		if o.Agg != parser.AggCount {
			needRows = true
		}
	}

	if needRows {
		rows, err := s.db.Rows(plan.Table)
		if err != nil {
			return nil, err
		}
		for _, off := range offsets {
			rec, err := rows.ReadRecord(off)
			if err != nil {
				return nil, err
			}
			for _, a := range accs {
				if a.out.Agg == parser.AggCount {
					continue
				}
				if err := a.add(rec[a.out.Ordinal]); err != nil {
					return nil, err
				}
			}
		}
	}

	row := make([]any, len(accs))
	for i, a := range accs {
		row[i] = a.result(len(offsets))
	}
	return &Result{Columns: labels(plan.Outputs), Rows: [][]any{row}}, nil
}
