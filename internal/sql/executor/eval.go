package executor

import (
	"iter"

	"github.com/RoaringBitmap/roaring"
	"github.com/pkg/errors"

	"github.com/tuannm99/novacsv/internal/sql/planner"
)

// openIndexes opens every index a predicate tree reads before any of them is
// walked, so a missing or corrupt index fails the query whatever the data.
func (s *session) openIndexes(p planner.Predicate) error {
	switch n := p.(type) {
	case *planner.IndexPredicate:
		_, err := s.index(n.Table, n.Column.Name)
		return err
	case *planner.AndFilter:
		if err := s.openIndexes(n.Left); err != nil {
			return err
		}
		return s.openIndexes(n.Right)
	case *planner.OrFilter:
		if err := s.openIndexes(n.Left); err != nil {
			return err
		}
		return s.openIndexes(n.Right)
	}
	return errors.Errorf("executor: unexpected predicate %T", p)
}

// evalSet evaluates a predicate tree bottom-up: AND intersects, OR unions.
func (s *session) evalSet(p planner.Predicate) (*roaring.Bitmap, error) {
	switch n := p.(type) {
	case *planner.IndexPredicate:
		ix, err := s.index(n.Table, n.Column.Name)
		if err != nil {
			return nil, err
		}
		bm := roaring.New()
		for off, err := range ix.Find(n.Op, n.Key) {
			if err != nil {
				return nil, err
			}
			bm.Add(uint32(off))
		}
		return bm, nil
	case *planner.AndFilter:
		l, err := s.evalSet(n.Left)
		if err != nil {
			return nil, err
		}
		if l.IsEmpty() {
			return l, nil
		}
		r, err := s.evalSet(n.Right)
		if err != nil {
			return nil, err
		}
		l.And(r)
		return l, nil
	case *planner.OrFilter:
		l, err := s.evalSet(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := s.evalSet(n.Right)
		if err != nil {
			return nil, err
		}
		l.Or(r)
		return l, nil
	}
	return nil, errors.Errorf("executor: unexpected predicate %T", p)
}

func bitmapSeq(bm *roaring.Bitmap) iter.Seq2[int32, error] {
	return func(yield func(int32, error) bool) {
		it := bm.Iterator()
		for it.HasNext() {
			if !yield(int32(it.Next()), nil) {
				return
			}
		}
	}
}
