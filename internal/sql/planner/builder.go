package planner

import (
	"github.com/pkg/errors"

	"github.com/tuannm99/novacsv/internal/codec"
	"github.com/tuannm99/novacsv/internal/record"
	"github.com/tuannm99/novacsv/internal/sql/parser"
)

// ErrUnsupportedPredicate is returned for comparisons no single index can
// answer: two columns, two constants, or a column without an index.
var ErrUnsupportedPredicate = errors.New("unsupported predicate")

// BuildPlan turns a resolved statement into a SelectPlan.
func BuildPlan(stmt *parser.SelectStmt) (*SelectPlan, error) {
	primary := stmt.Primary()
	if primary.Schema == nil {
		return nil, errors.Errorf("planner: table %q is not resolved", primary.Name)
	}

	p := &SelectPlan{
		Table:     primary.Name,
		Schema:    primary.Schema,
		Limit:     -1,
		Top:       stmt.Top,
		Aggregate: stmt.HasAggregates(),
	}
	if stmt.Skip != nil {
		p.Skip = *stmt.Skip
	}
	if stmt.Limit != nil {
		p.Limit = *stmt.Limit
	}

	if stmt.Join != nil {
		j, err := buildJoin(stmt)
		if err != nil {
			return nil, err
		}
		p.Join = j
	}

	outs, err := buildOutputs(stmt)
	if err != nil {
		return nil, err
	}
	p.Outputs = outs

	if stmt.Where == nil {
		col, ok := primary.Schema.KeyColumn()
		if !ok {
			return nil, errors.Wrapf(ErrUnsupportedPredicate, "table %q has no key or indexed column to scan", primary.Name)
		}
		p.Scan = col
		return p, nil
	}

	where, err := buildPredicate(stmt.Where, primary)
	if err != nil {
		return nil, err
	}
	p.Where = where
	return p, nil
}

func buildPredicate(e parser.Expr, primary *parser.TableRef) (Predicate, error) {
	switch n := e.(type) {
	case *parser.Logical:
		l, err := buildPredicate(n.Left, primary)
		if err != nil {
			return nil, err
		}
		r, err := buildPredicate(n.Right, primary)
		if err != nil {
			return nil, err
		}
		if n.Op == parser.LogicalAnd {
			return &AndFilter{Left: l, Right: r}, nil
		}
		return &OrFilter{Left: l, Right: r}, nil
	case *parser.Comparison:
		return buildComparison(n, primary)
	}
	return nil, errors.Errorf("planner: unexpected expression %T", e)
}

func buildComparison(c *parser.Comparison, primary *parser.TableRef) (*IndexPredicate, error) {
	colOp, constOp, op := c.Left, c.Right, c.Op
	switch {
	case colOp.IsColumn() && constOp.IsColumn():
		return nil, errors.Wrapf(ErrUnsupportedPredicate, "comparison of two columns %s %s %s",
			colOp.Column.Name, op, constOp.Column.Name)
	case !colOp.IsColumn() && !constOp.IsColumn():
		return nil, errors.Wrapf(ErrUnsupportedPredicate, "comparison of two constants %s %s %s",
			colOp.Text, op, constOp.Text)
	case !colOp.IsColumn():
		colOp, constOp, op = constOp, colOp, op.Flip()
	}

	ref := colOp.Column
	if ref.Table != primary {
		return nil, errors.Wrapf(ErrUnsupportedPredicate, "column %s.%s is not in the primary table %s",
			ref.Table.Ref(), ref.Name, primary.Ref())
	}
	col := ref.Col
	if !col.IsIndexed && !col.IsKey {
		return nil, errors.Wrapf(ErrUnsupportedPredicate, "column %s is not indexed", col.Name)
	}
	if colOp.Cast != codec.KindInvalid && colOp.Cast != col.Type {
		return nil, errors.Wrapf(ErrUnsupportedPredicate, "cast of column %s (%s) to %s", col.Name, col.Type, colOp.Cast)
	}

	key, err := Constant(constOp, col.Type)
	if err != nil {
		return nil, err
	}
	return &IndexPredicate{Table: primary.Name, Column: col, Op: op, Key: key}, nil
}

// Constant converts a literal operand to kind, applying its explicit cast
// first. Numbers bound for Decimal are re-parsed from their text so no
// precision is lost through float64.
func Constant(o *parser.Operand, kind codec.Kind) (codec.Key, error) {
	k := o.Value
	var err error
	if o.Cast != codec.KindInvalid {
		if o.Kind == parser.OperandNumber && o.Cast == codec.KindDecimal {
			k, err = codec.Parse(codec.KindDecimal, o.Text)
		} else {
			k, err = codec.Convert(k, o.Cast)
		}
		if err != nil {
			return codec.Key{}, errors.Wrapf(parser.ErrSchema, "cast %s to %s at position %d: %v", o.Text, o.Cast, o.Pos, err)
		}
	} else if o.Kind == parser.OperandNumber && kind == codec.KindDecimal {
		k, err = codec.Parse(codec.KindDecimal, o.Text)
		if err != nil {
			return codec.Key{}, errors.Wrapf(parser.ErrSchema, "%s is not a decimal: %v", o.Text, err)
		}
	}
	out, err := codec.Convert(k, kind)
	if err != nil {
		return codec.Key{}, errors.Wrapf(parser.ErrSchema, "constant %s does not fit %s at position %d: %v", o.Text, kind, o.Pos, err)
	}
	return out, nil
}

func buildJoin(stmt *parser.SelectStmt) (*JoinPlan, error) {
	j := stmt.Join
	left, right, op := j.On.Left.Column, j.On.Right.Column, j.On.Op
	// Normalise to `right op left`, right being the joined table.
	if left.Table == j.Table {
		left, right = right, left
	} else {
		op = op.Flip()
	}
	if left.Table != stmt.Primary() {
		return nil, errors.Wrapf(parser.ErrNotSupported, "JOIN ... ON must reference the first FROM table, got %s", left.Table.Ref())
	}
	if right.Table != j.Table {
		return nil, errors.Wrapf(parser.ErrSchema, "JOIN ... ON must reference the joined table %s", j.Table.Ref())
	}
	if !right.Col.IsIndexed && !right.Col.IsKey {
		return nil, errors.Wrapf(ErrUnsupportedPredicate, "join column %s.%s is not indexed", j.Table.Ref(), right.Name)
	}
	return &JoinPlan{
		Kind:        j.Kind,
		Table:       j.Table.Name,
		Schema:      j.Table.Schema,
		LeftOrdinal: left.Col.Ordinal,
		LeftKind:    left.Col.Type,
		Right:       right.Col,
		Op:          op,
	}, nil
}

func buildOutputs(stmt *parser.SelectStmt) ([]Output, error) {
	primary := stmt.Primary()
	var joined *parser.TableRef
	if stmt.Join != nil {
		joined = stmt.Join.Table
	}

	if stmt.Star {
		outs := columnsOf(primary.Schema, SidePrimary)
		if joined != nil {
			outs = append(outs, columnsOf(joined.Schema, SideJoined)...)
		}
		return outs, nil
	}

	agg := stmt.HasAggregates()
	if agg && joined != nil {
		return nil, errors.Wrapf(parser.ErrNotSupported, "aggregates over a JOIN")
	}

	outs := make([]Output, 0, len(stmt.Items))
	for _, it := range stmt.Items {
		if agg && it.Agg == parser.AggNone {
			return nil, errors.Wrapf(parser.ErrNotSupported, "column %s next to aggregates without GROUP BY", it.Column.Name)
		}
		out := Output{Label: it.Label(), Ordinal: -1, Agg: it.Agg}
		if it.Column != nil {
			ref := it.Column
			switch ref.Table {
			case primary:
				out.Side = SidePrimary
			case joined:
				out.Side = SideJoined
			default:
				return nil, errors.Wrapf(parser.ErrNotSupported, "column %s.%s of a table that is neither first nor joined",
					ref.Table.Ref(), ref.Name)
			}
			out.Ordinal = ref.Col.Ordinal
			out.Kind = ref.Col.Type
		}
		if (it.Agg == parser.AggSum || it.Agg == parser.AggAvg) && !out.Kind.IsNumeric() {
			return nil, errors.Wrapf(parser.ErrSchema, "%s over non-numeric column %s", it.Agg, it.Column.Name)
		}
		outs = append(outs, out)
	}
	return outs, nil
}

func columnsOf(s *record.Schema, side Side) []Output {
	outs := make([]Output, len(s.Cols))
	for i, c := range s.Cols {
		outs[i] = Output{Label: c.Name, Side: side, Ordinal: c.Ordinal, Kind: c.Type}
	}
	return outs
}
