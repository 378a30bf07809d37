package parser

import (
	"github.com/tuannm99/novacsv/internal/btree"
	"github.com/tuannm99/novacsv/internal/codec"
	"github.com/tuannm99/novacsv/internal/record"
)

// SelectStmt is the only statement the query language has.
type SelectStmt struct {
	Top   *Top
	Star  bool
	Items []SelectItem
	From  []*TableRef
	Join  *JoinClause
	Where Expr
	Skip  *int64
	Limit *int64
}

// Primary is the first FROM table; every result offset belongs to it.
func (s *SelectStmt) Primary() *TableRef { return s.From[0] }

// Tables lists the FROM tables followed by the joined table.
func (s *SelectStmt) Tables() []*TableRef {
	out := append([]*TableRef(nil), s.From...)
	if s.Join != nil {
		out = append(out, s.Join.Table)
	}
	return out
}

// HasAggregates reports whether any select item is an aggregate call.
func (s *SelectStmt) HasAggregates() bool {
	for _, it := range s.Items {
		if it.Agg != AggNone {
			return true
		}
	}
	return false
}

type Top struct {
	N       int64
	Percent bool
}

// TableRef is a FROM or JOIN table. Schema is filled in by resolution.
type TableRef struct {
	Name   string
	Alias  string
	Pos    int
	Schema *record.Schema
}

// Ref is the name columns are qualified with: the alias when present.
func (t *TableRef) Ref() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

type AggFunc uint8

const (
	AggNone AggFunc = iota
	AggCount
	AggSum
	AggAvg
	AggMin
	AggMax
)

var aggNames = map[AggFunc]string{
	AggCount: "COUNT",
	AggSum:   "SUM",
	AggAvg:   "AVG",
	AggMin:   "MIN",
	AggMax:   "MAX",
}

func (a AggFunc) String() string { return aggNames[a] }

// SelectItem is a projected column or an aggregate. Column is nil only for
// COUNT(*).
type SelectItem struct {
	Agg    AggFunc
	Column *ColumnRef
	Alias  string
}

// Label is the result column header.
func (it SelectItem) Label() string {
	if it.Alias != "" {
		return it.Alias
	}
	name := "*"
	if it.Column != nil {
		name = it.Column.Name
	}
	if it.Agg == AggNone {
		return name
	}
	return it.Agg.String() + "(" + name + ")"
}

type JoinKind uint8

const (
	JoinInner JoinKind = iota + 1
	JoinCross
	JoinLeftOuter
	JoinRightOuter
	JoinFullOuter
)

var joinNames = map[JoinKind]string{
	JoinInner:      "INNER JOIN",
	JoinCross:      "CROSS JOIN",
	JoinLeftOuter:  "LEFT OUTER JOIN",
	JoinRightOuter: "RIGHT OUTER JOIN",
	JoinFullOuter:  "FULL OUTER JOIN",
}

func (k JoinKind) String() string { return joinNames[k] }

type JoinClause struct {
	Kind  JoinKind
	Table *TableRef
	On    *Comparison
}

// ColumnRef names a column, optionally qualified. Table and Col are set by
// resolution.
type ColumnRef struct {
	Qualifier string
	Name      string
	Pos       int

	Table *TableRef
	Col   record.Column
}

// Expr is a WHERE or ON expression node: *Comparison or *Logical.
type Expr interface {
	exprNode()
}

type OperandKind uint8

const (
	OperandColumn OperandKind = iota + 1
	OperandString
	OperandNumber
)

// Operand is one side of a comparison. Constants keep their literal text;
// Value is String for string literals, and Int32, Int64 or Double for numbers
// depending on the literal's shape. Cast is KindInvalid when absent.
type Operand struct {
	Kind   OperandKind
	Column *ColumnRef
	Text   string
	Value  codec.Key
	Cast   codec.Kind
	Pos    int
}

func (o *Operand) IsColumn() bool { return o.Kind == OperandColumn }

type Comparison struct {
	Left  *Operand
	Op    btree.Op
	Right *Operand
}

type LogicalOp uint8

const (
	LogicalAnd LogicalOp = iota + 1
	LogicalOr
)

func (o LogicalOp) String() string {
	if o == LogicalAnd {
		return "AND"
	}
	return "OR"
}

type Logical struct {
	Op          LogicalOp
	Left, Right Expr
}

func (*Comparison) exprNode() {}
func (*Logical) exprNode()    {}
