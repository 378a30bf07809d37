package planner

import (
	"github.com/tuannm99/novacsv/internal/btree"
	"github.com/tuannm99/novacsv/internal/codec"
	"github.com/tuannm99/novacsv/internal/record"
	"github.com/tuannm99/novacsv/internal/sql/parser"
)

// Predicate is the executable form of a WHERE tree.
type Predicate interface {
	predNode()
}

// IndexPredicate is one comparison answered by a column index. Key already has
// the column's kind.
type IndexPredicate struct {
	Table  string
	Column record.Column
	Op     btree.Op
	Key    codec.Key
}

type AndFilter struct {
	Left, Right Predicate
}

type OrFilter struct {
	Left, Right Predicate
}

func (*IndexPredicate) predNode() {}
func (*AndFilter) predNode()      {}
func (*OrFilter) predNode()       {}

// Side says which table of a join an output column comes from.
type Side uint8

const (
	SidePrimary Side = iota
	SideJoined
)

// Output is one result column. Ordinal is -1 for COUNT(*).
type Output struct {
	Label   string
	Side    Side
	Ordinal int
	Kind    codec.Kind
	Agg     parser.AggFunc
}

// JoinPlan drives an index nested-loop join: for every primary row, the value
// at LeftOrdinal is looked up in the joined table's index on Right with Op,
// i.e. rows where `right Op left` holds.
type JoinPlan struct {
	Kind        parser.JoinKind
	Table       string
	Schema      *record.Schema
	LeftOrdinal int
	LeftKind    codec.Kind
	Right       record.Column
	Op          btree.Op
}

// SelectPlan is everything the executor needs for one query.
type SelectPlan struct {
	Table  string
	Schema *record.Schema

	// Scan is the column dumped when there is no WHERE.
	Scan  *record.Column
	Where Predicate

	Skip      int64
	Limit     int64 // -1 when absent
	Top       *parser.Top
	Outputs   []Output
	Aggregate bool
	Join      *JoinPlan
}
