package btree

// Op is a comparison operator an index can answer.
type Op uint8

const (
	OpEq Op = iota + 1
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var opSymbols = map[Op]string{
	OpEq: "=",
	OpNe: "<>",
	OpLt: "<",
	OpLe: "<=",
	OpGt: ">",
	OpGe: ">=",
}

func (o Op) String() string {
	if s, ok := opSymbols[o]; ok {
		return s
	}
	return "?"
}

// Flip mirrors the operator for swapped operands: `5 < col` is `col > 5`.
func (o Op) Flip() Op {
	switch o {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	}
	return o
}

// Match reports whether a key comparing as cmp (key vs. probe) satisfies o.
func (o Op) Match(cmp int) bool {
	switch o {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	}
	return false
}

// OpBySymbol parses a comparison symbol; "!=" is accepted for "<>".
func OpBySymbol(s string) (Op, bool) {
	if s == "!=" {
		return OpNe, true
	}
	for op, sym := range opSymbols {
		if sym == s {
			return op, true
		}
	}
	return 0, false
}
