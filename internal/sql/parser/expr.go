package parser

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/tuannm99/novacsv/internal/btree"
	"github.com/tuannm99/novacsv/internal/codec"
)

// Binding strength of the expression operators, highest first after the
// parentheses. Only comparison, AND and OR can be evaluated; the rest are
// recognised so that they fail as unsupported rather than as garbage.
const (
	precAssign = iota + 1
	precOr     // OR, BETWEEN, IN, LIKE
	precAnd
	precNot
	precCompare
	precAdditive
	precMultiplicative
)

type opKind uint8

const (
	opParen opKind = iota + 1
	opCompare
	opAnd
	opOr
)

type stackOp struct {
	kind opKind
	cmp  btree.Op
	tok  Token
}

func (o stackOp) prec() int {
	switch o.kind {
	case opCompare:
		return precCompare
	case opAnd:
		return precAnd
	case opOr:
		return precOr
	}
	return 0
}

// value is an entry of the operand stack: a bare operand until a comparison
// consumes it, then an expression.
type value struct {
	operand *Operand
	expr    Expr
	tok     Token
}

// parseExpr runs a two-stack operator precedence parse until a token that
// cannot continue the expression.
func (p *parser) parseExpr() (Expr, error) {
	var (
		vals       []value
		ops        []stackOp
		cast       codec.Kind
		castTok    Token
		expectOper = true
		depth      = 0
	)

	reduce := func() error {
		op := ops[len(ops)-1]
		ops = ops[:len(ops)-1]
		if len(vals) < 2 {
			return syntaxErr(op.tok, "missing operand")
		}
		l, r := vals[len(vals)-2], vals[len(vals)-1]
		vals = vals[:len(vals)-2]

		switch op.kind {
		case opCompare:
			if l.operand == nil || r.operand == nil {
				return syntaxErr(op.tok, "comparison operands must be columns or constants")
			}
			vals = append(vals, value{expr: &Comparison{Left: l.operand, Op: op.cmp, Right: r.operand}, tok: l.tok})
		default:
			if l.expr == nil || r.expr == nil {
				return syntaxErr(op.tok, "%s needs comparisons on both sides", op.tok.Text)
			}
			lop := LogicalAnd
			if op.kind == opOr {
				lop = LogicalOr
			}
			vals = append(vals, value{expr: &Logical{Op: lop, Left: l.expr, Right: r.expr}, tok: l.tok})
		}
		return nil
	}

	pushBinary := func(o stackOp) error {
		if expectOper {
			return syntaxErr(o.tok, "expected an operand")
		}
		for len(ops) > 0 && ops[len(ops)-1].kind != opParen && ops[len(ops)-1].prec() >= o.prec() {
			if err := reduce(); err != nil {
				return err
			}
		}
		ops = append(ops, o)
		expectOper = true
		return nil
	}

	pushOperand := func(o *Operand, tok Token) error {
		if !expectOper {
			return syntaxErr(tok, "expected an operator")
		}
		if cast != codec.KindInvalid {
			o.Cast = cast
			cast = codec.KindInvalid
		}
		vals = append(vals, value{operand: o, tok: tok})
		expectOper = false
		return nil
	}

loop:
	for {
		t := p.peek()
		switch {
		case t.Kind == TokIdent:
			col, err := p.parseColumnRef()
			if err != nil {
				return nil, err
			}
			if err := pushOperand(&Operand{Kind: OperandColumn, Column: col, Pos: t.Pos}, t); err != nil {
				return nil, err
			}

		case t.Kind == TokString:
			p.next()
			o := &Operand{Kind: OperandString, Text: t.Text, Value: codec.String(t.Text), Pos: t.Pos}
			if err := pushOperand(o, t); err != nil {
				return nil, err
			}

		case t.Kind == TokNumber, t.Kind == TokMinus && expectOper && p.peekAt(1).Kind == TokNumber:
			p.next()
			text := t.Text
			if t.Kind == TokMinus {
				text = "-" + p.next().Text
			}
			o, err := numberOperand(text, t)
			if err != nil {
				return nil, err
			}
			if err := pushOperand(o, t); err != nil {
				return nil, err
			}

		case t.Kind == TokLParen:
			if kind, ok := castAt(p, 1); ok {
				if !expectOper {
					return nil, syntaxErr(t, "cast must precede an operand")
				}
				if cast != codec.KindInvalid {
					return nil, syntaxErr(t, "double cast")
				}
				p.pos += 3
				cast, castTok = kind, t
				continue
			}
			if !expectOper {
				return nil, syntaxErr(t, "expected an operator")
			}
			if cast != codec.KindInvalid {
				return nil, errors.Wrapf(ErrNotSupported, "cast of a parenthesized expression (position %d)", castTok.Pos)
			}
			p.next()
			ops = append(ops, stackOp{kind: opParen, tok: t})
			depth++

		case t.Kind == TokRParen:
			if depth == 0 {
				break loop
			}
			if expectOper {
				return nil, syntaxErr(t, "expected an operand")
			}
			p.next()
			for ops[len(ops)-1].kind != opParen {
				if err := reduce(); err != nil {
					return nil, err
				}
			}
			ops = ops[:len(ops)-1]
			depth--

		case t.Kind == TokCompare:
			p.next()
			op, _ := btree.OpBySymbol(t.Text)
			if err := pushBinary(stackOp{kind: opCompare, cmp: op, tok: t}); err != nil {
				return nil, err
			}

		case t.Is("AND"), t.Is("OR"):
			p.next()
			kind := opAnd
			if t.Text == "OR" {
				kind = opOr
			}
			if err := pushBinary(stackOp{kind: kind, tok: t}); err != nil {
				return nil, err
			}

		case t.Is("NOT"), t.Is("BETWEEN"), t.Is("IN"), t.Is("LIKE"):
			return nil, errors.Wrapf(ErrNotSupported, "%s (position %d)", t.Text, t.Pos)

		case t.Kind == TokPlus, t.Kind == TokMinus, t.Kind == TokSlash, t.Kind == TokStar:
			return nil, errors.Wrapf(ErrNotSupported, "arithmetic operator %s (position %d)", t.Text, t.Pos)

		default:
			break loop
		}
	}

	end := p.peek()
	if expectOper {
		return nil, syntaxErr(end, "expected an operand")
	}
	if cast != codec.KindInvalid {
		return nil, syntaxErr(castTok, "cast without an operand")
	}
	for len(ops) > 0 {
		if ops[len(ops)-1].kind == opParen {
			return nil, syntaxErr(ops[len(ops)-1].tok, "unbalanced parenthesis")
		}
		if err := reduce(); err != nil {
			return nil, err
		}
	}
	if len(vals) != 1 || vals[0].expr == nil {
		return nil, syntaxErr(vals[0].tok, "expected a comparison")
	}
	return vals[0].expr, nil
}

// castAt reports whether tokens at p.pos+off form "(KIND)" minus the open
// paren, i.e. a kind keyword followed by ')'.
func castAt(p *parser, off int) (codec.Kind, bool) {
	kw := p.peekAt(off)
	if kw.Kind != TokKeyword || p.peekAt(off+1).Kind != TokRParen {
		return codec.KindInvalid, false
	}
	return codec.KindByName(kw.Text)
}

// numberOperand types a numeric literal by its shape: a '.' makes it Double,
// otherwise Int32 when it fits and Int64 beyond that.
func numberOperand(text string, tok Token) (*Operand, error) {
	o := &Operand{Kind: OperandNumber, Text: text, Pos: tok.Pos}
	if strings.Contains(text, ".") {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, syntaxErr(tok, "bad number %s", text)
		}
		o.Value = codec.Double(f)
		return o, nil
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, syntaxErr(tok, "number %s out of range", text)
	}
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		o.Value = codec.Int32(int32(v))
	} else {
		o.Value = codec.Int64(v)
	}
	return o, nil
}
