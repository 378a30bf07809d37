package parser

import (
	"strconv"

	"github.com/pkg/errors"
)

var (
	// ErrSchema marks queries that reference unknown, ambiguous or
	// mistyped schema objects.
	ErrSchema = errors.New("schema error")
	// ErrNotSupported marks syntax the engine recognises but does not run.
	ErrNotSupported = errors.New("not supported")
)

type parser struct {
	toks []Token
	pos  int
}

// Parse parses one SELECT statement and, when cat is not nil, resolves every
// table and column it references.
func Parse(query string, cat Catalog) (*SelectStmt, error) {
	stmt, err := ParseSyntax(query)
	if err != nil {
		return nil, err
	}
	if cat != nil {
		if err := Resolve(stmt, cat); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

// ParseSyntax parses without schema resolution.
func ParseSyntax(query string) (*SelectStmt, error) {
	toks, err := Lex(query)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseSelect()
}

func (p *parser) peek() Token { return p.toks[p.pos] }
func (p *parser) peekAt(n int) Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() Token {
	t := p.toks[p.pos]
	if t.Kind != TokEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(kw string) bool {
	if p.peek().Is(kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(kw string) error {
	if !p.accept(kw) {
		return syntaxErr(p.peek(), "expected %s", kw)
	}
	return nil
}

func (p *parser) expectKind(k TokenKind) (Token, error) {
	t := p.peek()
	if t.Kind != k {
		return t, syntaxErr(t, "expected %s", k)
	}
	return p.next(), nil
}

func (p *parser) parseSelect() (*SelectStmt, error) {
	if err := p.expect("SELECT"); err != nil {
		return nil, err
	}
	stmt := &SelectStmt{}

	if p.accept("TOP") {
		n, err := p.parseCount("TOP")
		if err != nil {
			return nil, err
		}
		stmt.Top = &Top{N: n, Percent: p.accept("PERCENT")}
		if stmt.Top.Percent && n > 100 {
			return nil, syntaxErr(p.toks[p.pos-2], "TOP PERCENT must be between 0 and 100")
		}
	}

	if p.peek().Kind == TokStar {
		p.next()
		stmt.Star = true
	} else {
		for {
			it, err := p.parseItem()
			if err != nil {
				return nil, err
			}
			stmt.Items = append(stmt.Items, it)
			if p.peek().Kind != TokComma {
				break
			}
			p.next()
		}
	}

	if err := p.expect("FROM"); err != nil {
		return nil, err
	}
	for {
		t, err := p.parseTableRef()
		if err != nil {
			return nil, err
		}
		stmt.From = append(stmt.From, t)
		if p.peek().Kind != TokComma {
			break
		}
		p.next()
	}

	join, err := p.parseJoin()
	if err != nil {
		return nil, err
	}
	stmt.Join = join

	if p.accept("WHERE") {
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	if p.accept("SKIP") {
		n, err := p.parseCount("SKIP")
		if err != nil {
			return nil, err
		}
		stmt.Skip = &n
	}
	if p.accept("LIMIT") {
		n, err := p.parseCount("LIMIT")
		if err != nil {
			return nil, err
		}
		stmt.Limit = &n
	}

	if p.peek().Kind == TokSemicolon {
		p.next()
	}
	if t := p.peek(); t.Kind != TokEOF {
		return nil, syntaxErr(t, "unexpected token after statement")
	}
	return stmt, nil
}

// parseCount reads the non-negative integer after TOP, SKIP or LIMIT.
func (p *parser) parseCount(clause string) (int64, error) {
	t := p.peek()
	if t.Kind != TokNumber {
		return 0, syntaxErr(t, "%s expects a row count", clause)
	}
	n, err := strconv.ParseInt(t.Text, 10, 64)
	if err != nil {
		return 0, syntaxErr(t, "%s expects a whole row count", clause)
	}
	p.next()
	return n, nil
}

var aggByKeyword = map[string]AggFunc{
	"COUNT": AggCount,
	"SUM":   AggSum,
	"AVG":   AggAvg,
	"MIN":   AggMin,
	"MAX":   AggMax,
}

func (p *parser) parseItem() (SelectItem, error) {
	var it SelectItem
	t := p.peek()
	if agg, ok := aggByKeyword[t.Text]; ok && t.Kind == TokKeyword {
		p.next()
		it.Agg = agg
		if _, err := p.expectKind(TokLParen); err != nil {
			return it, err
		}
		if p.peek().Kind == TokStar {
			star := p.next()
			if agg != AggCount {
				return it, syntaxErr(star, "%s(*) is not allowed", agg)
			}
		} else {
			col, err := p.parseColumnRef()
			if err != nil {
				return it, err
			}
			it.Column = col
		}
		if _, err := p.expectKind(TokRParen); err != nil {
			return it, err
		}
	} else {
		col, err := p.parseColumnRef()
		if err != nil {
			return it, err
		}
		it.Column = col
	}

	if p.accept("AS") {
		alias, err := p.expectKind(TokIdent)
		if err != nil {
			return it, err
		}
		it.Alias = alias.Text
	}
	return it, nil
}

func (p *parser) parseColumnRef() (*ColumnRef, error) {
	first, err := p.expectKind(TokIdent)
	if err != nil {
		return nil, err
	}
	ref := &ColumnRef{Name: first.Text, Pos: first.Pos}
	if p.peek().Kind == TokDot {
		p.next()
		name, err := p.expectKind(TokIdent)
		if err != nil {
			return nil, err
		}
		ref.Qualifier = first.Text
		ref.Name = name.Text
	}
	return ref, nil
}

func (p *parser) parseTableRef() (*TableRef, error) {
	name, err := p.expectKind(TokIdent)
	if err != nil {
		return nil, err
	}
	t := &TableRef{Name: name.Text, Pos: name.Pos}
	switch {
	case p.accept("AS"):
		alias, err := p.expectKind(TokIdent)
		if err != nil {
			return nil, err
		}
		t.Alias = alias.Text
	case p.peek().Kind == TokIdent:
		t.Alias = p.next().Text
	}
	return t, nil
}

func (p *parser) parseJoin() (*JoinClause, error) {
	start := p.peek()
	var kind JoinKind
	switch {
	case p.accept("JOIN"):
		kind = JoinInner
	case p.accept("INNER"):
		kind = JoinInner
	case p.accept("CROSS"):
		kind = JoinCross
	case p.accept("LEFT"):
		kind = JoinLeftOuter
		p.accept("OUTER")
	case p.accept("RIGHT"):
		kind = JoinRightOuter
		p.accept("OUTER")
	case p.accept("FULL"):
		kind = JoinFullOuter
		p.accept("OUTER")
	default:
		return nil, nil
	}
	if !start.Is("JOIN") {
		if err := p.expect("JOIN"); err != nil {
			return nil, err
		}
	}

	table, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	onTok := p.peek()
	if err := p.expect("ON"); err != nil {
		return nil, err
	}
	on, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	cmp, ok := on.(*Comparison)
	if !ok || !cmp.Left.IsColumn() || !cmp.Right.IsColumn() {
		return nil, syntaxErr(onTok, "JOIN ... ON needs a comparison between two columns")
	}
	if p.peek().Kind == TokKeyword && isJoinStart(p.peek().Text) {
		return nil, errors.Wrapf(ErrNotSupported, "more than one JOIN (position %d)", p.peek().Pos)
	}
	return &JoinClause{Kind: kind, Table: table, On: cmp}, nil
}

func isJoinStart(kw string) bool {
	switch kw {
	case "JOIN", "INNER", "CROSS", "LEFT", "RIGHT", "FULL":
		return true
	}
	return false
}
