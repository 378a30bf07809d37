package parser

import (
	"strconv"
	"strings"

	"github.com/tuannm99/novacsv/internal/codec"
)

// Format renders an expression back to query text. Logical nodes are fully
// parenthesized so the output re-parses to the same tree.
func Format(e Expr) string {
	var sb strings.Builder
	formatExpr(&sb, e)
	return sb.String()
}

func formatExpr(sb *strings.Builder, e Expr) {
	switch n := e.(type) {
	case *Comparison:
		formatOperand(sb, n.Left)
		sb.WriteString(" " + n.Op.String() + " ")
		formatOperand(sb, n.Right)
	case *Logical:
		sb.WriteByte('(')
		formatExpr(sb, n.Left)
		sb.WriteString(" " + n.Op.String() + " ")
		formatExpr(sb, n.Right)
		sb.WriteByte(')')
	}
}

func formatOperand(sb *strings.Builder, o *Operand) {
	if o.Cast != codec.KindInvalid {
		sb.WriteString("(" + strings.ToUpper(o.Cast.String()) + ") ")
	}
	switch o.Kind {
	case OperandColumn:
		if o.Column.Qualifier != "" {
			sb.WriteString(o.Column.Qualifier + ".")
		}
		sb.WriteString(o.Column.Name)
	case OperandString:
		sb.WriteString(codec.String(o.Text).Literal())
	case OperandNumber:
		sb.WriteString(o.Text)
	}
}

// String renders the whole statement.
func (s *SelectStmt) String() string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if s.Top != nil {
		sb.WriteString("TOP " + strconv.FormatInt(s.Top.N, 10) + " ")
		if s.Top.Percent {
			sb.WriteString("PERCENT ")
		}
	}
	if s.Star {
		sb.WriteString("*")
	}
	for i, it := range s.Items {
		if i > 0 {
			sb.WriteString(", ")
		}
		col := "*"
		if it.Column != nil {
			col = it.Column.Name
			if it.Column.Qualifier != "" {
				col = it.Column.Qualifier + "." + col
			}
		}
		if it.Agg != AggNone {
			col = it.Agg.String() + "(" + col + ")"
		}
		sb.WriteString(col)
		if it.Alias != "" {
			sb.WriteString(" AS " + it.Alias)
		}
	}
	sb.WriteString(" FROM ")
	for i, t := range s.From {
		if i > 0 {
			sb.WriteString(", ")
		}
		writeTable(&sb, t)
	}
	if s.Join != nil {
		sb.WriteString(" " + s.Join.Kind.String() + " ")
		writeTable(&sb, s.Join.Table)
		sb.WriteString(" ON " + Format(s.Join.On))
	}
	if s.Where != nil {
		sb.WriteString(" WHERE " + Format(s.Where))
	}
	if s.Skip != nil {
		sb.WriteString(" SKIP " + strconv.FormatInt(*s.Skip, 10))
	}
	if s.Limit != nil {
		sb.WriteString(" LIMIT " + strconv.FormatInt(*s.Limit, 10))
	}
	return sb.String()
}

func writeTable(sb *strings.Builder, t *TableRef) {
	sb.WriteString(t.Name)
	if t.Alias != "" {
		sb.WriteString(" AS " + t.Alias)
	}
}
