package parser

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/tuannm99/novacsv/internal/record"
)

// Catalog is the schema lookup resolution needs.
type Catalog interface {
	TableSchema(name string) (*record.Schema, bool)
}

// Resolve binds every table and column reference of stmt against cat.
// Unqualified names must match exactly one table in scope.
func Resolve(stmt *SelectStmt, cat Catalog) error {
	tables := stmt.Tables()
	seen := make(map[string]*TableRef, len(tables))
	for _, t := range tables {
		schema, ok := cat.TableSchema(t.Name)
		if !ok {
			return errors.Wrapf(ErrSchema, "unknown table %q (position %d)", t.Name, t.Pos)
		}
		t.Schema = schema
		key := strings.ToLower(t.Ref())
		if _, dup := seen[key]; dup {
			return errors.Wrapf(ErrSchema, "table name or alias %q used twice (position %d)", t.Ref(), t.Pos)
		}
		seen[key] = t
	}

	if stmt.Join != nil {
		for _, t := range stmt.From {
			if strings.EqualFold(t.Name, stmt.Join.Table.Name) {
				return errors.Wrapf(ErrSchema, "JOIN of table %q with itself", t.Name)
			}
		}
	}

	for i := range stmt.Items {
		if c := stmt.Items[i].Column; c != nil {
			if err := resolveColumn(c, tables, seen); err != nil {
				return err
			}
		}
	}
	if stmt.Join != nil {
		on := stmt.Join.On
		for _, o := range []*Operand{on.Left, on.Right} {
			if err := resolveColumn(o.Column, tables, seen); err != nil {
				return err
			}
		}
		if on.Left.Column.Table == on.Right.Column.Table {
			return errors.Wrapf(ErrSchema, "JOIN ... ON must compare columns of two different tables (position %d)", on.Left.Pos)
		}
	}
	return walkOperands(stmt.Where, func(o *Operand) error {
		if !o.IsColumn() {
			return nil
		}
		return resolveColumn(o.Column, tables, seen)
	})
}

func resolveColumn(c *ColumnRef, tables []*TableRef, byRef map[string]*TableRef) error {
	if c.Qualifier != "" {
		t, ok := byRef[strings.ToLower(c.Qualifier)]
		if !ok {
			return errors.Wrapf(ErrSchema, "unknown table or alias %q (position %d)", c.Qualifier, c.Pos)
		}
		col, ok := t.Schema.Col(c.Name)
		if !ok {
			return errors.Wrapf(ErrSchema, "unknown column %s.%s (position %d)", c.Qualifier, c.Name, c.Pos)
		}
		c.Table, c.Col = t, *col
		return nil
	}

	var found *TableRef
	var fcol *record.Column
	for _, t := range tables {
		col, ok := t.Schema.Col(c.Name)
		if !ok {
			continue
		}
		if found != nil {
			return errors.Wrapf(ErrSchema, "ambiguous column %q, qualify it with %s or %s (position %d)",
				c.Name, found.Ref(), t.Ref(), c.Pos)
		}
		found, fcol = t, col
	}
	if found == nil {
		return errors.Wrapf(ErrSchema, "unknown column %q (position %d)", c.Name, c.Pos)
	}
	c.Table, c.Col = found, *fcol
	return nil
}

// walkOperands visits every operand of an expression tree left to right.
func walkOperands(e Expr, fn func(*Operand) error) error {
	switch n := e.(type) {
	case nil:
		return nil
	case *Comparison:
		if err := fn(n.Left); err != nil {
			return err
		}
		return fn(n.Right)
	case *Logical:
		if err := walkOperands(n.Left, fn); err != nil {
			return err
		}
		return walkOperands(n.Right, fn)
	}
	return errors.Errorf("parser: unexpected expression %T", e)
}
