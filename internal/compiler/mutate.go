package compiler

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/satishbabariya/prisma-engine/internal/scalar"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/schema"
)

// Assignment is one SET term of an update. Value is canonical.
type Assignment struct {
	Field *schema.Field
	Op    query.AtomicOp
	Value any
}

// InsertOptions adjust an INSERT.
type InsertOptions struct {
	SkipDuplicates bool
	// Returning lists the columns read back where the store supports RETURNING.
	Returning []*schema.Field
}

// Insert renders a multi-row INSERT. Every row holds one canonical value per
// field. With no fields the single row takes every default.
func (c *Compiler) Insert(m *schema.Model, fields []*schema.Field, rows [][]any, opts InsertOptions) (Statement, error) {
	returning := c.returning(opts.Returning)
	if len(fields) == 0 {
		if len(rows) != 1 {
			return Statement{}, fmt.Errorf("compiler: a default-only insert takes exactly one row, got %d", len(rows))
		}
		sql := c.dialect.EmptyInsert(c.quote(m.Table))
		if returning != "" {
			sql += " " + returning
		}
		return Statement{SQL: sql}, nil
	}

	cols := make([]string, len(fields))
	for i, fd := range fields {
		cols[i] = c.quote(fd.Column)
	}
	b := sq.Insert(c.quote(m.Table)).Columns(cols...)
	for _, row := range rows {
		args := make([]any, len(row))
		for i, v := range row {
			args[i] = scalar.Arg(v)
		}
		b = b.Values(args...)
	}
	if opts.SkipDuplicates {
		b = c.dialect.SkipDuplicates(b)
	}
	if returning != "" {
		b = b.Suffix(returning)
	}
	return c.build(b)
}

func (c *Compiler) returning(fields []*schema.Field) string {
	if len(fields) == 0 || !c.dialect.SupportsReturning() {
		return ""
	}
	cols := make([]string, len(fields))
	for i, fd := range fields {
		cols[i] = c.quote(fd.Column)
	}
	return "RETURNING " + strings.Join(cols, ", ")
}

// assignment renders the right-hand side of a SET term. Atomic operations
// reference the stored value through qualifier when it is not empty.
func (c *Compiler) assignment(qualifier string, a Assignment) (string, []any) {
	col := c.quote(a.Field.Column)
	if qualifier != "" {
		col = c.quote(qualifier) + "." + col
	}
	arg := scalar.Arg(a.Value)
	switch a.Op {
	case query.Increment:
		return col + " + ?", []any{arg}
	case query.Decrement:
		return col + " - ?", []any{arg}
	case query.Multiply:
		return col + " * ?", []any{arg}
	case query.Divide:
		return col + " / ?", []any{arg}
	}
	return "?", []any{arg}
}

// Update renders an UPDATE of the rows of m matching where.
func (c *Compiler) Update(m *schema.Model, sets []Assignment, where query.Filter) (Statement, error) {
	if len(sets) == 0 {
		return Statement{}, fmt.Errorf("compiler: update of %s sets no fields", m.Name)
	}
	b := sq.Update(c.quote(m.Table))
	for _, a := range sets {
		expr, args := c.assignment("", a)
		if expr == "?" {
			b = b.Set(c.quote(a.Field.Column), args[0])
			continue
		}
		b = b.Set(c.quote(a.Field.Column), sq.Expr(expr, args...))
	}
	if where != nil {
		pred, err := c.Filter(m, m.Table, where)
		if err != nil {
			return Statement{}, err
		}
		b = b.Where(pred)
	}
	return c.build(b)
}

// Delete renders a DELETE of the rows of m matching where.
func (c *Compiler) Delete(m *schema.Model, where query.Filter) (Statement, error) {
	b := sq.Delete(c.quote(m.Table))
	if where != nil {
		pred, err := c.Filter(m, m.Table, where)
		if err != nil {
			return Statement{}, err
		}
		b = b.Where(pred)
	}
	return c.build(b)
}

// Upsert renders a single-statement upsert:
//
//	INSERT ... ON CONFLICT (conflict) DO UPDATE SET ... RETURNING ...
//
// With no assignments the conflicting row is left as is and still returned.
func (c *Compiler) Upsert(m *schema.Model, fields []*schema.Field, values []any, conflict []*schema.Field, sets []Assignment, returning []*schema.Field) (Statement, error) {
	if !c.dialect.SupportsNativeUpsert() {
		return Statement{}, fmt.Errorf("compiler: %s has no native upsert", c.dialect.Provider())
	}
	if len(conflict) == 0 || len(fields) == 0 {
		return Statement{}, fmt.Errorf("compiler: upsert of %s needs insert fields and a conflict target", m.Name)
	}
	cols := make([]string, len(fields))
	args := make([]any, len(values))
	for i, fd := range fields {
		cols[i] = c.quote(fd.Column)
		args[i] = scalar.Arg(values[i])
	}
	target := make([]string, len(conflict))
	for i, fd := range conflict {
		target[i] = c.quote(fd.Column)
	}

	var set []string
	var setArgs []any
	for _, a := range sets {
		expr, ea := c.assignment(m.Table, a)
		set = append(set, c.quote(a.Field.Column)+" = "+expr)
		setArgs = append(setArgs, ea...)
	}
	if len(set) == 0 {
		// a no-op update so the existing row is still returned
		set = append(set, target[0]+" = excluded."+target[0])
	}

	b := sq.Insert(c.quote(m.Table)).Columns(cols...).Values(args...)
	b = b.Suffix("ON CONFLICT ("+strings.Join(target, ", ")+") DO UPDATE SET "+strings.Join(set, ", "), setArgs...)
	if r := c.returning(returning); r != "" {
		b = b.Suffix(r)
	}
	return c.build(b)
}
