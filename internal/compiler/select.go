package compiler

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/satishbabariya/prisma-engine/internal/planner"
	"github.com/satishbabariya/prisma-engine/internal/scalar"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/schema"
)

const (
	rowNumberAlias = "__rn"
	batchAlias     = "__batch"
	subqueryAlias  = "__page"
)

// SelectOptions adjust a rendered fetch statement.
type SelectOptions struct {
	// After restricts the rows to those following a cursor.
	After sq.Sqlizer
	// Reverse flips every sort key, for backwards pages.
	Reverse bool
	Limit   *uint64
	Offset  *uint64
	// ForUpdate locks the selected rows where the store supports it.
	ForUpdate bool
}

func (o SelectOptions) paginated() bool {
	return o.After != nil || o.Limit != nil || o.Offset != nil
}

// Select renders the statement for a root fetch and its joined relations.
// Columns come back in f.Layout() order, aliased with planner.ColumnAlias.
func (c *Compiler) Select(f *planner.Fetch, opts SelectOptions) (Statement, error) {
	b, err := c.selectFrom(f, true, opts.Reverse)
	if err != nil {
		return Statement{}, err
	}
	if opts.After != nil {
		b = b.Where(opts.After)
	}
	b = c.dialect.Paginate(b, opts.Limit, opts.Offset)
	if opts.ForUpdate {
		if lock := strings.TrimSpace(c.dialect.ForUpdate()); lock != "" {
			b = b.Suffix(lock)
		}
	}
	return c.build(b)
}

// selectFrom renders the columns, joins, filter and optionally the ordering of f.
func (c *Compiler) selectFrom(f *planner.Fetch, ordered, reverse bool) (sq.SelectBuilder, error) {
	layout := f.Layout()
	cols := make([]string, len(layout))
	for i, slot := range layout {
		cols[i] = c.col(slot.Fetch.Alias, slot.Field) + " AS " + c.quote(planner.ColumnAlias(slot.Fetch, slot.Field))
	}
	b := sq.Select(cols...).From(c.from(f.Model, f.Alias))
	b = c.joins(b, f)
	if f.Where != nil {
		pred, err := c.Filter(f.Model, f.Alias, f.Where)
		if err != nil {
			return b, err
		}
		b = b.Where(pred)
	}
	if ordered {
		b = b.OrderBy(c.orderTerms(f.Alias, f.OrderBy, reverse)...)
	}
	return b, nil
}

func (c *Compiler) joins(b sq.SelectBuilder, f *planner.Fetch) sq.SelectBuilder {
	for _, j := range f.Joins {
		b = b.LeftJoin(c.from(j.Model, j.Alias) + " ON " + c.joinOn(j.Relation, j.Alias, f.Alias))
		b = c.joins(b, j)
	}
	return b
}

// joinOn renders the equality between a relation's target keys under
// targetAlias and its local keys under localAlias.
func (c *Compiler) joinOn(r *schema.Relation, targetAlias, localAlias string) string {
	on := make([]string, len(r.TargetKeys()))
	for i, tk := range r.TargetKeys() {
		on[i] = c.col(targetAlias, tk) + " = " + c.col(localAlias, r.LocalKeys()[i])
	}
	return strings.Join(on, " AND ")
}

func (c *Compiler) orderTerms(alias string, orders []planner.Order, reverse bool) []string {
	terms := make([]string, 0, len(orders))
	for _, o := range orders {
		if reverse {
			o = o.Reverse()
		}
		terms = append(terms, c.dialect.OrderTerms(c.col(alias, o.Field), o.Desc, o.NullsFirst, o.Field.Nullable)...)
	}
	return terms
}

// CursorRow renders the lookup of the cursor record's sort key values, in
// the order of f.OrderBy.
func (c *Compiler) CursorRow(f *planner.Fetch) (Statement, error) {
	filter, err := planner.UniqueFilter(f.Model, f.Cursor)
	if err != nil {
		return Statement{}, err
	}
	pred, err := c.Filter(f.Model, f.Alias, filter)
	if err != nil {
		return Statement{}, err
	}
	cols := make([]string, len(f.OrderBy))
	for i, o := range f.OrderBy {
		cols[i] = c.col(f.Alias, o.Field)
	}
	return c.build(sq.Select(cols...).From(c.from(f.Model, f.Alias)).Where(pred).Limit(1))
}

// After renders the predicate matching rows strictly after the cursor
// values in the given ordering: the lexicographic successor test
//
//	k1 > c1 OR (k1 = c1 AND k2 > c2) OR ...
//
// with NULLs placed as each sort key places them.
func (c *Compiler) After(alias string, orders []planner.Order, values []any, reverse bool) sq.Sqlizer {
	or := make(sq.Or, 0, len(orders))
	for i := range orders {
		and := make(sq.And, 0, i+1)
		for j := 0; j < i; j++ {
			and = append(and, c.keyEqual(alias, orders[j], values[j]))
		}
		o := orders[i]
		if reverse {
			o = o.Reverse()
		}
		and = append(and, c.keyAfter(alias, o, values[i]))
		or = append(or, and)
	}
	return or
}

func (c *Compiler) keyEqual(alias string, o planner.Order, v any) sq.Sqlizer {
	col := c.col(alias, o.Field)
	if v == nil {
		return sq.Expr(col + " IS NULL")
	}
	return sq.Expr(col+" = ?", scalar.Arg(v))
}

func (c *Compiler) keyAfter(alias string, o planner.Order, v any) sq.Sqlizer {
	col := c.col(alias, o.Field)
	if v == nil {
		if o.NullsFirst {
			return sq.Expr(col + " IS NOT NULL")
		}
		return matchNone
	}
	cmp := " > ?"
	if o.Desc {
		cmp = " < ?"
	}
	after := sq.Expr(col+cmp, scalar.Arg(v))
	if o.Field.Nullable && !o.NullsFirst {
		return sq.Or{after, sq.Expr(col + " IS NULL")}
	}
	return after
}

// Window reports whether a batched fetch paginates inside the store. Cursor
// and distinct pages are cut after loading.
func Window(f *planner.Fetch) bool {
	return f.Cursor == nil && len(f.Distinct) == 0 && (f.Skip != nil || f.Take != nil)
}

// BatchSelect renders the fetch of a to-many relation for a set of parent
// keys. Per-parent skip and take use ROW_NUMBER partitioned by the join key:
//
//	SELECT ... FROM (SELECT ..., ROW_NUMBER() OVER (PARTITION BY fk ORDER BY ...) AS __rn
//	                 FROM child WHERE fk IN (...)) AS __batch
//	WHERE __rn > skip AND __rn <= skip+take
func (c *Compiler) BatchSelect(f *planner.Fetch, keys [][]any) (Statement, error) {
	if f.Relation == nil {
		return Statement{}, fmt.Errorf("compiler: batch fetch %s has no relation", f.Alias)
	}
	targets := f.Relation.TargetKeys()
	in := c.keyIn(f.Alias, targets, keys)
	if !Window(f) {
		b, err := c.selectFrom(f, true, f.Backwards())
		if err != nil {
			return Statement{}, err
		}
		return c.build(b.Where(in))
	}

	inner, err := c.selectFrom(f, false, false)
	if err != nil {
		return Statement{}, err
	}
	partition := make([]string, len(targets))
	for i, tk := range targets {
		partition[i] = c.col(f.Alias, tk)
	}
	rn := fmt.Sprintf("ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS %s",
		strings.Join(partition, ", "),
		strings.Join(c.orderTerms(f.Alias, f.OrderBy, f.Backwards()), ", "),
		c.quote(rowNumberAlias))
	inner = inner.Column(rn).Where(in)

	layout := f.Layout()
	cols := make([]string, len(layout))
	for i, slot := range layout {
		cols[i] = c.quote(planner.ColumnAlias(slot.Fetch, slot.Field))
	}
	outer := sq.Select(cols...).FromSelect(inner, c.quote(batchAlias))

	var skip uint64
	if f.Skip != nil {
		skip = uint64(*f.Skip)
	}
	rnCol := c.quote(rowNumberAlias)
	outer = outer.Where(sq.Expr(rnCol+" > ?", skip))
	if f.Take != nil {
		take := *f.Take
		if take < 0 {
			take = -take
		}
		outer = outer.Where(sq.Expr(rnCol+" <= ?", skip+uint64(take)))
	}
	order := make([]string, 0, len(targets)+1)
	for _, tk := range targets {
		order = append(order, c.quote(planner.ColumnAlias(f, tk)))
	}
	outer = outer.OrderBy(append(order, rnCol)...)
	return c.build(outer)
}

// keyIn renders "key IN (...)" for single-column keys and an OR of
// conjunctions for composite keys.
func (c *Compiler) keyIn(alias string, fields []*schema.Field, keys [][]any) sq.Sqlizer {
	if len(keys) == 0 {
		return matchNone
	}
	if len(fields) == 1 {
		args := make([]any, len(keys))
		for i, k := range keys {
			args[i] = scalar.Arg(k[0])
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
		return sq.Expr(c.col(alias, fields[0])+" IN ("+marks+")", args...)
	}
	or := make(sq.Or, len(keys))
	for i, k := range keys {
		and := make(sq.And, len(fields))
		for j, fd := range fields {
			and[j] = sq.Expr(c.col(alias, fd)+" = ?", scalar.Arg(k[j]))
		}
		or[i] = and
	}
	return or
}

// KeyFilter builds a filter matching the records whose fields equal one of
// the key tuples.
func KeyFilter(fields []*schema.Field, keys [][]any) query.Filter {
	if len(fields) == 1 {
		values := make([]any, len(keys))
		for i, k := range keys {
			values[i] = k[0]
		}
		return query.OneOf(fields[0].Name, values...)
	}
	or := make(query.Or, len(keys))
	for i, k := range keys {
		and := make(query.And, len(fields))
		for j, fd := range fields {
			and[j] = query.Eq(fd.Name, k[j])
		}
		or[i] = and
	}
	return or
}

// Count renders a count of the rows a fetch would return.
func (c *Compiler) Count(f *planner.Fetch, opts SelectOptions) (Statement, error) {
	if !opts.paginated() {
		b := sq.Select("COUNT(*)").From(c.from(f.Model, f.Alias))
		if f.Where != nil {
			pred, err := c.Filter(f.Model, f.Alias, f.Where)
			if err != nil {
				return Statement{}, err
			}
			b = b.Where(pred)
		}
		return c.build(b)
	}
	inner, err := c.page(f, opts, []string{"1"})
	if err != nil {
		return Statement{}, err
	}
	return c.build(sq.Select("COUNT(*)").FromSelect(inner, c.quote(subqueryAlias)))
}

// page renders a paginated fetch selecting only cols.
func (c *Compiler) page(f *planner.Fetch, opts SelectOptions, cols []string) (sq.SelectBuilder, error) {
	b := sq.Select(cols...).From(c.from(f.Model, f.Alias))
	if f.Where != nil {
		pred, err := c.Filter(f.Model, f.Alias, f.Where)
		if err != nil {
			return b, err
		}
		b = b.Where(pred)
	}
	if opts.After != nil {
		b = b.Where(opts.After)
	}
	b = b.OrderBy(c.orderTerms(f.Alias, f.OrderBy, opts.Reverse)...)
	return c.dialect.Paginate(b, opts.Limit, opts.Offset), nil
}
