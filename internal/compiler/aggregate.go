package compiler

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/internal/planner"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/schema"
)

// AggregateColumn is one requested aggregate. Field is nil for a count of records.
type AggregateColumn struct {
	Func  query.AggregateFunc
	Field *schema.Field
}

// Key is the name the aggregate is reported under.
func (a AggregateColumn) Key() string {
	if a.Field == nil {
		return query.AllRecords
	}
	return a.Field.Name
}

// Type is the scalar type of the aggregate's value.
func (a AggregateColumn) Type() schema.ScalarType {
	switch {
	case a.Func == query.CountAgg:
		return schema.BigInt
	case a.Func == query.SumAgg:
		return SumType(a.Field.Type)
	case a.Func == query.AvgAgg:
		return AvgType(a.Field.Type)
	}
	return a.Field.Type
}

// ResolveAggregates validates the requested aggregates against m and lists
// them in a stable order: count, sum, avg, min, max.
func ResolveAggregates(m *schema.Model, a query.Aggregates) ([]AggregateColumn, error) {
	var cols []AggregateColumn
	add := func(fn query.AggregateFunc, names []string, ok func(*schema.Field) bool) error {
		for _, name := range names {
			if name == query.AllRecords {
				if fn != query.CountAgg {
					return errs.Mismatch(m.Name, name, "%s is only valid for _count", query.AllRecords)
				}
				cols = append(cols, AggregateColumn{Func: fn})
				continue
			}
			fd, found := m.Field(name)
			if !found {
				return errs.Mismatch(m.Name, name, "unknown field in %s", fn)
			}
			if !ok(fd) {
				return errs.Mismatch(m.Name, name, "%s is not supported on %s fields", fn, fd.Type)
			}
			cols = append(cols, AggregateColumn{Func: fn, Field: fd})
		}
		return nil
	}
	every := func(*schema.Field) bool { return true }
	numeric := func(fd *schema.Field) bool { return fd.Type.Numeric() }
	orderable := func(fd *schema.Field) bool { return fd.Type.Orderable() }

	for _, step := range []struct {
		fn    query.AggregateFunc
		names []string
		ok    func(*schema.Field) bool
	}{
		{query.CountAgg, a.Count, every},
		{query.SumAgg, a.Sum, numeric},
		{query.AvgAgg, a.Avg, numeric},
		{query.MinAgg, a.Min, orderable},
		{query.MaxAgg, a.Max, orderable},
	} {
		if err := add(step.fn, step.names, step.ok); err != nil {
			return nil, err
		}
	}
	return cols, nil
}

func (c *Compiler) aggregateExpr(a AggregateColumn, alias string) string {
	if a.Field == nil {
		return "COUNT(*)"
	}
	col := c.col(alias, a.Field)
	switch a.Func {
	case query.CountAgg:
		return "COUNT(" + col + ")"
	case query.SumAgg:
		return "SUM(" + col + ")"
	case query.AvgAgg:
		return "AVG(" + col + ")"
	case query.MinAgg:
		return "MIN(" + col + ")"
	}
	return "MAX(" + col + ")"
}

func (c *Compiler) aggregateAlias(a AggregateColumn) string {
	return c.quote(string(a.Func) + "__" + a.Key())
}

// Aggregate renders the aggregates over the rows a fetch would return. Paged
// aggregates read from a subquery that applies the ordering and the page.
func (c *Compiler) Aggregate(f *planner.Fetch, aggs []AggregateColumn, opts SelectOptions) (Statement, error) {
	if !opts.paginated() {
		cols := make([]string, len(aggs))
		for i, a := range aggs {
			cols[i] = c.aggregateExpr(a, f.Alias) + " AS " + c.aggregateAlias(a)
		}
		b := sq.Select(cols...).From(c.from(f.Model, f.Alias))
		if f.Where != nil {
			pred, err := c.Filter(f.Model, f.Alias, f.Where)
			if err != nil {
				return Statement{}, err
			}
			b = b.Where(pred)
		}
		return c.build(b)
	}

	// the subquery exposes each column under its own name so the outer
	// aggregates can address it through the subquery alias
	inner := make([]string, 0, len(f.Model.Fields))
	for _, fd := range f.Model.Fields {
		inner = append(inner, c.col(f.Alias, fd)+" AS "+c.quote(fd.Column))
	}
	page, err := c.page(f, opts, inner)
	if err != nil {
		return Statement{}, err
	}
	cols := make([]string, len(aggs))
	for i, a := range aggs {
		cols[i] = c.aggregateExpr(a, subqueryAlias) + " AS " + c.aggregateAlias(a)
	}
	return c.build(sq.Select(cols...).FromSelect(page, c.quote(subqueryAlias)))
}

// GroupOrder is a resolved groupBy sort key.
type GroupOrder struct {
	planner.Order
	Aggregate query.AggregateFunc
}

// GroupQuery is a resolved groupBy.
type GroupQuery struct {
	Model      *schema.Model
	By         []*schema.Field
	Aggregates []AggregateColumn
	Where      query.Filter
	Having     query.Filter
	OrderBy    []GroupOrder
	Limit      *uint64
	Offset     *uint64
}

// GroupBy renders a groupBy. Result columns are the grouped fields in order,
// then the aggregates.
func (c *Compiler) GroupBy(g GroupQuery) (Statement, error) {
	const alias = "t0"
	cols := make([]string, 0, len(g.By)+len(g.Aggregates))
	group := make([]string, len(g.By))
	for i, fd := range g.By {
		group[i] = c.col(alias, fd)
		cols = append(cols, group[i]+" AS "+c.quote(fd.Name))
	}
	for _, a := range g.Aggregates {
		cols = append(cols, c.aggregateExpr(a, alias)+" AS "+c.aggregateAlias(a))
	}
	b := sq.Select(cols...).From(c.from(g.Model, alias)).GroupBy(group...)
	if g.Where != nil {
		pred, err := c.Filter(g.Model, alias, g.Where)
		if err != nil {
			return Statement{}, err
		}
		b = b.Where(pred)
	}
	if g.Having != nil {
		pred, err := c.having(g.Model, alias, g.By, g.Having)
		if err != nil {
			return Statement{}, err
		}
		b = b.Having(pred)
	}
	terms := make([]string, 0, len(g.OrderBy))
	for _, o := range g.OrderBy {
		expr := c.col(alias, o.Field)
		nullable := o.Field.Nullable
		if o.Aggregate != "" {
			expr = c.aggregateExpr(AggregateColumn{Func: o.Aggregate, Field: o.Field}, alias)
			nullable = o.Aggregate != query.CountAgg
		}
		terms = append(terms, c.dialect.OrderTerms(expr, o.Desc, o.NullsFirst, nullable)...)
	}
	b = b.OrderBy(terms...)
	b = c.dialect.Paginate(b, g.Limit, g.Offset)
	return c.build(b)
}
