package executor

import (
	"context"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/internal/compiler"
	"github.com/satishbabariya/prisma-engine/internal/dberr"
	"github.com/satishbabariya/prisma-engine/internal/planner"
	"github.com/satishbabariya/prisma-engine/internal/scalar"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/schema"
)

// noColumns plans a fetch that only filters, orders and pages.
var noColumns = query.Selection{Select: []string{}}

// Count returns the number of records matching args, after pagination.
func (e *Executor) Count(ctx context.Context, s Session, m *schema.Model, args query.CountArgs) (int64, error) {
	f, err := e.plan(m, "count", args, func() (*planner.Fetch, error) {
		return e.planner.Find(m, query.FindManyArgs{
			Where:     args.Where,
			OrderBy:   args.OrderBy,
			Cursor:    args.Cursor,
			Skip:      args.Skip,
			Take:      args.Take,
			Selection: noColumns,
		})
	})
	if err != nil {
		return 0, err
	}
	opts, found, err := e.pageOptions(ctx, s, f)
	if err != nil || !found {
		return 0, err
	}
	st, err := e.compiler.Count(f, opts)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := e.queryRow(ctx, s, m, st, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// Aggregate computes the requested aggregates over the records matching args.
func (e *Executor) Aggregate(ctx context.Context, s Session, m *schema.Model, args query.AggregateArgs) (query.AggregateResult, error) {
	aggs, err := compiler.ResolveAggregates(m, args.Aggregates)
	if err != nil {
		return query.AggregateResult{}, err
	}
	if len(aggs) == 0 {
		return query.AggregateResult{}, errs.Mismatch(m.Name, "", "aggregate needs at least one of _count, _sum, _avg, _min or _max")
	}
	f, err := e.planner.Find(m, query.FindManyArgs{
		Where:     args.Where,
		OrderBy:   args.OrderBy,
		Cursor:    args.Cursor,
		Skip:      args.Skip,
		Take:      args.Take,
		Selection: noColumns,
	})
	if err != nil {
		return query.AggregateResult{}, err
	}

	result := newAggregateResult(aggs)
	opts, found, err := e.pageOptions(ctx, s, f)
	if err != nil {
		return query.AggregateResult{}, err
	}
	if !found {
		return result, nil
	}
	st, err := e.compiler.Aggregate(f, aggs, opts)
	if err != nil {
		return query.AggregateResult{}, err
	}
	raw := make([]any, len(aggs))
	dest := make([]any, len(raw))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := e.queryRow(ctx, s, m, st, dest...); err != nil {
		return query.AggregateResult{}, err
	}
	for i, a := range aggs {
		v, err := scalar.Decode(a.Type(), raw[i])
		if err != nil {
			return query.AggregateResult{}, err
		}
		setAggregate(&result, a, v)
	}
	return result, nil
}

func newAggregateResult(aggs []compiler.AggregateColumn) query.AggregateResult {
	var r query.AggregateResult
	for _, a := range aggs {
		if a.Func == query.CountAgg {
			if r.Count == nil {
				r.Count = make(map[string]int64)
			}
			r.Count[a.Key()] = 0
			continue
		}
		m := aggregateMap(&r, a.Func)
		if *m == nil {
			*m = make(map[string]any)
		}
		(*m)[a.Key()] = nil
	}
	return r
}

func setAggregate(r *query.AggregateResult, a compiler.AggregateColumn, v any) {
	if a.Func == query.CountAgg {
		n, _ := v.(int64)
		r.Count[a.Key()] = n
		return
	}
	(*aggregateMap(r, a.Func))[a.Key()] = v
}

func aggregateMap(r *query.AggregateResult, fn query.AggregateFunc) *map[string]any {
	switch fn {
	case query.SumAgg:
		return &r.Sum
	case query.AvgAgg:
		return &r.Avg
	case query.MinAgg:
		return &r.Min
	}
	return &r.Max
}

// GroupBy groups the records matching args by the By fields and computes the
// requested aggregates per group. Each result record holds the grouped
// fields and, per aggregate function, a record of values keyed by field.
func (e *Executor) GroupBy(ctx context.Context, s Session, m *schema.Model, args query.GroupByArgs) ([]query.Record, error) {
	g, err := e.groupQuery(m, args)
	if err != nil {
		return nil, err
	}
	st, err := e.compiler.GroupBy(g)
	if err != nil {
		return nil, err
	}
	rows, err := e.Query(ctx, s, m, st)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	width := len(g.By) + len(g.Aggregates)
	out := []query.Record{}
	for rows.Next() {
		raw := make([]any, width)
		dest := make([]any, width)
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, dberr.Translate(m, err)
		}
		rec := make(query.Record, width)
		for i, fd := range g.By {
			v, err := scalar.Decode(fd.Type, raw[i])
			if err != nil {
				return nil, err
			}
			rec[fd.Name] = v
		}
		for i, a := range g.Aggregates {
			v, err := scalar.Decode(a.Type(), raw[len(g.By)+i])
			if err != nil {
				return nil, err
			}
			if a.Func == query.CountAgg && v == nil {
				v = int64(0)
			}
			group, _ := rec[string(a.Func)].(query.Record)
			if group == nil {
				group = make(query.Record)
				rec[string(a.Func)] = group
			}
			group[a.Key()] = v
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dberr.Translate(m, err)
	}
	return out, nil
}

func (e *Executor) groupQuery(m *schema.Model, args query.GroupByArgs) (compiler.GroupQuery, error) {
	g := compiler.GroupQuery{Model: m, Where: args.Where, Having: args.Having}
	if len(args.By) == 0 {
		return g, errs.Mismatch(m.Name, "", "groupBy needs at least one field in by")
	}
	grouped := make(map[string]bool, len(args.By))
	for _, name := range args.By {
		fd, ok := m.Field(name)
		if !ok {
			return g, errs.Mismatch(m.Name, name, "unknown field in by")
		}
		if fd.Type == schema.Json || fd.Type == schema.Bytes {
			return g, errs.Mismatch(m.Name, name, "cannot group by a %s field", fd.Type)
		}
		if grouped[name] {
			continue
		}
		grouped[name] = true
		g.By = append(g.By, fd)
	}

	aggs, err := compiler.ResolveAggregates(m, args.Aggregates)
	if err != nil {
		return g, err
	}
	g.Aggregates = aggs

	if args.Where != nil {
		if err := e.compiler.ValidateFilter(m, args.Where); err != nil {
			return g, err
		}
	}

	ordered := make(map[string]bool, len(args.OrderBy))
	for _, o := range args.OrderBy {
		dir, err := planner.Direction(m, o)
		if err != nil {
			return g, err
		}
		if o.Aggregate != "" {
			resolved, err := compiler.ResolveAggregates(m, single(o.Aggregate, o.Field))
			if err != nil {
				return g, err
			}
			if len(resolved) == 0 {
				return g, errs.Mismatch(m.Name, o.Field, "unknown aggregate %q in orderBy", o.Aggregate)
			}
			if resolved[0].Field == nil {
				return g, errs.Mismatch(m.Name, o.Field, "cannot order groups by %s", query.AllRecords)
			}
			dir.Field = resolved[0].Field
			g.OrderBy = append(g.OrderBy, compiler.GroupOrder{Order: dir, Aggregate: o.Aggregate})
			continue
		}
		if !grouped[o.Field] {
			return g, errs.Mismatch(m.Name, o.Field, "orderBy field must be in by or aggregated")
		}
		if ordered[o.Field] {
			continue
		}
		ordered[o.Field] = true
		dir.Field, _ = m.Field(o.Field)
		g.OrderBy = append(g.OrderBy, compiler.GroupOrder{Order: dir})
	}
	// grouped fields identify a group, so they make the order total
	for _, fd := range g.By {
		if !ordered[fd.Name] {
			g.OrderBy = append(g.OrderBy, compiler.GroupOrder{Order: planner.Order{Field: fd, NullsFirst: true}})
		}
	}

	if args.Skip != nil {
		if *args.Skip < 0 {
			return g, errs.Mismatch(m.Name, "", "skip must not be negative")
		}
		n := uint64(*args.Skip)
		g.Offset = &n
	}
	if args.Take != nil {
		if *args.Take < 0 {
			return g, errs.Mismatch(m.Name, "", "groupBy does not take a negative take")
		}
		n := uint64(*args.Take)
		g.Limit = &n
	}
	return g, nil
}

func single(fn query.AggregateFunc, field string) query.Aggregates {
	var a query.Aggregates
	switch fn {
	case query.CountAgg:
		a.Count = []string{field}
	case query.SumAgg:
		a.Sum = []string{field}
	case query.AvgAgg:
		a.Avg = []string{field}
	case query.MinAgg:
		a.Min = []string{field}
	case query.MaxAgg:
		a.Max = []string{field}
	}
	return a
}

// queryRow runs a statement returning exactly one row and scans it.
func (e *Executor) queryRow(ctx context.Context, s Session, m *schema.Model, st compiler.Statement, dest ...any) error {
	rows, err := e.Query(ctx, s, m, st)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return dberr.Translate(m, err)
		}
		return errs.Mismatch(m.Name, "", "statement returned no row")
	}
	if err := rows.Scan(dest...); err != nil {
		return dberr.Translate(m, err)
	}
	return nil
}
