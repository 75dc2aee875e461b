package planner

import (
	"fmt"
	"sort"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/internal/scalar"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/schema"
)

// DefaultMaxDepth bounds relation nesting when no limit is configured.
const DefaultMaxDepth = 5

// FilterValidator checks a filter tree against a model without running it.
type FilterValidator interface {
	ValidateFilter(m *schema.Model, f query.Filter) error
}

// Planner validates selections and builds execution plans. It holds no
// mutable state and is safe for concurrent use.
type Planner struct {
	filters  FilterValidator
	maxDepth int
}

// New creates a planner. maxDepth <= 0 selects DefaultMaxDepth.
func New(filters FilterValidator, maxDepth int) *Planner {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Planner{filters: filters, maxDepth: maxDepth}
}

// MaxDepth returns the nesting bound.
func (p *Planner) MaxDepth() int { return p.maxDepth }

// level is the per-fetch part of find arguments and includes.
type level struct {
	where    query.Filter
	orderBy  []query.OrderBy
	cursor   query.UniqueWhere
	skip     *int
	take     *int
	distinct []string
	sel      query.Selection
}

// Find plans findMany, findFirst and the reads behind mutations.
func (p *Planner) Find(m *schema.Model, args query.FindManyArgs) (*Fetch, error) {
	next := 0
	return p.build(m, nil, Root, level{
		where:    args.Where,
		orderBy:  args.OrderBy,
		cursor:   args.Cursor,
		skip:     args.Skip,
		take:     args.Take,
		distinct: args.Distinct,
		sel:      args.Selection,
	}, 0, &next)
}

// Unique plans findUnique.
func (p *Planner) Unique(m *schema.Model, where query.UniqueWhere, sel query.Selection) (*Fetch, error) {
	filter, err := UniqueFilter(m, where)
	if err != nil {
		return nil, err
	}
	one := 1
	return p.Find(m, query.FindManyArgs{Where: filter, Take: &one, Selection: sel})
}

func (p *Planner) build(m *schema.Model, rel *schema.Relation, strategy Strategy, lvl level, depth int, next *int) (*Fetch, error) {
	if depth > p.maxDepth {
		return nil, &errs.SelectionTooDeepError{Model: m.Name, Depth: depth, Max: p.maxDepth}
	}
	f := &Fetch{
		Model:    m,
		Strategy: strategy,
		Relation: rel,
		Alias:    fmt.Sprintf("t%d", *next),
		Where:    lvl.where,
		Skip:     lvl.skip,
		Take:     lvl.take,
	}
	*next++

	sel := lvl.sel
	if sel.Select != nil && len(sel.Omit) > 0 {
		return nil, &errs.InvalidSelectionError{Model: m.Name, Reason: "select and omit cannot be used together"}
	}

	includes := make(map[string]*query.Include, len(sel.Include))
	for name, inc := range sel.Include {
		includes[name] = inc
	}
	output := make(map[string]bool)
	if sel.Select != nil {
		for _, name := range sel.Select {
			if _, ok := m.Field(name); ok {
				output[name] = true
				continue
			}
			if _, ok := m.Relation(name); ok {
				if _, set := includes[name]; !set {
					includes[name] = nil
				}
				continue
			}
			return nil, errs.Mismatch(m.Name, name, "unknown field in select")
		}
	} else {
		for _, fd := range m.Fields {
			output[fd.Name] = true
		}
		for _, name := range sel.Omit {
			if _, ok := m.Field(name); !ok {
				return nil, errs.Mismatch(m.Name, name, "unknown scalar field in omit")
			}
			delete(output, name)
		}
	}

	if lvl.where != nil && p.filters != nil {
		if err := p.filters.ValidateFilter(m, lvl.where); err != nil {
			return nil, err
		}
	}
	if lvl.skip != nil && *lvl.skip < 0 {
		return nil, errs.Mismatch(m.Name, "", "skip must not be negative")
	}

	orders, err := ResolveOrder(m, lvl.orderBy)
	if err != nil {
		return nil, err
	}
	f.OrderBy = orders

	needed := make(map[string]bool, len(output))
	for name := range output {
		needed[name] = true
	}
	for _, pk := range m.PrimaryKeyFields() {
		needed[pk.Name] = true
	}
	for _, o := range orders {
		needed[o.Field.Name] = true
	}
	if strategy == Batch {
		for _, k := range rel.TargetKeys() {
			needed[k.Name] = true
		}
	}

	if lvl.cursor != nil {
		cur, err := NormalizeUnique(m, lvl.cursor)
		if err != nil {
			return nil, err
		}
		f.Cursor = cur
		for name := range cur {
			needed[name] = true
		}
	}
	for _, name := range lvl.distinct {
		fd, ok := m.Field(name)
		if !ok {
			return nil, errs.Mismatch(m.Name, name, "unknown field in distinct")
		}
		f.Distinct = append(f.Distinct, fd)
		needed[name] = true
	}

	names := make([]string, 0, len(includes))
	for name := range includes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r, ok := m.Relation(name)
		if !ok {
			return nil, errs.Mismatch(m.Name, name, "unknown relation in include")
		}
		inc := includes[name]
		if inc == nil {
			inc = &query.Include{}
		}
		for _, k := range r.LocalKeys() {
			needed[k.Name] = true
		}
		child := level{
			where:    inc.Where,
			orderBy:  inc.OrderBy,
			cursor:   inc.Cursor,
			skip:     inc.Skip,
			take:     inc.Take,
			distinct: inc.Distinct,
			sel:      inc.Selection,
		}
		if r.IsList() {
			n := 0
			c, err := p.build(r.TargetModel(), r, Batch, child, depth+1, &n)
			if err != nil {
				return nil, err
			}
			f.Batches = append(f.Batches, c)
			continue
		}
		if inc.Where != nil || len(inc.OrderBy) > 0 || inc.Cursor != nil ||
			inc.Skip != nil || inc.Take != nil || len(inc.Distinct) > 0 {
			return nil, &errs.InvalidSelectionError{
				Model:  m.Name,
				Reason: fmt.Sprintf("to-one relation %s does not take a filter, ordering or pagination", name),
			}
		}
		c, err := p.build(r.TargetModel(), r, Join, child, depth+1, next)
		if err != nil {
			return nil, err
		}
		f.Joins = append(f.Joins, c)
	}

	for _, fd := range m.Fields {
		if needed[fd.Name] {
			f.Columns = append(f.Columns, fd)
		}
		if output[fd.Name] {
			f.Output = append(f.Output, fd.Name)
		}
	}
	return f, nil
}

// ResolveOrder validates sort keys and appends the primary key as the final
// tie-break so every ordering is total.
func ResolveOrder(m *schema.Model, specs []query.OrderBy) ([]Order, error) {
	orders := make([]Order, 0, len(specs)+len(m.PrimaryKeyFields()))
	seen := make(map[string]bool, len(specs))
	for _, o := range specs {
		if o.Aggregate != "" {
			return nil, errs.Mismatch(m.Name, o.Field, "aggregate ordering is only valid in groupBy")
		}
		fd, ok := m.Field(o.Field)
		if !ok {
			return nil, errs.Mismatch(m.Name, o.Field, "unknown field in orderBy")
		}
		if fd.Type == schema.Json || fd.Type == schema.Bytes {
			return nil, errs.Mismatch(m.Name, o.Field, "cannot order by a %s field", fd.Type)
		}
		desc, err := descending(m, o)
		if err != nil {
			return nil, err
		}
		if seen[fd.Name] {
			continue
		}
		seen[fd.Name] = true
		orders = append(orders, Order{Field: fd, Desc: desc, NullsFirst: nullsFirst(o.Nulls, desc)})
	}
	for _, pk := range m.PrimaryKeyFields() {
		if !seen[pk.Name] {
			orders = append(orders, Order{Field: pk, NullsFirst: true})
		}
	}
	return orders, nil
}

// Direction resolves the direction and NULL placement of a sort key. The
// returned order has no field set.
func Direction(m *schema.Model, o query.OrderBy) (Order, error) {
	desc, err := descending(m, o)
	if err != nil {
		return Order{}, err
	}
	return Order{Desc: desc, NullsFirst: nullsFirst(o.Nulls, desc)}, nil
}

func descending(m *schema.Model, o query.OrderBy) (bool, error) {
	switch o.Direction {
	case "", query.Asc:
		return false, nil
	case query.Desc:
		return true, nil
	}
	return false, errs.Mismatch(m.Name, o.Field, "unknown sort direction %q", o.Direction)
}

func nullsFirst(n query.NullsOrder, desc bool) bool {
	switch n {
	case query.NullsFirst:
		return true
	case query.NullsLast:
		return false
	}
	return !desc
}

// NormalizeUnique checks that where names scalar fields covering a unique
// constraint and returns it with canonical values.
func NormalizeUnique(m *schema.Model, where query.UniqueWhere) (query.UniqueWhere, error) {
	if len(where) == 0 {
		return nil, errs.Mismatch(m.Name, "", "a unique selector needs at least one field")
	}
	out := make(query.UniqueWhere, len(where))
	for name, v := range where {
		fd, ok := m.Field(name)
		if !ok {
			return nil, errs.Mismatch(m.Name, name, "unknown field in unique selector")
		}
		nv, err := scalar.Normalize(fd.Type, v)
		if err != nil {
			return nil, errs.Mismatch(m.Name, name, "%v", err)
		}
		if nv == nil {
			return nil, errs.Mismatch(m.Name, name, "unique selector values cannot be null")
		}
		if fd.Type == schema.Enum && !fd.HasEnumValue(nv.(string)) {
			return nil, errs.Mismatch(m.Name, name, "%q is not a value of the enum", nv)
		}
		out[name] = nv
	}
	for _, u := range m.Constraints() {
		covered := true
		for _, name := range u.Fields {
			if _, ok := out[name]; !ok {
				covered = false
				break
			}
		}
		if covered {
			return out, nil
		}
	}
	return nil, errs.Mismatch(m.Name, "", "unique selector %v does not cover a unique constraint", sortedKeys(out))
}

// UniqueFilter converts a unique selector into an equality filter.
func UniqueFilter(m *schema.Model, where query.UniqueWhere) (query.Filter, error) {
	norm, err := NormalizeUnique(m, where)
	if err != nil {
		return nil, err
	}
	keys := sortedKeys(norm)
	and := make(query.And, 0, len(keys))
	for _, k := range keys {
		and = append(and, query.Eq(k, norm[k]))
	}
	return and, nil
}

func sortedKeys(w query.UniqueWhere) []string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
