// Package planner turns a selection tree into an execution plan: a tree of
// physical fetches annotated with the key columns that join each level to
// its parent.
//
// The fetch strategy is fixed per relation cardinality:
//
//   - to-one relations are joined into the parent statement with LEFT JOIN;
//     at most one row matches, so the join never multiplies parent rows.
//   - to-many relations are loaded with one batched IN query per relation
//     level, keyed by the parent rows' join columns.
package planner

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/schema"
)

// Strategy is how a fetch is connected to its parent.
type Strategy int

const (
	// Root is the top-level fetch.
	Root Strategy = iota
	// Join is a to-one relation fetched in the parent's statement.
	Join
	// Batch is a to-many relation fetched by a separate IN query.
	Batch
)

func (s Strategy) String() string {
	switch s {
	case Join:
		return "join"
	case Batch:
		return "batch"
	}
	return "root"
}

// Order is a resolved sort key.
type Order struct {
	Field      *schema.Field
	Desc       bool
	NullsFirst bool
}

// Reverse flips the direction and the NULL placement.
func (o Order) Reverse() Order {
	return Order{Field: o.Field, Desc: !o.Desc, NullsFirst: !o.NullsFirst}
}

// Fetch is one level of an execution plan.
type Fetch struct {
	Model    *schema.Model
	Strategy Strategy
	// Relation leads from the parent fetch to this one; nil at the root.
	Relation *schema.Relation
	Alias    string

	// Columns are every scalar fetched, in model order; Output names those returned.
	Columns []*schema.Field
	Output  []string

	Where    query.Filter
	OrderBy  []Order
	Cursor   query.UniqueWhere
	Skip     *int
	Take     *int
	Distinct []*schema.Field

	Joins   []*Fetch
	Batches []*Fetch
}

// Name is the key the fetch's records are attached under in the parent.
func (f *Fetch) Name() string {
	if f.Relation == nil {
		return f.Model.Name
	}
	return f.Relation.Name
}

// Outputs reports whether field is returned to the caller.
func (f *Fetch) Outputs(field string) bool {
	for _, o := range f.Output {
		if o == field {
			return true
		}
	}
	return false
}

// Backwards reports whether the fetch pages backwards from its cursor.
func (f *Fetch) Backwards() bool {
	return f.Take != nil && *f.Take < 0
}

// Paginated reports whether the fetch applies skip, take or a cursor.
func (f *Fetch) Paginated() bool {
	return f.Skip != nil || f.Take != nil || f.Cursor != nil
}

// Slot is one column of a fetch statement's result.
type Slot struct {
	Fetch *Fetch
	Field *schema.Field
}

// ColumnAlias is the result alias of field within f's statement.
func ColumnAlias(f *Fetch, field *schema.Field) string {
	return f.Alias + "__" + field.Column
}

// Layout lists the columns of the statement rooted at f: its own columns,
// then each joined fetch depth first.
func (f *Fetch) Layout() []Slot {
	var slots []Slot
	var walk func(*Fetch)
	walk = func(x *Fetch) {
		for _, c := range x.Columns {
			slots = append(slots, Slot{Fetch: x, Field: c})
		}
		for _, j := range x.Joins {
			walk(j)
		}
	}
	walk(f)
	return slots
}

// Explain renders the plan as indented text, one fetch per line.
func (f *Fetch) Explain() string {
	var sb strings.Builder
	f.explain(&sb, 0)
	return sb.String()
}

func (f *Fetch) explain(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	if f.Relation != nil {
		fmt.Fprintf(sb, "%s %s (%s) ", f.Strategy, f.Relation.Name, f.Relation.Cardinality)
	} else {
		sb.WriteString("root ")
	}
	fmt.Fprintf(sb, "%s AS %s", f.Model.Name, f.Alias)

	cols := make([]string, 0, len(f.Columns))
	for _, c := range f.Columns {
		if f.Outputs(c.Name) {
			cols = append(cols, c.Name)
		} else {
			cols = append(cols, c.Name+"*")
		}
	}
	fmt.Fprintf(sb, " columns=[%s]", strings.Join(cols, " "))

	if f.Relation != nil {
		keys := make([]string, 0, len(f.Relation.TargetKeys()))
		for i, k := range f.Relation.TargetKeys() {
			keys = append(keys, k.Name+"="+f.Relation.LocalKeys()[i].Name)
		}
		fmt.Fprintf(sb, " on=[%s]", strings.Join(keys, " "))
	}
	if len(f.OrderBy) > 0 {
		terms := make([]string, 0, len(f.OrderBy))
		for _, o := range f.OrderBy {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			terms = append(terms, o.Field.Name+":"+dir)
		}
		fmt.Fprintf(sb, " order=[%s]", strings.Join(terms, " "))
	}
	if f.Skip != nil {
		fmt.Fprintf(sb, " skip=%d", *f.Skip)
	}
	if f.Take != nil {
		fmt.Fprintf(sb, " take=%d", *f.Take)
	}
	if f.Cursor != nil {
		sb.WriteString(" cursor")
	}
	if f.Where != nil {
		sb.WriteString(" filtered")
	}
	sb.WriteByte('\n')

	for _, j := range f.Joins {
		j.explain(sb, depth+1)
	}
	for _, b := range f.Batches {
		b.explain(sb, depth+1)
	}
}
