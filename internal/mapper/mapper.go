// Package mapper turns flat result rows into nested records.
package mapper

import (
	"fmt"

	"github.com/satishbabariya/prisma-engine/internal/planner"
	"github.com/satishbabariya/prisma-engine/internal/scalar"
	"github.com/satishbabariya/prisma-engine/query"
)

// Rows is the part of *sql.Rows the mapper reads.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// Scan reads every row of a fetch statement. Each record holds all fetched
// columns of f, hidden ones included, and the joined to-one records under
// their relation names (nil when the join found no row).
func Scan(rows Rows, f *planner.Fetch) ([]query.Record, error) {
	layout := f.Layout()
	var out []query.Record
	for rows.Next() {
		raw := make([]any, len(layout))
		dest := make([]any, len(layout))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec, err := assemble(f, layout, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func assemble(f *planner.Fetch, layout []planner.Slot, raw []any) (query.Record, error) {
	recs := make(map[*planner.Fetch]query.Record)
	for i, slot := range layout {
		v, err := scalar.Decode(slot.Field.Type, raw[i])
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s.%s: %w", slot.Fetch.Model.Name, slot.Field.Name, err)
		}
		rec := recs[slot.Fetch]
		if rec == nil {
			rec = make(query.Record, len(slot.Fetch.Columns))
			recs[slot.Fetch] = rec
		}
		rec[slot.Field.Name] = v
	}
	var link func(*planner.Fetch)
	link = func(x *planner.Fetch) {
		for _, j := range x.Joins {
			child := recs[j]
			if absent(j, child) {
				recs[x][j.Name()] = nil
				continue
			}
			recs[x][j.Name()] = child
			link(j)
		}
	}
	link(f)
	return recs[f], nil
}

// absent reports whether a LEFT JOIN found no row: the primary key is never
// NULL in a stored row.
func absent(f *planner.Fetch, rec query.Record) bool {
	for _, pk := range f.Model.PrimaryKeyFields() {
		if rec[pk.Name] != nil {
			return false
		}
	}
	return true
}

// Key returns the values of fields in rec, in order.
func Key(rec query.Record, names []string) []any {
	key := make([]any, len(names))
	for i, n := range names {
		key[i] = rec[n]
	}
	return key
}

// Finalize strips the columns the caller did not ask for from records
// shaped for f, recursively. To-many relations always come back as a
// (possibly empty) slice.
func Finalize(f *planner.Fetch, recs []query.Record) []query.Record {
	out := make([]query.Record, len(recs))
	for i, rec := range recs {
		out[i] = finalize(f, rec)
	}
	return out
}

func finalize(f *planner.Fetch, rec query.Record) query.Record {
	out := make(query.Record, len(f.Output)+len(f.Joins)+len(f.Batches))
	for _, name := range f.Output {
		out[name] = rec[name]
	}
	for _, j := range f.Joins {
		child, _ := rec[j.Name()].(query.Record)
		if child == nil {
			out[j.Name()] = nil
			continue
		}
		out[j.Name()] = finalize(j, child)
	}
	for _, b := range f.Batches {
		children, _ := rec[b.Name()].([]query.Record)
		out[b.Name()] = Finalize(b, children)
	}
	return out
}
