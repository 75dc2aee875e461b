package mutation

import (
	"context"
	"fmt"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/internal/compiler"
	"github.com/satishbabariya/prisma-engine/internal/executor"
	"github.com/satishbabariya/prisma-engine/internal/scalar"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/schema"
)

// Delete removes the record identified by args.Where and returns it as it
// was, shaped by args.Selection. A missing record fails with
// errs.RecordNotFoundError.
func (e *Engine) Delete(ctx context.Context, s executor.Session, m *schema.Model, args query.DeleteArgs) (query.Record, error) {
	op := e.begin(s, m.Name, "delete")
	var rec query.Record
	err := e.atomic(ctx, s, func(s executor.Session) error {
		var err error
		rec, err = e.exec.FindUnique(ctx, s, m, query.FindUniqueArgs{
			Where:     args.Where,
			Selection: withKeys(m, args.Selection),
		})
		if err != nil {
			return err
		}
		if rec == nil {
			return &errs.RecordNotFoundError{Model: m.Name, Operation: "delete"}
		}
		op.advance(Validated)
		pkFields := m.PrimaryKeyFields()
		if _, err := e.deleteWhere(ctx, s, m, compiler.KeyFilter(pkFields, [][]any{keyOf(rec, pkFields)}), newVisited()); err != nil {
			return err
		}
		op.advance(Executed)
		return nil
	})
	if err != nil {
		return nil, op.finish(err)
	}
	return trimKeys(m, args.Selection, rec), op.finish(nil)
}

// DeleteMany removes every record matching args.Where and returns how many
// were removed.
func (e *Engine) DeleteMany(ctx context.Context, s executor.Session, m *schema.Model, args query.DeleteManyArgs) (query.BatchPayload, error) {
	op := e.begin(s, m.Name, "deleteMany")
	if args.Where != nil {
		if err := e.compiler.ValidateFilter(m, args.Where); err != nil {
			return query.BatchPayload{}, op.finish(err)
		}
	}
	op.advance(Validated)
	var n int64
	run := func(s executor.Session) error {
		var err error
		n, err = e.deleteWhere(ctx, s, m, args.Where, newVisited())
		return err
	}
	var err error
	if emulated(m) {
		err = e.atomic(ctx, s, run)
	} else {
		err = run(s)
	}
	if err != nil {
		return query.BatchPayload{}, op.finish(err)
	}
	op.advance(Executed)
	return query.BatchPayload{Count: n}, op.finish(nil)
}

// visited tracks the records already removed by a cascade, so cycles end.
type visited map[string]bool

func newVisited() visited { return make(visited) }

// deleteWhere removes the records of m matching where after applying the
// referential actions of the relations pointing at m.
func (e *Engine) deleteWhere(ctx context.Context, s executor.Session, m *schema.Model, where query.Filter, seen visited) (int64, error) {
	if !emulated(m) {
		return e.deleteRows(ctx, s, m, where)
	}

	pkFields := m.PrimaryKeyFields()
	needed := append([]*schema.Field(nil), pkFields...)
	for _, r := range inbound(m) {
		needed = append(needed, r.LocalKeys()...)
	}
	recs, err := e.exec.FindMany(ctx, s, m, query.FindManyArgs{
		Where:     where,
		Selection: query.Selection{Select: uniqueNames(needed)},
	})
	if err != nil {
		return 0, err
	}
	var victims []query.Record
	for _, rec := range recs {
		id := m.Name + "\x00" + scalar.Key(keyOf(rec, pkFields)...)
		if seen[id] {
			continue
		}
		seen[id] = true
		victims = append(victims, rec)
	}
	if len(victims) == 0 {
		return 0, nil
	}

	rels := inbound(m)
	// every restriction is checked before anything changes
	for _, r := range rels {
		if r.Opposite().OnDelete != schema.Restrict {
			continue
		}
		children, err := e.children(ctx, s, r, victims, true)
		if err != nil {
			return 0, err
		}
		if children != nil {
			return 0, &errs.RelationViolationError{Model: m.Name, Relation: r.Name, Target: r.TargetModel().Name}
		}
	}
	for _, r := range rels {
		filter, ok := childFilter(r, victims)
		if !ok {
			continue
		}
		switch r.Opposite().OnDelete {
		case schema.Cascade:
			if _, err := e.deleteWhere(ctx, s, r.TargetModel(), filter, seen); err != nil {
				return 0, err
			}
		case schema.SetNull:
			fks := r.TargetKeys()
			if !nullable(fks) {
				return 0, &errs.RelationViolationError{Model: m.Name, Relation: r.Name, Target: r.TargetModel().Name}
			}
			if _, err := e.setKeys(ctx, s, r.TargetModel(), fks, nil, filter); err != nil {
				return 0, err
			}
		}
	}

	keys := make([][]any, len(victims))
	for i, rec := range victims {
		keys[i] = keyOf(rec, pkFields)
	}
	var total int64
	for _, chunk := range chunks(keys, len(pkFields)) {
		n, err := e.deleteRows(ctx, s, m, compiler.KeyFilter(pkFields, chunk))
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (e *Engine) deleteRows(ctx context.Context, s executor.Session, m *schema.Model, where query.Filter) (int64, error) {
	st, err := e.compiler.Delete(m, where)
	if err != nil {
		return 0, err
	}
	res, err := e.exec.Exec(ctx, s, m, st)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// children returns the records related to parents through r, or nil when
// there are none. first stops at the first match.
func (e *Engine) children(ctx context.Context, s executor.Session, r *schema.Relation, parents []query.Record, first bool) ([]query.Record, error) {
	filter, ok := childFilter(r, parents)
	if !ok {
		return nil, nil
	}
	args := query.FindManyArgs{
		Where:     filter,
		Selection: query.Selection{Select: fieldNames(r.TargetModel().PrimaryKeyFields())},
	}
	if first {
		args.Take = query.Int(1)
	}
	recs, err := e.exec.FindMany(ctx, s, r.TargetModel(), args)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs, nil
}

// childFilter matches the target records of r that reference one of parents.
func childFilter(r *schema.Relation, parents []query.Record) (query.Filter, bool) {
	seen := make(map[string]bool, len(parents))
	var keys [][]any
	for _, p := range parents {
		k := keyOf(p, r.LocalKeys())
		if hasNil(k) {
			continue
		}
		id := scalar.Key(k...)
		if seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, false
	}
	return compiler.KeyFilter(r.TargetKeys(), keys), true
}

// inbound lists the relations of m whose target holds a foreign key to m
// with an action the engine applies itself.
func inbound(m *schema.Model) []*schema.Relation {
	var out []*schema.Relation
	for _, r := range m.Relations {
		if r.IsOwning() || r.Opposite() == nil {
			continue
		}
		switch r.Opposite().OnDelete {
		case schema.Cascade, schema.SetNull, schema.Restrict:
			out = append(out, r)
		}
	}
	return out
}

// emulated reports whether deleting from m applies referential actions.
func emulated(m *schema.Model) bool {
	return len(inbound(m)) > 0
}

func uniqueNames(fields []*schema.Field) []string {
	seen := make(map[string]bool, len(fields))
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if !seen[f.Name] {
			seen[f.Name] = true
			names = append(names, f.Name)
		}
	}
	return names
}

// withKeys widens sel so the primary key is read; trimKeys drops it again.
func withKeys(m *schema.Model, sel query.Selection) query.Selection {
	if sel.Select == nil {
		sel.Omit = without(sel.Omit, fieldNames(m.PrimaryKeyFields()))
		return sel
	}
	sel.Select = uniqueNamesOf(append(append([]string(nil), sel.Select...), fieldNames(m.PrimaryKeyFields())...))
	return sel
}

func trimKeys(m *schema.Model, sel query.Selection, rec query.Record) query.Record {
	drop := make(map[string]bool)
	for _, pk := range m.PrimaryKeyFields() {
		drop[pk.Name] = true
	}
	if sel.Select != nil {
		for _, name := range sel.Select {
			delete(drop, name)
		}
	} else {
		for name := range drop {
			if !contains(sel.Omit, name) {
				delete(drop, name)
			}
		}
	}
	for name := range drop {
		delete(rec, name)
	}
	return rec
}

func without(names, drop []string) []string {
	var out []string
	for _, n := range names {
		if !contains(drop, n) {
			out = append(out, n)
		}
	}
	return out
}

func uniqueNamesOf(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
