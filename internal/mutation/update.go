package mutation

import (
	"context"
	"fmt"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/internal/compiler"
	"github.com/satishbabariya/prisma-engine/internal/executor"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/schema"
)

// Update changes the record identified by args.Where and returns it shaped
// by args.Selection. A missing record fails with errs.RecordNotFoundError.
func (e *Engine) Update(ctx context.Context, s executor.Session, m *schema.Model, args query.UpdateArgs) (query.Record, error) {
	op := e.begin(s, m.Name, "update")
	p, err := parse(m, args.Data, true, nil)
	if err != nil {
		return nil, op.finish(err)
	}
	op.advance(Validated)

	var rec query.Record
	err = e.atomic(ctx, s, func(s executor.Session) error {
		current, err := e.exec.FindUnique(ctx, s, m, query.FindUniqueArgs{Where: args.Where})
		if err != nil {
			return err
		}
		if current == nil {
			return &errs.RecordNotFoundError{Model: m.Name, Operation: "update"}
		}
		pk, err := e.updateRecord(ctx, s, p, current)
		if err != nil {
			return err
		}
		op.advance(Executed)
		rec, err = e.readBack(ctx, s, m, pk, args.Selection, "update")
		return err
	})
	return rec, op.finish(err)
}

// updateRecord applies p to the stored record current and returns the
// record's primary key after the update.
func (e *Engine) updateRecord(ctx context.Context, s executor.Session, p *payload, current query.Record) ([]any, error) {
	m := p.model
	pkFields := m.PrimaryKeyFields()
	pk := keyOf(current, pkFields)

	owned := make(map[string]any)
	for _, rw := range p.relations {
		if !rw.rel.IsOwning() {
			continue
		}
		keys, err := e.linkParent(ctx, s, rw)
		if err != nil {
			return nil, err
		}
		for i, k := range rw.rel.LocalKeys() {
			owned[k.Name] = keys[i]
		}
	}
	for k, v := range owned {
		p.values[k] = v
	}

	if sets := e.assignments(p); len(sets) > 0 {
		st, err := e.compiler.Update(m, sets, compiler.KeyFilter(pkFields, [][]any{pk}))
		if err != nil {
			return nil, err
		}
		if _, err := e.exec.Exec(ctx, s, m, st); err != nil {
			return nil, err
		}
	}
	for i, fd := range pkFields {
		if v, ok := p.values[fd.Name]; ok {
			pk[i] = v
		}
	}

	if !hasInverse(p) {
		return pk, nil
	}
	self, err := e.readScalars(ctx, s, m, pk)
	if err != nil {
		return nil, err
	}
	for _, rw := range p.relations {
		if rw.rel.IsOwning() {
			continue
		}
		if err := e.linkChildren(ctx, s, rw, self, true); err != nil {
			return nil, err
		}
	}
	return pk, nil
}

// UpdateMany applies scalar changes to every record matching args.Where and
// returns the number of records matched.
func (e *Engine) UpdateMany(ctx context.Context, s executor.Session, m *schema.Model, args query.UpdateManyArgs) (query.BatchPayload, error) {
	op := e.begin(s, m.Name, "updateMany")
	sets, err := e.batchAssignments(m, args.Data, args.Where)
	if err != nil {
		return query.BatchPayload{}, op.finish(err)
	}
	op.advance(Validated)
	if len(sets) == 0 {
		return query.BatchPayload{}, op.finish(nil)
	}
	st, err := e.compiler.Update(m, sets, args.Where)
	if err != nil {
		return query.BatchPayload{}, op.finish(err)
	}
	res, err := e.exec.Exec(ctx, s, m, st)
	if err != nil {
		return query.BatchPayload{}, op.finish(err)
	}
	op.advance(Executed)
	n, err := res.RowsAffected()
	if err != nil {
		return query.BatchPayload{}, op.finish(fmt.Errorf("failed to read affected rows: %w", err))
	}
	return query.BatchPayload{Count: n}, op.finish(nil)
}

// UpdateManyAndReturn updates like UpdateMany and returns the updated
// records shaped by args.Selection.
func (e *Engine) UpdateManyAndReturn(ctx context.Context, s executor.Session, m *schema.Model, args query.UpdateManyArgs) ([]query.Record, error) {
	op := e.begin(s, m.Name, "updateManyAndReturn")
	sets, err := e.batchAssignments(m, args.Data, args.Where)
	if err != nil {
		return nil, op.finish(err)
	}
	op.advance(Validated)

	var out []query.Record
	err = e.atomic(ctx, s, func(s executor.Session) error {
		pkFields := m.PrimaryKeyFields()
		matched, err := e.exec.FindMany(ctx, s, m, query.FindManyArgs{
			Where:     args.Where,
			Selection: query.Selection{Select: fieldNames(pkFields)},
		})
		if err != nil {
			return err
		}
		keys := make([][]any, len(matched))
		for i, rec := range matched {
			keys[i] = keyOf(rec, pkFields)
		}
		if len(keys) == 0 {
			out = []query.Record{}
			return nil
		}
		if len(sets) > 0 {
			st, err := e.compiler.Update(m, sets, compiler.KeyFilter(pkFields, keys))
			if err != nil {
				return err
			}
			if _, err := e.exec.Exec(ctx, s, m, st); err != nil {
				return err
			}
		}
		for _, a := range sets {
			for i, fd := range pkFields {
				if a.Field == fd {
					for _, k := range keys {
						k[i] = a.Value
					}
				}
			}
		}
		op.advance(Executed)
		out, err = e.exec.FindByKeys(ctx, s, m, keys, args.Selection)
		return err
	})
	if err != nil {
		return nil, op.finish(err)
	}
	return out, op.finish(nil)
}

// batchAssignments validates the payload of a batch update. Nested writes
// are not allowed in batches.
func (e *Engine) batchAssignments(m *schema.Model, data query.Data, where query.Filter) ([]compiler.Assignment, error) {
	p, err := parse(m, data, true, nil)
	if err != nil {
		return nil, err
	}
	if p.nested() {
		return nil, errs.Mismatch(m.Name, p.relations[0].rel.Name, "batch updates do not take nested writes")
	}
	if where != nil {
		if err := e.compiler.ValidateFilter(m, where); err != nil {
			return nil, err
		}
	}
	return e.assignments(p), nil
}
