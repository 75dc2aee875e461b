package mutation

import (
	"context"
	"errors"
	"sort"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/internal/executor"
	"github.com/satishbabariya/prisma-engine/internal/planner"
	"github.com/satishbabariya/prisma-engine/internal/scalar"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/schema"
)

// UpsertAttempts bounds the read-then-write rounds of an emulated upsert.
const UpsertAttempts = 3

// Upsert updates the record identified by args.Where, or creates it from
// args.Create when it does not exist, and returns it shaped by
// args.Selection.
//
// A single INSERT ... ON CONFLICT DO UPDATE is used when the store has one,
// neither payload nests writes, the selector covers exactly one unique
// constraint and the create payload carries the same values for it. Any
// other upsert locks and reads the record in a transaction, then updates or
// inserts; an insert that loses a race on the key is retried up to
// UpsertAttempts times before failing with errs.UpsertConflictError.
func (e *Engine) Upsert(ctx context.Context, s executor.Session, m *schema.Model, args query.UpsertArgs) (query.Record, error) {
	op := e.begin(s, m.Name, "upsert")
	where, err := planner.NormalizeUnique(m, args.Where)
	if err != nil {
		return nil, op.finish(err)
	}
	create, err := parse(m, args.Create, false, nil)
	if err != nil {
		return nil, op.finish(err)
	}
	update, err := parse(m, args.Update, true, nil)
	if err != nil {
		return nil, op.finish(err)
	}
	op.advance(Validated)

	if conflict, ok := e.nativeTarget(m, where, create, update); ok {
		rec, err := e.nativeUpsert(ctx, s, m, create, update, conflict, args.Selection)
		if err == nil {
			op.advance(Executed)
		}
		return rec, op.finish(err)
	}

	attempts := UpsertAttempts
	if !ownsTransaction(s) {
		// a failed statement may poison the caller's transaction
		attempts = 1
	}
	var last error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, op.finish(err)
		}
		var rec query.Record
		err := e.atomic(ctx, s, func(s executor.Session) error {
			var err error
			rec, err = e.upsertOnce(ctx, s, m, where, create, update, args.Selection)
			return err
		})
		if err == nil {
			op.advance(Executed)
			return rec, op.finish(nil)
		}
		if !errors.Is(err, errs.ErrUniqueConstraint) && !errors.Is(err, errs.ErrWriteConflict) {
			return nil, op.finish(err)
		}
		last = err
		e.logger.Debug("upsert lost a race", "model", m.Name, "attempt", i+1, "error", err)
	}
	return nil, op.finish(&errs.UpsertConflictError{Model: m.Name, Attempts: attempts, Cause: last})
}

func (e *Engine) upsertOnce(ctx context.Context, s executor.Session, m *schema.Model, where query.UniqueWhere, create, update *payload, sel query.Selection) (query.Record, error) {
	current, err := e.exec.Lock(ctx, s, m, where)
	if err != nil {
		return nil, err
	}
	var pk []any
	if current != nil {
		pk, err = e.updateRecord(ctx, s, update.clone(), current)
	} else {
		pk, err = e.createRecord(ctx, s, create.clone(), nil)
	}
	if err != nil {
		return nil, err
	}
	return e.readBack(ctx, s, m, pk, sel, "upsert")
}

// nativeTarget returns the conflict target of a single-statement upsert, or
// false when the upsert must be emulated.
func (e *Engine) nativeTarget(m *schema.Model, where query.UniqueWhere, create, update *payload) ([]*schema.Field, bool) {
	if !e.dialect.SupportsNativeUpsert() || create.nested() || update.nested() {
		return nil, false
	}
	names := make([]string, 0, len(where))
	for name := range where {
		names = append(names, name)
	}
	sort.Strings(names)
	u, ok := m.ConstraintCovering(names)
	if !ok {
		return nil, false
	}
	covering := 0
	for _, c := range m.Constraints() {
		if c.Covers(names) {
			covering++
		}
	}
	if covering != 1 {
		return nil, false
	}
	conflict := make([]*schema.Field, len(u.Fields))
	for i, name := range u.Fields {
		fd, _ := m.Field(name)
		v, set := create.values[name]
		if !set || !scalar.Equal(v, where[name]) {
			return nil, false
		}
		conflict[i] = fd
	}
	return conflict, true
}

func (e *Engine) nativeUpsert(ctx context.Context, s executor.Session, m *schema.Model, create, update *payload, conflict []*schema.Field, sel query.Selection) (query.Record, error) {
	row, err := e.createRow(create, nil)
	if err != nil {
		return nil, err
	}
	fields, values := columns(m, row)
	sets := e.assignments(update)
	st, err := e.compiler.Upsert(m, fields, values, conflict, sets, m.PrimaryKeyFields())
	if err != nil {
		return nil, err
	}
	keys, err := e.returnedKeys(ctx, s, m, st)
	if err != nil {
		return nil, err
	}
	if len(keys) != 1 {
		return nil, &errs.UpsertConflictError{Model: m.Name, Attempts: 1}
	}
	return e.readBack(ctx, s, m, keys[0], sel, "upsert")
}

// clone copies the mutable parts of p so a retried attempt starts afresh.
func (p *payload) clone() *payload {
	c := &payload{
		model:     p.model,
		values:    make(map[string]any, len(p.values)),
		atomics:   make(map[string]query.Atomic, len(p.atomics)),
		relations: p.relations,
	}
	for k, v := range p.values {
		c.values[k] = v
	}
	for k, v := range p.atomics {
		c.atomics[k] = v
	}
	return c
}
