package mutation

import (
	"context"
	"fmt"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/internal/compiler"
	"github.com/satishbabariya/prisma-engine/internal/executor"
	"github.com/satishbabariya/prisma-engine/internal/planner"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/schema"
)

// linkParent resolves the record an owning to-one write points at and
// returns the values for the relation's foreign key fields. A disconnect
// returns NULLs.
func (e *Engine) linkParent(ctx context.Context, s executor.Session, rw relationWrite) ([]any, error) {
	r, w := rw.rel, rw.write
	target := r.TargetModel()
	switch {
	case len(w.Create) == 1:
		return e.createParent(ctx, s, r, w.Create[0])
	case len(w.Connect) == 1:
		keys, found, err := e.findKeys(ctx, s, target, w.Connect[0], r.TargetKeys())
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, &errs.RelatedRecordNotFoundError{Model: r.Model().Name, Relation: r.Name, Target: target.Name}
		}
		return keys, nil
	case len(w.ConnectOrCreate) == 1:
		c := w.ConnectOrCreate[0]
		keys, found, err := e.findKeys(ctx, s, target, c.Where, r.TargetKeys())
		if err != nil || found {
			return keys, err
		}
		return e.createParent(ctx, s, r, c.Create)
	case w.DisconnectCurrent:
		return make([]any, len(r.LocalKeys())), nil
	}
	return nil, errs.Mismatch(r.Model().Name, r.Name, "relation write has nothing to do")
}

func (e *Engine) createParent(ctx context.Context, s executor.Session, r *schema.Relation, data query.Data) ([]any, error) {
	target := r.TargetModel()
	p, err := parse(target, data, false, r.Opposite())
	if err != nil {
		return nil, err
	}
	pk, err := e.createRecord(ctx, s, p, nil)
	if err != nil {
		return nil, err
	}
	if sameFields(r.TargetKeys(), target.PrimaryKeyFields()) {
		return pk, nil
	}
	rec, err := e.readScalars(ctx, s, target, pk)
	if err != nil {
		return nil, err
	}
	return keyOf(rec, r.TargetKeys()), nil
}

// findKeys reads the values of fields from the record identified by where.
func (e *Engine) findKeys(ctx context.Context, s executor.Session, m *schema.Model, where query.UniqueWhere, fields []*schema.Field) ([]any, bool, error) {
	rec, err := e.exec.FindUnique(ctx, s, m, query.FindUniqueArgs{
		Where:     where,
		Selection: query.Selection{Select: fieldNames(fields)},
	})
	if err != nil || rec == nil {
		return nil, false, err
	}
	return keyOf(rec, fields), true, nil
}

// linkChildren runs a nested write on the inverse side of a relation: the
// target records hold the foreign key to self.
func (e *Engine) linkChildren(ctx context.Context, s executor.Session, rw relationWrite, self query.Record, updating bool) error {
	r, w := rw.rel, rw.write
	target := r.TargetModel()
	fks := r.TargetKeys()
	local := keyOf(self, r.LocalKeys())
	if hasNil(local) {
		return errs.Mismatch(r.Model().Name, r.Name, "record has no key to link %s records to", target.Name)
	}
	link := make(map[string]any, len(fks))
	linked := make(query.And, len(fks))
	for i, fk := range fks {
		link[fk.Name] = local[i]
		linked[i] = query.Eq(fk.Name, local[i])
	}

	if w.DisconnectCurrent || len(w.Disconnect) > 0 {
		if !nullable(fks) {
			return &errs.RelationViolationError{Model: r.Model().Name, Relation: r.Name, Target: target.Name}
		}
		if w.DisconnectCurrent {
			if _, err := e.setKeys(ctx, s, target, fks, nil, linked); err != nil {
				return err
			}
		}
		for _, where := range w.Disconnect {
			filter, err := planner.UniqueFilter(target, where)
			if err != nil {
				return err
			}
			if _, err := e.setKeys(ctx, s, target, fks, nil, query.And{filter, linked}); err != nil {
				return err
			}
		}
	}

	for _, data := range w.Create {
		if err := e.createChild(ctx, s, r, data, link); err != nil {
			return err
		}
	}
	for _, where := range w.Connect {
		n, err := e.connectChild(ctx, s, r, where, local, linked, updating)
		if err != nil {
			return err
		}
		if n == 0 {
			return &errs.RelatedRecordNotFoundError{Model: r.Model().Name, Relation: r.Name, Target: target.Name}
		}
	}
	for _, c := range w.ConnectOrCreate {
		n, err := e.connectChild(ctx, s, r, c.Where, local, linked, updating)
		if err != nil {
			return err
		}
		if n == 0 {
			if err := e.createChild(ctx, s, r, c.Create, link); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) createChild(ctx context.Context, s executor.Session, r *schema.Relation, data query.Data, link map[string]any) error {
	p, err := parse(r.TargetModel(), data, false, r.Opposite())
	if err != nil {
		return err
	}
	_, err = e.createRecord(ctx, s, p, link)
	return err
}

// connectChild points the record identified by where at local and returns
// the number of records changed. A to-one relation first releases the
// record currently linked when updating.
func (e *Engine) connectChild(ctx context.Context, s executor.Session, r *schema.Relation, where query.UniqueWhere, local []any, linked query.Filter, updating bool) (int64, error) {
	target := r.TargetModel()
	fks := r.TargetKeys()
	filter, err := planner.UniqueFilter(target, where)
	if err != nil {
		return 0, err
	}
	if updating && !r.IsList() && nullable(fks) {
		if _, err := e.setKeys(ctx, s, target, fks, nil, query.And{linked, query.Not{Filter: filter}}); err != nil {
			return 0, err
		}
	}
	return e.setKeys(ctx, s, target, fks, local, filter)
}

// setKeys updates the foreign key fields of the records of m matching where;
// nil values clear them.
func (e *Engine) setKeys(ctx context.Context, s executor.Session, m *schema.Model, fields []*schema.Field, values []any, where query.Filter) (int64, error) {
	sets := make([]compiler.Assignment, len(fields))
	for i, fd := range fields {
		var v any
		if values != nil {
			v = values[i]
		}
		sets[i] = compiler.Assignment{Field: fd, Op: query.Set, Value: v}
	}
	st, err := e.compiler.Update(m, sets, where)
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

func nullable(fields []*schema.Field) bool {
	for _, f := range fields {
		if !f.Nullable {
			return false
		}
	}
	return true
}

func sameFields(a, b []*schema.Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
