package mutation

import (
	"context"
	"fmt"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/internal/compiler"
	"github.com/satishbabariya/prisma-engine/internal/dberr"
	"github.com/satishbabariya/prisma-engine/internal/executor"
	"github.com/satishbabariya/prisma-engine/internal/scalar"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/schema"
)

// maxArgs bounds the bind arguments of one multi-row INSERT; it stays
// below the smallest limit of the supported stores.
const maxArgs = 30000

// Create inserts one record with its nested writes and returns it shaped
// by args.Selection.
func (e *Engine) Create(ctx context.Context, s executor.Session, m *schema.Model, args query.CreateArgs) (query.Record, error) {
	op := e.begin(s, m.Name, "create")
	p, err := parse(m, args.Data, false, nil)
	if err != nil {
		return nil, op.finish(err)
	}
	op.advance(Validated)

	var rec query.Record
	run := func(s executor.Session) error {
		pk, err := e.createRecord(ctx, s, p, nil)
		if err != nil {
			return err
		}
		op.advance(Executed)
		rec, err = e.readBack(ctx, s, m, pk, args.Selection, "create")
		return err
	}
	if p.nested() {
		err = e.atomic(ctx, s, run)
	} else {
		err = run(s)
	}
	return rec, op.finish(err)
}

// createRecord inserts the record described by p and runs its nested
// writes. link carries the foreign key set by an enclosing write. It returns
// the new record's primary key.
func (e *Engine) createRecord(ctx context.Context, s executor.Session, p *payload, link map[string]any) ([]any, error) {
	m := p.model
	owned := make(map[string]any, len(link))
	for k, v := range link {
		owned[k] = v
	}
	// parents first, so the foreign keys exist before the insert
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

	row, err := e.createRow(p, owned)
	if err != nil {
		return nil, err
	}
	pk, err := e.insertOne(ctx, s, m, row)
	if err != nil {
		return nil, err
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
		if err := e.linkChildren(ctx, s, rw, self, false); err != nil {
			return nil, err
		}
	}
	return pk, nil
}

func hasInverse(p *payload) bool {
	for _, rw := range p.relations {
		if !rw.rel.IsOwning() {
			return true
		}
	}
	return false
}

// insertOne inserts a single row and returns its primary key.
func (e *Engine) insertOne(ctx context.Context, s executor.Session, m *schema.Model, row map[string]any) ([]any, error) {
	fields, values := columns(m, row)
	pkFields := m.PrimaryKeyFields()
	opts := compiler.InsertOptions{Returning: pkFields}
	st, err := e.compiler.Insert(m, fields, [][]any{values}, opts)
	if err != nil {
		return nil, err
	}
	if e.dialect.SupportsReturning() {
		keys, err := e.returnedKeys(ctx, s, m, st)
		if err != nil {
			return nil, err
		}
		if len(keys) != 1 {
			return nil, fmt.Errorf("mutation: insert into %s returned %d rows", m.Name, len(keys))
		}
		return keys[0], nil
	}
	res, err := e.exec.Exec(ctx, s, m, st)
	if err != nil {
		return nil, err
	}
	return insertedKey(m, row, res.LastInsertId)
}

// insertedKey derives the primary key of a row inserted without RETURNING:
// from the row itself, or from the store's generated id.
func insertedKey(m *schema.Model, row map[string]any, lastID func() (int64, error)) ([]any, error) {
	pkFields := m.PrimaryKeyFields()
	pk := keyOf(row, pkFields)
	if !hasNil(pk) {
		return pk, nil
	}
	if len(pkFields) != 1 || pkFields[0].Default == nil || pkFields[0].Default.Kind != schema.DefaultAutoincrement {
		return nil, errs.Mismatch(m.Name, pkFields[0].Name, "primary key has no value and is not generated by the store")
	}
	id, err := lastID()
	if err != nil {
		return nil, fmt.Errorf("mutation: failed to read the id of the new %s: %w", m.Name, err)
	}
	return []any{id}, nil
}

// returnedKeys runs an INSERT ... RETURNING pk and decodes the keys.
func (e *Engine) returnedKeys(ctx context.Context, s executor.Session, m *schema.Model, st compiler.Statement) ([][]any, error) {
	rows, err := e.exec.Query(ctx, s, m, st)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	pkFields := m.PrimaryKeyFields()
	var keys [][]any
	for rows.Next() {
		raw := make([]any, len(pkFields))
		dest := make([]any, len(raw))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, dberr.Translate(m, err)
		}
		key := make([]any, len(raw))
		for i, fd := range pkFields {
			v, err := scalar.Decode(fd.Type, raw[i])
			if err != nil {
				return nil, err
			}
			key[i] = v
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, dberr.Translate(m, err)
	}
	return keys, nil
}

// readScalars reads every scalar field of the record with primary key pk.
func (e *Engine) readScalars(ctx context.Context, s executor.Session, m *schema.Model, pk []any) (query.Record, error) {
	recs, err := e.exec.FindByKeys(ctx, s, m, [][]any{pk}, query.Selection{})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, &errs.RecordNotFoundError{Model: m.Name, Operation: "read back"}
	}
	return recs[0], nil
}

// readBack returns the written record shaped by sel.
func (e *Engine) readBack(ctx context.Context, s executor.Session, m *schema.Model, pk []any, sel query.Selection, op string) (query.Record, error) {
	recs, err := e.exec.FindByKeys(ctx, s, m, [][]any{pk}, sel)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, &errs.RecordNotFoundError{Model: m.Name, Operation: op}
	}
	return recs[0], nil
}

// CreateMany inserts every record of args.Data in one transaction and
// returns the number inserted. With SkipDuplicates rows colliding with a
// unique key are skipped and not counted.
func (e *Engine) CreateMany(ctx context.Context, s executor.Session, m *schema.Model, args query.CreateManyArgs) (query.BatchPayload, error) {
	op := e.begin(s, m.Name, "createMany")
	rows, err := e.manyRows(m, args.Data)
	if err != nil {
		return query.BatchPayload{}, op.finish(err)
	}
	op.advance(Validated)
	if len(rows) == 0 {
		return query.BatchPayload{}, op.finish(nil)
	}

	var total int64
	err = e.atomic(ctx, s, func(s executor.Session) error {
		for _, group := range shapes(m, rows) {
			for _, chunk := range chunks(group.rows, len(group.fields)) {
				st, err := e.compiler.Insert(m, group.fields, chunk, compiler.InsertOptions{SkipDuplicates: args.SkipDuplicates})
				if err != nil {
					return err
				}
				res, err := e.exec.Exec(ctx, s, m, st)
				if err != nil {
					return err
				}
				n, err := res.RowsAffected()
				if err != nil {
					return fmt.Errorf("failed to read affected rows: %w", err)
				}
				total += n
			}
		}
		op.advance(Executed)
		return nil
	})
	if err != nil {
		return query.BatchPayload{}, op.finish(err)
	}
	return query.BatchPayload{Count: total}, op.finish(nil)
}

// CreateManyAndReturn inserts like CreateMany and returns the inserted
// records shaped by args.Selection, in insertion order.
func (e *Engine) CreateManyAndReturn(ctx context.Context, s executor.Session, m *schema.Model, args query.CreateManyArgs) ([]query.Record, error) {
	op := e.begin(s, m.Name, "createManyAndReturn")
	rows, err := e.manyRows(m, args.Data)
	if err != nil {
		return nil, op.finish(err)
	}
	op.advance(Validated)
	if len(rows) == 0 {
		return []query.Record{}, op.finish(nil)
	}

	var out []query.Record
	err = e.atomic(ctx, s, func(s executor.Session) error {
		var keys [][]any
		if e.dialect.SupportsReturning() {
			for _, group := range shapes(m, rows) {
				for _, chunk := range chunks(group.rows, len(group.fields)) {
					st, err := e.compiler.Insert(m, group.fields, chunk, compiler.InsertOptions{
						SkipDuplicates: args.SkipDuplicates,
						Returning:      m.PrimaryKeyFields(),
					})
					if err != nil {
						return err
					}
					k, err := e.returnedKeys(ctx, s, m, st)
					if err != nil {
						return err
					}
					keys = append(keys, k...)
				}
			}
		} else {
			// one row per statement so every generated id can be read back
			for _, row := range rows {
				fields, values := columns(m, row)
				st, err := e.compiler.Insert(m, fields, [][]any{values}, compiler.InsertOptions{SkipDuplicates: args.SkipDuplicates})
				if err != nil {
					return err
				}
				res, err := e.exec.Exec(ctx, s, m, st)
				if err != nil {
					return err
				}
				if n, err := res.RowsAffected(); err == nil && n == 0 {
					continue
				}
				k, err := insertedKey(m, row, res.LastInsertId)
				if err != nil {
					return err
				}
				keys = append(keys, k)
			}
		}
		op.advance(Executed)
		var err error
		out, err = e.exec.FindByKeys(ctx, s, m, keys, args.Selection)
		return err
	})
	if err != nil {
		return nil, op.finish(err)
	}
	return out, op.finish(nil)
}

// manyRows validates the payloads of a batch create. Nested writes are not
// allowed in batches.
func (e *Engine) manyRows(m *schema.Model, data []query.Data) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(data))
	for _, d := range data {
		p, err := parse(m, d, false, nil)
		if err != nil {
			return nil, err
		}
		if p.nested() {
			return nil, errs.Mismatch(m.Name, p.relations[0].rel.Name, "batch creates do not take nested writes")
		}
		row, err := e.createRow(p, nil)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// shape is a run of rows setting the same fields.
type shape struct {
	fields []*schema.Field
	rows   [][]any
}

// shapes groups rows by the set of fields they set, keeping the order in
// which each shape first appears.
func shapes(m *schema.Model, rows []map[string]any) []*shape {
	var out []*shape
	index := make(map[string]*shape)
	for _, row := range rows {
		fields, values := columns(m, row)
		id := fmt.Sprint(fieldNames(fields))
		sh := index[id]
		if sh == nil {
			sh = &shape{fields: fields}
			index[id] = sh
			out = append(out, sh)
		}
		sh.rows = append(sh.rows, values)
	}
	return out
}

// chunks splits rows so no statement exceeds maxArgs bind arguments. Rows
// without fields insert one per statement.
func chunks(rows [][]any, width int) [][][]any {
	size := 1
	if width > 0 {
		size = max(1, maxArgs/width)
	}
	var out [][][]any
	for start := 0; start < len(rows); start += size {
		out = append(out, rows[start:min(start+size, len(rows))])
	}
	return out
}
