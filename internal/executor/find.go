package executor

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/satishbabariya/prisma-engine/internal/compiler"
	"github.com/satishbabariya/prisma-engine/internal/dberr"
	"github.com/satishbabariya/prisma-engine/internal/mapper"
	"github.com/satishbabariya/prisma-engine/internal/planner"
	"github.com/satishbabariya/prisma-engine/internal/scalar"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/schema"
)

// FindMany returns every record matching args, shaped by its selection.
func (e *Executor) FindMany(ctx context.Context, s Session, m *schema.Model, args query.FindManyArgs) ([]query.Record, error) {
	f, err := e.plan(m, "findMany", args, func() (*planner.Fetch, error) {
		return e.planner.Find(m, args)
	})
	if err != nil {
		return nil, err
	}
	recs, err := e.Fetch(ctx, s, f)
	if err != nil {
		return nil, err
	}
	return mapper.Finalize(f, recs), nil
}

// FindFirst returns the first record matching args, or nil.
func (e *Executor) FindFirst(ctx context.Context, s Session, m *schema.Model, args query.FindManyArgs) (query.Record, error) {
	if args.Take == nil {
		args.Take = query.Int(1)
	} else if *args.Take > 1 || *args.Take < -1 {
		args.Take = query.Int(sign(*args.Take))
	}
	recs, err := e.FindMany(ctx, s, m, args)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// FindUnique returns the record identified by a unique selector, or nil.
func (e *Executor) FindUnique(ctx context.Context, s Session, m *schema.Model, args query.FindUniqueArgs) (query.Record, error) {
	f, err := e.plan(m, "findUnique", args, func() (*planner.Fetch, error) {
		return e.planner.Unique(m, args.Where, args.Selection)
	})
	if err != nil {
		return nil, err
	}
	recs, err := e.Fetch(ctx, s, f)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return mapper.Finalize(f, recs[:1])[0], nil
}

// FindByKeys reads the records whose primary keys are listed, in the order
// of keys, shaped by sel. Missing keys are skipped.
func (e *Executor) FindByKeys(ctx context.Context, s Session, m *schema.Model, keys [][]any, sel query.Selection) ([]query.Record, error) {
	if len(keys) == 0 {
		return []query.Record{}, nil
	}
	pk := m.PrimaryKeyFields()
	f, err := e.planner.Find(m, query.FindManyArgs{Where: compiler.KeyFilter(pk, keys), Selection: sel})
	if err != nil {
		return nil, err
	}
	recs, err := e.Fetch(ctx, s, f)
	if err != nil {
		return nil, err
	}
	names := fieldNames(pk)
	byKey := make(map[string]query.Record, len(recs))
	for _, rec := range recs {
		byKey[scalar.Key(mapper.Key(rec, names)...)] = rec
	}
	ordered := make([]query.Record, 0, len(keys))
	for _, k := range keys {
		if rec, ok := byKey[scalar.Key(k...)]; ok {
			ordered = append(ordered, rec)
		}
	}
	return mapper.Finalize(f, ordered), nil
}

// Lock reads the record identified by where and locks it for the rest of
// the transaction where the store supports row locks. It returns nil when
// the record does not exist.
func (e *Executor) Lock(ctx context.Context, s Session, m *schema.Model, where query.UniqueWhere) (query.Record, error) {
	f, err := e.planner.Unique(m, where, query.Selection{})
	if err != nil {
		return nil, err
	}
	st, err := e.compiler.Select(f, compiler.SelectOptions{ForUpdate: true})
	if err != nil {
		return nil, err
	}
	recs, err := e.scan(ctx, s, f, st)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return mapper.Finalize(f, recs[:1])[0], nil
}

// Fetch runs a planned root fetch and loads its batched relations. Records
// keep their hidden columns; mapper.Finalize strips them.
func (e *Executor) Fetch(ctx context.Context, s Session, f *planner.Fetch) ([]query.Record, error) {
	opts, found, err := e.pageOptions(ctx, s, f)
	if err != nil {
		return nil, err
	}
	if !found {
		return []query.Record{}, nil
	}
	st, err := e.compiler.Select(f, opts)
	if err != nil {
		return nil, err
	}
	recs, err := e.scan(ctx, s, f, st)
	if err != nil {
		return nil, err
	}
	if len(f.Distinct) > 0 {
		recs = paginate(distinct(recs, f.Distinct), f.Skip, f.Take)
	}
	if f.Backwards() {
		reverse(recs)
	}
	if err := e.loadRelations(ctx, s, f, recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// pageOptions resolves the cursor and the page of a root fetch. It reports
// false when the cursor record does not exist, which yields an empty page.
func (e *Executor) pageOptions(ctx context.Context, s Session, f *planner.Fetch) (compiler.SelectOptions, bool, error) {
	opts := compiler.SelectOptions{Reverse: f.Backwards()}
	if f.Cursor != nil {
		values, found, err := e.cursorValues(ctx, s, f)
		if err != nil || !found {
			return opts, false, err
		}
		opts.After = e.compiler.After(f.Alias, f.OrderBy, values, f.Backwards())
	}
	// distinct pages are cut after deduplication
	if len(f.Distinct) == 0 {
		if f.Take != nil {
			n := uint64(abs(*f.Take))
			opts.Limit = &n
		}
		if f.Skip != nil && *f.Skip > 0 {
			n := uint64(*f.Skip)
			opts.Offset = &n
		}
	}
	return opts, true, nil
}

func (e *Executor) cursorValues(ctx context.Context, s Session, f *planner.Fetch) ([]any, bool, error) {
	st, err := e.compiler.CursorRow(f)
	if err != nil {
		return nil, false, err
	}
	rows, err := e.Query(ctx, s, f.Model, st)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, false, dberr.Translate(f.Model, rows.Err())
	}
	raw := make([]any, len(f.OrderBy))
	dest := make([]any, len(raw))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, false, dberr.Translate(f.Model, err)
	}
	values := make([]any, len(raw))
	for i, o := range f.OrderBy {
		v, err := scalar.Decode(o.Field.Type, raw[i])
		if err != nil {
			return nil, false, err
		}
		values[i] = v
	}
	return values, true, nil
}

func (e *Executor) scan(ctx context.Context, s Session, f *planner.Fetch, st compiler.Statement) ([]query.Record, error) {
	rows, err := e.Query(ctx, s, f.Model, st)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	recs, err := mapper.Scan(rows, f)
	if err != nil {
		return nil, dberr.Translate(f.Model, err)
	}
	return recs, nil
}

// batchJob loads one to-many relation for a set of parent records.
type batchJob struct {
	fetch   *planner.Fetch
	parents []query.Record
	groups  map[string][]query.Record
}

// loadRelations fetches the to-many relations of f and of its joined
// relations, and attaches them to recs. Sibling relations run concurrently
// when the session is a pool; inside a transaction they run in order on the
// transaction's connection.
func (e *Executor) loadRelations(ctx context.Context, s Session, f *planner.Fetch, recs []query.Record) error {
	var jobs []*batchJob
	var collect func(x *planner.Fetch, parents []query.Record)
	collect = func(x *planner.Fetch, parents []query.Record) {
		for _, b := range x.Batches {
			jobs = append(jobs, &batchJob{fetch: b, parents: parents})
		}
		for _, j := range x.Joins {
			var children []query.Record
			for _, p := range parents {
				if child, _ := p[j.Name()].(query.Record); child != nil {
					children = append(children, child)
				}
			}
			collect(j, children)
		}
	}
	collect(f, recs)
	if len(jobs) == 0 {
		return nil
	}

	if concurrent(s) && len(jobs) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for _, job := range jobs {
			job := job
			g.Go(func() error {
				groups, err := e.loadBatch(gctx, s, job.fetch, job.parents)
				job.groups = groups
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	} else {
		for _, job := range jobs {
			groups, err := e.loadBatch(ctx, s, job.fetch, job.parents)
			if err != nil {
				return err
			}
			job.groups = groups
		}
	}

	for _, job := range jobs {
		local := fieldNames(job.fetch.Relation.LocalKeys())
		for _, p := range job.parents {
			children := job.groups[scalar.Key(mapper.Key(p, local)...)]
			if children == nil {
				children = []query.Record{}
			}
			p[job.fetch.Name()] = children
		}
	}
	return nil
}

// loadBatch fetches the children of parents through b, grouped by join key
// and paginated per parent.
func (e *Executor) loadBatch(ctx context.Context, s Session, b *planner.Fetch, parents []query.Record) (map[string][]query.Record, error) {
	local := fieldNames(b.Relation.LocalKeys())
	target := fieldNames(b.Relation.TargetKeys())

	seen := make(map[string]bool, len(parents))
	var keys [][]any
	for _, p := range parents {
		k := mapper.Key(p, local)
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
	groups := make(map[string][]query.Record, len(keys))
	if len(keys) == 0 {
		return groups, nil
	}

	var order []string
	for start := 0; start < len(keys); start += e.batchSize {
		end := min(start+e.batchSize, len(keys))
		st, err := e.compiler.BatchSelect(b, keys[start:end])
		if err != nil {
			return nil, err
		}
		recs, err := e.scan(ctx, s, b, st)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			id := scalar.Key(mapper.Key(rec, target)...)
			if _, ok := groups[id]; !ok {
				order = append(order, id)
			}
			groups[id] = append(groups[id], rec)
		}
	}

	var kept []query.Record
	for _, id := range order {
		list := groups[id]
		if !compiler.Window(b) {
			if b.Cursor != nil {
				list = afterCursor(list, b.Cursor)
			}
			if len(b.Distinct) > 0 {
				list = distinct(list, b.Distinct)
			}
			list = paginate(list, b.Skip, b.Take)
		}
		if b.Backwards() {
			reverse(list)
		}
		groups[id] = list
		kept = append(kept, list...)
	}
	if err := e.loadRelations(ctx, s, b, kept); err != nil {
		return nil, err
	}
	return groups, nil
}

// afterCursor returns the records following the one matching cursor, or
// none when it is not in the list.
func afterCursor(list []query.Record, cursor query.UniqueWhere) []query.Record {
	for i, rec := range list {
		match := true
		for name, v := range cursor {
			if !scalar.Equal(rec[name], v) {
				match = false
				break
			}
		}
		if match {
			return list[i+1:]
		}
	}
	return nil
}

// distinct keeps the first record of each combination of fields.
func distinct(recs []query.Record, fields []*schema.Field) []query.Record {
	names := fieldNames(fields)
	seen := make(map[string]bool, len(recs))
	out := recs[:0:0]
	for _, rec := range recs {
		id := scalar.Key(mapper.Key(rec, names)...)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, rec)
	}
	return out
}

func paginate(recs []query.Record, skip, take *int) []query.Record {
	if skip != nil && *skip > 0 {
		if *skip >= len(recs) {
			return nil
		}
		recs = recs[*skip:]
	}
	if take != nil {
		if n := abs(*take); n < len(recs) {
			recs = recs[:n]
		}
	}
	return recs
}

func reverse(recs []query.Record) {
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
}

func fieldNames(fields []*schema.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

func hasNil(values []any) bool {
	for _, v := range values {
		if v == nil {
			return true
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	if n < 0 {
		return -1
	}
	return 1
}
