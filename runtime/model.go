package runtime

import (
	"context"
	"fmt"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/internal/executor"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/schema"
)

// ModelClient runs the operations of one model, either on the client's pool
// or inside a transaction.
type ModelClient struct {
	client *Client
	name   string
	model  *schema.Model
	tx     *Tx
}

// Name returns the model name.
func (mc *ModelClient) Name() string { return mc.name }

func (mc *ModelClient) session() (executor.Session, error) {
	if mc.tx != nil {
		return mc.tx.session()
	}
	return mc.client.pool.DB(), nil
}

// handler is the shape every engine operation shares.
type handler[A, R any] func(ctx context.Context, s executor.Session, m *schema.Model, args A) (R, error)

// run passes one operation through the middleware chain and the hooks.
func run[A, R any](ctx context.Context, mc *ModelClient, op string, k kind, args A, fn handler[A, R]) (R, error) {
	var zero R
	if mc.model == nil {
		return zero, errs.Mismatch(mc.name, "", "unknown model")
	}
	c := mc.client
	info := QueryInfo{Model: mc.name, Operation: op, Args: args, InTransaction: mc.tx != nil}
	res := c.chain.Execute(ctx, info, func(ctx context.Context, info QueryInfo) QueryResult {
		a, ok := info.Args.(A)
		if !ok {
			return QueryResult{Error: fmt.Errorf("runtime: %s.%s takes %T, got %T", mc.name, op, args, info.Args)}
		}
		s, err := mc.session()
		if err != nil {
			return QueryResult{Error: err}
		}
		before, after := k.hooks()
		hc := &HookContext{Context: ctx, Model: mc.name, Operation: op, Args: a}
		if err := c.hooks.Execute(hc, before); err != nil {
			return QueryResult{Error: err}
		}
		data, err := fn(ctx, s, mc.model, a)
		hc.Result, hc.Error = data, err
		if err := c.hooks.Execute(hc, after); err != nil {
			return QueryResult{Error: err}
		}
		return QueryResult{Data: data, Error: err}
	})
	if res.Error != nil {
		return zero, res.Error
	}
	if res.Data == nil {
		return zero, nil
	}
	r, ok := res.Data.(R)
	if !ok {
		return zero, fmt.Errorf("runtime: %s.%s returned %T, want %T", mc.name, op, res.Data, zero)
	}
	return r, nil
}

// orThrow turns a missing record into errs.RecordNotFoundError.
func orThrow[A any](op string, fn handler[A, query.Record]) handler[A, query.Record] {
	return func(ctx context.Context, s executor.Session, m *schema.Model, args A) (query.Record, error) {
		rec, err := fn(ctx, s, m, args)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, &errs.RecordNotFoundError{Model: m.Name, Operation: op}
		}
		return rec, nil
	}
}

// FindUnique returns the record identified by args.Where, or nil.
func (mc *ModelClient) FindUnique(ctx context.Context, args query.FindUniqueArgs) (query.Record, error) {
	return run(ctx, mc, "findUnique", readKind, args, mc.client.exec.FindUnique)
}

// FindUniqueOrThrow is FindUnique failing with errs.RecordNotFoundError
// instead of returning nil.
func (mc *ModelClient) FindUniqueOrThrow(ctx context.Context, args query.FindUniqueArgs) (query.Record, error) {
	return run(ctx, mc, "findUniqueOrThrow", readKind, args, orThrow("findUniqueOrThrow", mc.client.exec.FindUnique))
}

// FindFirst returns the first record matching args, or nil.
func (mc *ModelClient) FindFirst(ctx context.Context, args query.FindManyArgs) (query.Record, error) {
	return run(ctx, mc, "findFirst", readKind, args, mc.client.exec.FindFirst)
}

// FindFirstOrThrow is FindFirst failing with errs.RecordNotFoundError
// instead of returning nil.
func (mc *ModelClient) FindFirstOrThrow(ctx context.Context, args query.FindManyArgs) (query.Record, error) {
	return run(ctx, mc, "findFirstOrThrow", readKind, args, orThrow("findFirstOrThrow", mc.client.exec.FindFirst))
}

// FindMany returns the records matching args.
func (mc *ModelClient) FindMany(ctx context.Context, args query.FindManyArgs) ([]query.Record, error) {
	return run(ctx, mc, "findMany", readKind, args, mc.client.exec.FindMany)
}

// Create inserts a record with its nested writes and returns it.
func (mc *ModelClient) Create(ctx context.Context, args query.CreateArgs) (query.Record, error) {
	return run(ctx, mc, "create", writeKind, args, mc.client.engine.Create)
}

// CreateMany inserts records and returns how many were inserted.
func (mc *ModelClient) CreateMany(ctx context.Context, args query.CreateManyArgs) (query.BatchPayload, error) {
	return run(ctx, mc, "createMany", writeKind, args, mc.client.engine.CreateMany)
}

// CreateManyAndReturn inserts records and returns them.
func (mc *ModelClient) CreateManyAndReturn(ctx context.Context, args query.CreateManyArgs) ([]query.Record, error) {
	return run(ctx, mc, "createManyAndReturn", writeKind, args, mc.client.engine.CreateManyAndReturn)
}

// Update changes one record and returns it.
func (mc *ModelClient) Update(ctx context.Context, args query.UpdateArgs) (query.Record, error) {
	return run(ctx, mc, "update", writeKind, args, mc.client.engine.Update)
}

// UpdateMany changes every matching record and returns how many matched.
func (mc *ModelClient) UpdateMany(ctx context.Context, args query.UpdateManyArgs) (query.BatchPayload, error) {
	return run(ctx, mc, "updateMany", writeKind, args, mc.client.engine.UpdateMany)
}

// UpdateManyAndReturn changes every matching record and returns them.
func (mc *ModelClient) UpdateManyAndReturn(ctx context.Context, args query.UpdateManyArgs) ([]query.Record, error) {
	return run(ctx, mc, "updateManyAndReturn", writeKind, args, mc.client.engine.UpdateManyAndReturn)
}

// Upsert updates the record identified by args.Where or creates it.
func (mc *ModelClient) Upsert(ctx context.Context, args query.UpsertArgs) (query.Record, error) {
	return run(ctx, mc, "upsert", writeKind, args, mc.client.engine.Upsert)
}

// Delete removes one record and returns it.
func (mc *ModelClient) Delete(ctx context.Context, args query.DeleteArgs) (query.Record, error) {
	return run(ctx, mc, "delete", deleteKind, args, mc.client.engine.Delete)
}

// DeleteMany removes every matching record and returns how many were removed.
func (mc *ModelClient) DeleteMany(ctx context.Context, args query.DeleteManyArgs) (query.BatchPayload, error) {
	return run(ctx, mc, "deleteMany", deleteKind, args, mc.client.engine.DeleteMany)
}

// Count returns the number of matching records.
func (mc *ModelClient) Count(ctx context.Context, args query.CountArgs) (int64, error) {
	return run(ctx, mc, "count", readKind, args, mc.client.exec.Count)
}

// Aggregate computes aggregates over the matching records.
func (mc *ModelClient) Aggregate(ctx context.Context, args query.AggregateArgs) (query.AggregateResult, error) {
	return run(ctx, mc, "aggregate", readKind, args, mc.client.exec.Aggregate)
}

// GroupBy groups the matching records and computes aggregates per group.
func (mc *ModelClient) GroupBy(ctx context.Context, args query.GroupByArgs) ([]query.Record, error) {
	return run(ctx, mc, "groupBy", readKind, args, mc.client.exec.GroupBy)
}
