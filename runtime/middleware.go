package runtime

import (
	"context"
	"log/slog"
	"time"
)

// QueryInfo describes an operation passing through the middleware chain.
type QueryInfo struct {
	// Model is the model being queried.
	Model string

	// Operation is the operation name (findMany, create, ...).
	Operation string

	// Args are the operation's arguments, e.g. query.FindManyArgs.
	Args any

	// InTransaction reports whether the operation runs inside a transaction.
	InTransaction bool

	// Timestamp is when the operation entered the chain.
	Timestamp time.Time
}

// QueryResult is the outcome of an operation.
type QueryResult struct {
	// Data is the operation's result: a query.Record, []query.Record,
	// query.BatchPayload, query.AggregateResult or int64.
	Data any

	// Error is any error that occurred.
	Error error

	// Duration is how long the operation took.
	Duration time.Duration
}

// Next continues the middleware chain.
type Next func(ctx context.Context, info QueryInfo) QueryResult

// Middleware intercepts operations. It may change the context or the
// arguments, short-circuit, or observe the result.
type Middleware func(ctx context.Context, info QueryInfo, next Next) QueryResult

// MiddlewareChain runs middleware in registration order around a handler.
type MiddlewareChain struct {
	middlewares []Middleware
}

// NewMiddlewareChain creates an empty chain.
func NewMiddlewareChain(mws ...Middleware) *MiddlewareChain {
	return &MiddlewareChain{middlewares: append([]Middleware(nil), mws...)}
}

// Use adds middleware to the end of the chain.
func (mc *MiddlewareChain) Use(mw ...Middleware) {
	mc.middlewares = append(mc.middlewares, mw...)
}

// Len returns the number of middleware in the chain.
func (mc *MiddlewareChain) Len() int { return len(mc.middlewares) }

// Execute runs the chain and the final handler.
func (mc *MiddlewareChain) Execute(ctx context.Context, info QueryInfo, handler Next) QueryResult {
	info.Timestamp = time.Now()
	final := func(ctx context.Context, info QueryInfo) QueryResult {
		result := handler(ctx, info)
		result.Duration = time.Since(info.Timestamp)
		return result
	}
	if len(mc.middlewares) == 0 {
		return final(ctx, info)
	}

	var call func(i int) Next
	call = func(i int) Next {
		if i == len(mc.middlewares) {
			return final
		}
		return func(ctx context.Context, info QueryInfo) QueryResult {
			return mc.middlewares[i](ctx, info, call(i+1))
		}
	}
	return call(0)(ctx, info)
}

// LoggingMiddleware logs every operation: completions at debug level and
// failures at error level.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(ctx context.Context, info QueryInfo, next Next) QueryResult {
		result := next(ctx, info)
		if result.Error != nil {
			logger.ErrorContext(ctx, "operation failed",
				"model", info.Model,
				"operation", info.Operation,
				"duration", result.Duration,
				"error", result.Error,
			)
			return result
		}
		logger.DebugContext(ctx, "operation completed",
			"model", info.Model,
			"operation", info.Operation,
			"duration", result.Duration,
		)
		return result
	}
}

// MetricsRecorder records operation metrics.
type MetricsRecorder interface {
	RecordQuery(model, operation string, duration time.Duration, err error)
}

// MetricsMiddleware reports every operation to recorder.
func MetricsMiddleware(recorder MetricsRecorder) Middleware {
	return func(ctx context.Context, info QueryInfo, next Next) QueryResult {
		result := next(ctx, info)
		recorder.RecordQuery(info.Model, info.Operation, result.Duration, result.Error)
		return result
	}
}

// TimeoutMiddleware bounds every operation outside a transaction by
// timeout. Operations inside a transaction are bounded by its own timeout.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(ctx context.Context, info QueryInfo, next Next) QueryResult {
		if info.InTransaction {
			return next(ctx, info)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return next(ctx, info)
	}
}
