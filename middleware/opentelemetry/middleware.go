// Package opentelemetry traces every operation as a span.
package opentelemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/runtime"
)

const instrumentationName = "github.com/satishbabariya/prisma-engine/middleware/opentelemetry"

// MiddlewareBuilder configures the tracer. A nil Tracer uses the global
// tracer provider.
type MiddlewareBuilder struct {
	Tracer trace.Tracer
}

// Build returns the middleware. Spans are named "<Model>.<operation>" and
// are children of the span in the operation's context.
func (m *MiddlewareBuilder) Build() runtime.Middleware {
	if m.Tracer == nil {
		m.Tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	return func(ctx context.Context, info runtime.QueryInfo, next runtime.Next) runtime.QueryResult {
		ctx, span := m.Tracer.Start(ctx, info.Model+"."+info.Operation, trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()

		span.SetAttributes(
			attribute.String("db.model", info.Model),
			attribute.String("db.operation", info.Operation),
			attribute.Bool("db.in_transaction", info.InTransaction),
		)

		result := next(ctx, info)
		if result.Error != nil {
			span.RecordError(result.Error)
			span.SetStatus(codes.Error, result.Error.Error())
			if code := errs.Code(result.Error); code != "" {
				span.SetAttributes(attribute.String("db.error_code", code))
			}
		}
		return result
	}
}
