package opentelemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/internal/logging"
	"github.com/satishbabariya/prisma-engine/internal/testutil"
	"github.com/satishbabariya/prisma-engine/middleware/opentelemetry"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/runtime"
)

func newTracedClient(t *testing.T, mw runtime.Middleware) *runtime.Client {
	c, err := runtime.NewClient(testutil.OpenSQLite(t), runtime.SQLite, testutil.Schema(t),
		runtime.WithLogger(logging.Discard()),
		runtime.WithMiddleware(mw),
	)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func attributes(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	c := newTracedClient(t, (&opentelemetry.MiddlewareBuilder{Tracer: tp.Tracer("engine")}).Build())

	ctx, parent := tp.Tracer("test").Start(context.Background(), "checkout")
	create := query.CreateArgs{Data: query.Data{"email": "span@example.com"}}
	_, err := c.Model("Customer").Create(ctx, create)
	require.NoError(t, err)
	_, err = c.Model("Customer").Create(ctx, create)
	require.ErrorIs(t, err, errs.ErrUniqueConstraint)
	err = c.Transaction(ctx, func(ctx context.Context, tx *runtime.Tx) error {
		_, err := tx.Model("Customer").Count(ctx, query.CountArgs{})
		return err
	})
	require.NoError(t, err)
	parent.End()

	spans := sr.Ended()
	require.Len(t, spans, 4)

	ok := spans[0]
	assert.Equal(t, "Customer.create", ok.Name())
	assert.Equal(t, trace.SpanKindClient, ok.SpanKind())
	assert.Equal(t, parent.SpanContext().SpanID(), ok.Parent().SpanID())
	attrs := attributes(ok)
	assert.Equal(t, "Customer", attrs["db.model"].AsString())
	assert.Equal(t, "create", attrs["db.operation"].AsString())
	assert.False(t, attrs["db.in_transaction"].AsBool())
	assert.Equal(t, codes.Unset, ok.Status().Code)

	failed := spans[1]
	assert.Equal(t, codes.Error, failed.Status().Code)
	assert.Equal(t, "P2002", attributes(failed)["db.error_code"].AsString())
	require.NotEmpty(t, failed.Events())
	assert.Equal(t, "exception", failed.Events()[0].Name)

	inTx := spans[2]
	assert.Equal(t, "Customer.count", inTx.Name())
	assert.True(t, attributes(inTx)["db.in_transaction"].AsBool())

	assert.Equal(t, "checkout", spans[3].Name())
}

func TestGlobalTracerProvider(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	c := newTracedClient(t, (&opentelemetry.MiddlewareBuilder{}).Build())
	_, err := c.Model("Booking").FindMany(context.Background(), query.FindManyArgs{})
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "Booking.findMany", spans[0].Name())
}
