package prometheus

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/internal/logging"
	"github.com/satishbabariya/prisma-engine/internal/testutil"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/runtime"
)

func TestStatus(t *testing.T) {
	assert.Equal(t, "ok", status(nil))
	assert.Equal(t, "P2025", status(&errs.RecordNotFoundError{Model: "Booking", Operation: "update"}))
	assert.Equal(t, "error", status(errors.New("boom")))
}

func TestMiddlewareObservesOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	mw := MiddlewareBuilder{
		Namespace:  "prisma",
		Name:       "operation_duration_ms",
		Help:       "Operation latency in milliseconds.",
		Registerer: reg,
	}.Build()

	c, err := runtime.NewClient(testutil.OpenSQLite(t), runtime.SQLite, testutil.Schema(t),
		runtime.WithLogger(logging.Discard()),
		runtime.WithMiddleware(mw),
	)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	create := query.CreateArgs{Data: query.Data{"email": "prom@example.com"}}
	_, err = c.Model("Customer").Create(ctx, create)
	require.NoError(t, err)
	_, err = c.Model("Customer").Create(ctx, create)
	require.ErrorIs(t, err, errs.ErrUniqueConstraint)
	for i := 0; i < 2; i++ {
		_, err = c.Model("Customer").Count(ctx, query.CountArgs{})
		require.NoError(t, err)
	}

	n, err := promtestutil.GatherAndCount(reg, "prisma_operation_duration_ms")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	got := map[string]uint64{}
	for _, m := range families[0].GetMetric() {
		labels := map[string]string{}
		for _, l := range m.GetLabel() {
			labels[l.GetName()] = l.GetValue()
		}
		got[labels["model"]+"."+labels["operation"]+" "+labels["status"]] = m.GetSummary().GetSampleCount()
	}
	keys := make([]string, 0, len(got))
	for k := range got {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"Customer.count ok", "Customer.create P2002", "Customer.create ok"}, keys)
	assert.Equal(t, uint64(2), got["Customer.count ok"])
	assert.Equal(t, uint64(1), got["Customer.create P2002"])
}

func TestBuildRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := MiddlewareBuilder{Name: "duplicate_ms", Help: "h", Registerer: reg}
	b.Build()
	assert.Panics(t, func() { b.Build() })
}
