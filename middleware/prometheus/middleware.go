// Package prometheus exports operation latencies as a Prometheus summary.
package prometheus

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/runtime"
)

// MiddlewareBuilder configures the summary. Registerer defaults to
// prometheus.DefaultRegisterer.
type MiddlewareBuilder struct {
	Namespace  string
	Subsystem  string
	Name       string
	Help       string
	Registerer prometheus.Registerer
}

// Build registers the summary and returns the middleware. Observations are
// in milliseconds, labelled by model, operation and status: "ok" or the
// error's code.
func (m MiddlewareBuilder) Build() runtime.Middleware {
	vector := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: m.Namespace,
		Subsystem: m.Subsystem,
		Name:      m.Name,
		Help:      m.Help,
		Objectives: map[float64]float64{
			0.5:   0.01,
			0.75:  0.01,
			0.90:  0.01,
			0.99:  0.001,
			0.999: 0.0001,
		},
	}, []string{"model", "operation", "status"})

	reg := m.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(vector)

	return func(ctx context.Context, info runtime.QueryInfo, next runtime.Next) runtime.QueryResult {
		result := next(ctx, info)
		vector.WithLabelValues(info.Model, info.Operation, status(result.Error)).
			Observe(float64(result.Duration.Microseconds()) / 1000)
		return result
	}
}

func status(err error) string {
	if err == nil {
		return "ok"
	}
	if code := errs.Code(err); code != "" {
		return code
	}
	return "error"
}
