// Package executor runs execution plans against a session and assembles
// nested records.
package executor

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/satishbabariya/prisma-engine/internal/cache"
	"github.com/satishbabariya/prisma-engine/internal/compiler"
	"github.com/satishbabariya/prisma-engine/internal/dberr"
	"github.com/satishbabariya/prisma-engine/internal/logging"
	"github.com/satishbabariya/prisma-engine/internal/planner"
	"github.com/satishbabariya/prisma-engine/schema"
)

// DefaultBatchSize bounds the parent keys of one batched relation query.
const DefaultBatchSize = 1000

// Session runs statements. *sql.DB, *sql.Conn and *sql.Tx satisfy it.
type Session interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Options configure an Executor.
type Options struct {
	// BatchSize <= 0 selects DefaultBatchSize.
	BatchSize int
	Logger    *slog.Logger
	// LogQueries logs every statement at debug level.
	LogQueries bool
}

// Executor runs reads. It is safe for concurrent use.
type Executor struct {
	compiler   *compiler.Compiler
	planner    *planner.Planner
	plans      *cache.Plans
	batchSize  int
	logger     *slog.Logger
	logQueries bool
}

// New creates an executor. plans may be nil to disable plan caching.
func New(c *compiler.Compiler, p *planner.Planner, plans *cache.Plans, opts Options) *Executor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Executor{
		compiler:   c,
		planner:    p,
		plans:      plans,
		batchSize:  opts.BatchSize,
		logger:     logging.Or(opts.Logger),
		logQueries: opts.LogQueries,
	}
}

// Compiler returns the executor's compiler.
func (e *Executor) Compiler() *compiler.Compiler { return e.compiler }

// Planner returns the executor's planner.
func (e *Executor) Planner() *planner.Planner { return e.planner }

// Logger returns the executor's logger.
func (e *Executor) Logger() *slog.Logger { return e.logger }

// plan returns the cached plan for a descriptor, building it on a miss.
func (e *Executor) plan(m *schema.Model, op string, descriptor any, build func() (*planner.Fetch, error)) (*planner.Fetch, error) {
	if e.plans == nil {
		return build()
	}
	key, ok := cache.Key(m.Name, op, descriptor)
	if !ok {
		return build()
	}
	return e.plans.GetOrBuild(key, build)
}

// Query runs a statement returning rows. Driver errors come back translated.
func (e *Executor) Query(ctx context.Context, s Session, m *schema.Model, st compiler.Statement) (*sql.Rows, error) {
	start := time.Now()
	rows, err := s.QueryContext(ctx, st.SQL, st.Args...)
	e.log(ctx, st, start, err)
	if err != nil {
		return nil, dberr.Translate(m, err)
	}
	return rows, nil
}

// Exec runs a statement without rows. Driver errors come back translated.
func (e *Executor) Exec(ctx context.Context, s Session, m *schema.Model, st compiler.Statement) (sql.Result, error) {
	start := time.Now()
	res, err := s.ExecContext(ctx, st.SQL, st.Args...)
	e.log(ctx, st, start, err)
	if err != nil {
		return nil, dberr.Translate(m, err)
	}
	return res, nil
}

func (e *Executor) log(ctx context.Context, st compiler.Statement, start time.Time, err error) {
	if !e.logQueries {
		return
	}
	attrs := []any{"sql", st.SQL, "args", len(st.Args), "duration", time.Since(start)}
	if err != nil {
		e.logger.DebugContext(ctx, "query failed", append(attrs, "error", err)...)
		return
	}
	e.logger.DebugContext(ctx, "query", attrs...)
}

// concurrent reports whether independent statements may run in parallel on s.
func concurrent(s Session) bool {
	_, ok := s.(*sql.DB)
	return ok
}
