// Package runtime is the public surface of the query engine: a Client bound
// to one schema and one store, per-model operations, transactions and the
// middleware chain every operation passes through.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/internal/cache"
	"github.com/satishbabariya/prisma-engine/internal/compiler"
	"github.com/satishbabariya/prisma-engine/internal/config"
	"github.com/satishbabariya/prisma-engine/internal/datasource"
	"github.com/satishbabariya/prisma-engine/internal/dberr"
	"github.com/satishbabariya/prisma-engine/internal/dialect"
	"github.com/satishbabariya/prisma-engine/internal/executor"
	"github.com/satishbabariya/prisma-engine/internal/logging"
	"github.com/satishbabariya/prisma-engine/internal/mutation"
	"github.com/satishbabariya/prisma-engine/internal/planner"
	"github.com/satishbabariya/prisma-engine/internal/pool"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/schema"
)

// Provider names a store family.
type Provider = dialect.Provider

// Supported providers.
const (
	Postgres = dialect.Postgres
	MySQL    = dialect.MySQL
	SQLite   = dialect.SQLite
)

// PoolStats are the connection pool statistics.
type PoolStats = pool.Stats

// CacheStats are the plan cache statistics.
type CacheStats = cache.Stats

// Client runs operations for one schema against one store. It is safe for
// concurrent use.
type Client struct {
	schema  *schema.Schema
	dialect dialect.Dialect
	pool    *pool.Pool
	plans   *cache.Plans
	exec    *executor.Executor
	engine  *mutation.Engine
	chain   *MiddlewareChain
	hooks   *Hooks
	logger  *slog.Logger
	cfg     *config.Config

	mu     sync.Mutex
	closed bool
}

// Open connects to the store named by the configured datasource URL and
// returns a client for s. Configuration is read from the config file, .env
// files and PRISMA_ENGINE_* variables; opts override it.
func Open(ctx context.Context, s *schema.Schema, opts ...Option) (*Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	o := apply(cfg, opts)

	src, err := datasource.Parse(cfg.DatasourceURL, cfg.Driver)
	if err != nil {
		return nil, err
	}
	p, err := pool.Open(src, poolConfig(cfg), o.logger)
	if err != nil {
		return nil, err
	}
	if err := p.DB().PingContext(ctx); err != nil {
		p.Close()
		return nil, dberr.Translate(nil, err)
	}
	c, err := newClient(s, src.Provider, p, o)
	if err != nil {
		p.Close()
		return nil, err
	}
	c.logger.Info("client connected", "provider", src.Provider, "driver", src.Driver)
	return c, nil
}

// NewClient returns a client for s using db. The caller keeps ownership of
// db; Close leaves it open. Configuration starts from the defaults and
// ignores config files and the environment.
func NewClient(db *sql.DB, provider Provider, s *schema.Schema, opts ...Option) (*Client, error) {
	o := apply(config.Defaults(), opts)
	return newClient(s, provider, pool.Wrap(db, poolConfig(o.cfg), o.logger), o)
}

func apply(cfg *config.Config, opts []Option) *options {
	o := &options{cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.New(logging.Options{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
			Output: os.Stderr,
		})
	}
	return o
}

func poolConfig(cfg *config.Config) pool.Config {
	return pool.Config{
		MaxOpenConns:        cfg.MaxOpenConns,
		MaxIdleConns:        cfg.MaxIdleConns,
		ConnMaxLifetime:     cfg.ConnMaxLifetime,
		ConnMaxIdleTime:     cfg.ConnMaxIdleTime,
		HealthCheckInterval: cfg.HealthCheckInterval,
	}
}

func newClient(s *schema.Schema, provider Provider, p *pool.Pool, o *options) (*Client, error) {
	if s == nil {
		return nil, fmt.Errorf("runtime: nil schema")
	}
	d, err := dialect.New(provider)
	if err != nil {
		return nil, err
	}
	if _, ok := parseIsolation(o.cfg.TxIsolationLevel); !ok {
		return nil, fmt.Errorf("runtime: unknown isolation level %q", o.cfg.TxIsolationLevel)
	}
	plans, err := cache.New(o.cfg.PlanCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan cache: %w", err)
	}
	comp := compiler.New(s, d)
	exec := executor.New(comp, planner.New(comp, o.cfg.MaxDepth), plans, executor.Options{
		BatchSize:  o.cfg.BatchSize,
		Logger:     o.logger,
		LogQueries: o.cfg.LogQueries,
	})
	return &Client{
		schema:  s,
		dialect: d,
		pool:    p,
		plans:   plans,
		exec:    exec,
		engine:  mutation.New(exec, mutation.Options{Logger: o.logger, Now: o.now, NewUUID: o.newUUID}),
		chain:   NewMiddlewareChain(o.middleware...),
		hooks:   NewHooks(),
		logger:  o.logger,
		cfg:     o.cfg,
	}, nil
}

// Model returns the operations of the named model. Operations on an unknown
// model fail with errs.SchemaMismatchError.
func (c *Client) Model(name string) *ModelClient {
	m, _ := c.schema.Model(name)
	return &ModelClient{client: c, name: name, model: m}
}

// Schema returns the client's schema.
func (c *Client) Schema() *schema.Schema { return c.schema }

// Provider returns the store family the client talks to.
func (c *Client) Provider() Provider { return c.dialect.Provider() }

// DB returns the underlying handle.
func (c *Client) DB() *sql.DB { return c.pool.DB() }

// Use appends middleware to the chain. It must not be called concurrently
// with running operations.
func (c *Client) Use(mw ...Middleware) { c.chain.Use(mw...) }

// Hooks returns the client's lifecycle hooks.
func (c *Client) Hooks() *Hooks { return c.hooks }

// Ping checks that the store is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.pool.HealthCheck(ctx); err != nil {
		return dberr.Translate(nil, err)
	}
	return nil
}

// PoolStats returns the connection pool statistics.
func (c *Client) PoolStats() PoolStats { return c.pool.Stats() }

// CacheStats returns the plan cache statistics.
func (c *Client) CacheStats() CacheStats { return c.plans.Stats() }

// Explain renders the execution plan findMany would use for args.
func (c *Client) Explain(model string, args query.FindManyArgs) (string, error) {
	m, ok := c.schema.Model(model)
	if !ok {
		return "", errs.Mismatch(model, "", "unknown model")
	}
	f, err := c.exec.Planner().Find(m, args)
	if err != nil {
		return "", err
	}
	return f.Explain(), nil
}

// Close releases the pool. Calling Close twice is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.plans.Purge()
	return c.pool.Close()
}
