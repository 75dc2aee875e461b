package runtime

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/satishbabariya/prisma-engine/internal/config"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	cfg        *config.Config
	logger     *slog.Logger
	middleware []Middleware
	now        func() time.Time
	newUUID    func() string
}

// WithLogger sets the logger used by the client. The default discards
// everything unless log_level is configured.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDatasourceURL overrides the configured datasource URL.
func WithDatasourceURL(url string) Option {
	return func(o *options) { o.cfg.DatasourceURL = url }
}

// WithDriver selects the database/sql driver of the provider, e.g. "pgx"
// instead of "postgres".
func WithDriver(driver string) Option {
	return func(o *options) { o.cfg.Driver = driver }
}

// WithMaxDepth bounds the relation nesting of a selection.
func WithMaxDepth(n int) Option {
	return func(o *options) { o.cfg.MaxDepth = n }
}

// WithBatchSize bounds the parent keys loaded by one relation query.
func WithBatchSize(n int) Option {
	return func(o *options) { o.cfg.BatchSize = n }
}

// WithPlanCacheSize sets how many execution plans are kept.
func WithPlanCacheSize(n int) Option {
	return func(o *options) { o.cfg.PlanCacheSize = n }
}

// WithLogQueries logs every statement at debug level.
func WithLogQueries(enabled bool) Option {
	return func(o *options) { o.cfg.LogQueries = enabled }
}

// WithPool sets the connection pool limits.
func WithPool(maxOpen, maxIdle int, maxLifetime time.Duration) Option {
	return func(o *options) {
		o.cfg.MaxOpenConns = maxOpen
		o.cfg.MaxIdleConns = maxIdle
		o.cfg.ConnMaxLifetime = maxLifetime
	}
}

// WithHealthCheckInterval sets how often the pool pings the store; 0
// disables the checks.
func WithHealthCheckInterval(d time.Duration) Option {
	return func(o *options) { o.cfg.HealthCheckInterval = d }
}

// WithTransactionDefaults sets the maxWait and timeout of transactions that
// do not set their own.
func WithTransactionDefaults(maxWait, timeout time.Duration) Option {
	return func(o *options) {
		o.cfg.TxMaxWait = maxWait
		o.cfg.TxTimeout = timeout
	}
}

// WithMiddleware appends middleware to the client's chain.
func WithMiddleware(mw ...Middleware) Option {
	return func(o *options) { o.middleware = append(o.middleware, mw...) }
}

// WithClock replaces the clock used for now() defaults and updatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithUUIDGenerator replaces the generator of uuid() defaults.
func WithUUIDGenerator(gen func() string) Option {
	return func(o *options) { o.newUUID = gen }
}

// TxOption configures one transaction.
type TxOption func(*txOptions)

type txOptions struct {
	maxWait   time.Duration
	timeout   time.Duration
	isolation sql.IsolationLevel
	readOnly  bool
}

// WithMaxWait bounds how long the transaction waits for a connection.
func WithMaxWait(d time.Duration) TxOption {
	return func(o *txOptions) { o.maxWait = d }
}

// WithTimeout bounds how long the transaction may run once started.
func WithTimeout(d time.Duration) TxOption {
	return func(o *txOptions) { o.timeout = d }
}

// WithIsolationLevel runs the transaction at level. A level the store does
// not provide fails with errs.UnsupportedIsolationLevelError.
func WithIsolationLevel(level sql.IsolationLevel) TxOption {
	return func(o *txOptions) { o.isolation = level }
}

// WithReadOnly starts a read-only transaction.
func WithReadOnly() TxOption {
	return func(o *txOptions) { o.readOnly = true }
}

// parseIsolation maps a configured level name to a sql.IsolationLevel.
func parseIsolation(name string) (sql.IsolationLevel, bool) {
	switch name {
	case "":
		return sql.LevelDefault, true
	case "ReadUncommitted", "read_uncommitted":
		return sql.LevelReadUncommitted, true
	case "ReadCommitted", "read_committed":
		return sql.LevelReadCommitted, true
	case "RepeatableRead", "repeatable_read":
		return sql.LevelRepeatableRead, true
	case "Snapshot", "snapshot":
		return sql.LevelSnapshot, true
	case "Serializable", "serializable":
		return sql.LevelSerializable, true
	}
	return sql.LevelDefault, false
}
