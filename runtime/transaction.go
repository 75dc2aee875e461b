package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/internal/dberr"
	"github.com/satishbabariya/prisma-engine/internal/executor"
)

// Transaction limits used when neither the configuration nor the caller
// sets them.
const (
	DefaultMaxWait = 2 * time.Second
	DefaultTimeout = 5 * time.Second
)

// TxState is the lifecycle state of a transaction.
type TxState int

// Transaction states.
const (
	TxOpen TxState = iota
	TxCommitted
	TxRolledBack
	TxTimedOut
)

func (s TxState) String() string {
	switch s {
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled back"
	case TxTimedOut:
		return "timed out"
	}
	return "open"
}

// TxFunc is the body of an interactive transaction.
type TxFunc func(ctx context.Context, tx *Tx) error

// Operation is one step of a batch transaction.
type Operation func(ctx context.Context, tx *Tx) (any, error)

// Tx is an open transaction. It holds one connection until it ends; every
// operation run through it sees the writes made before it.
type Tx struct {
	id      string
	client  *Client
	conn    *sql.Conn
	tx      *sql.Tx
	ctx     context.Context
	timeout time.Duration

	mu         sync.Mutex
	state      TxState
	savepoints int
}

// ID identifies the transaction in logs.
func (t *Tx) ID() string { return t.id }

// State returns the transaction's state.
func (t *Tx) State() TxState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Model returns the operations of the named model bound to the transaction.
func (t *Tx) Model(name string) *ModelClient {
	mc := t.client.Model(name)
	mc.tx = t
	return mc
}

func (t *Tx) session() (executor.Session, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return txSession{t: t}, nil
}

func (t *Tx) check() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TxOpen {
		return errs.ErrTransactionClosed
	}
	return nil
}

// failure maps an error raised inside the transaction once its timeout has
// passed to errs.TransactionTimeoutError.
func (t *Tx) failure(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(t.ctx.Err(), context.DeadlineExceeded) {
		return &errs.TransactionTimeoutError{Phase: errs.PhaseTimeout, Limit: t.timeout}
	}
	if errors.Is(err, sql.ErrTxDone) {
		return errs.ErrTransactionClosed
	}
	return err
}

// txSession runs statements on the transaction. It cannot begin
// transactions, so writes that need one run on the transaction itself.
type txSession struct {
	t *Tx
}

func (s txSession) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := s.t.check(); err != nil {
		return nil, err
	}
	res, err := s.t.tx.ExecContext(ctx, query, args...)
	return res, s.t.failure(err)
}

func (s txSession) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := s.t.check(); err != nil {
		return nil, err
	}
	rows, err := s.t.tx.QueryContext(ctx, query, args...)
	return rows, s.t.failure(err)
}

// Transaction runs fn in a transaction and commits when it returns nil.
//
// The transaction waits at most maxWait for a connection and runs at most
// timeout; exceeding either rolls it back and fails with
// errs.TransactionTimeoutError. An error from fn, a cancelled ctx or a
// panic rolls it back; the panic is re-raised.
func (c *Client) Transaction(ctx context.Context, fn TxFunc, opts ...TxOption) error {
	o := c.txOptions(opts)
	if !c.dialect.SupportsIsolation(o.isolation) {
		return &errs.UnsupportedIsolationLevelError{Provider: string(c.dialect.Provider()), Level: o.isolation.String()}
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, o.maxWait)
	conn, err := c.pool.Acquire(waitCtx)
	cancelWait()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("transaction not started: %w", ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return &errs.TransactionTimeoutError{Phase: errs.PhaseMaxWait, Limit: o.maxWait}
		}
		return dberr.Translate(nil, err)
	}
	defer conn.Close()

	txCtx, cancelTx := context.WithTimeout(ctx, o.timeout)
	defer cancelTx()
	sqlTx, err := conn.BeginTx(txCtx, &sql.TxOptions{Isolation: o.isolation, ReadOnly: o.readOnly})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("transaction not started: %w", ctx.Err())
		}
		if errors.Is(txCtx.Err(), context.DeadlineExceeded) {
			return &errs.TransactionTimeoutError{Phase: errs.PhaseTimeout, Limit: o.timeout}
		}
		return dberr.Translate(nil, err)
	}

	tx := &Tx{
		id:      uuid.NewString(),
		client:  c,
		conn:    conn,
		tx:      sqlTx,
		ctx:     txCtx,
		timeout: o.timeout,
	}
	c.logger.Debug("transaction started", "tx", tx.id, "isolation", o.isolation.String())

	defer func() {
		if p := recover(); p != nil {
			tx.rollback(TxRolledBack)
			panic(p)
		}
	}()
	if err := fn(txCtx, tx); err != nil {
		return tx.abort(ctx, err)
	}
	return tx.commit(ctx)
}

// BatchTransaction runs ops in order in one transaction and returns their
// results. The first failing operation rolls back all of them.
func (c *Client) BatchTransaction(ctx context.Context, ops []Operation, opts ...TxOption) ([]any, error) {
	results := make([]any, len(ops))
	err := c.Transaction(ctx, func(ctx context.Context, tx *Tx) error {
		for i, op := range ops {
			r, err := op(ctx, tx)
			if err != nil {
				return fmt.Errorf("batch operation %d: %w", i, err)
			}
			results[i] = r
		}
		return nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Transaction runs fn inside a savepoint of t. An error from fn rolls back
// to the savepoint and leaves t open.
func (t *Tx) Transaction(ctx context.Context, fn TxFunc) error {
	s, err := t.session()
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.savepoints++
	name := fmt.Sprintf("sp_%d", t.savepoints)
	t.mu.Unlock()

	if _, err := s.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return dberr.Translate(nil, err)
	}
	release := func(stmt string) {
		if _, err := s.ExecContext(ctx, stmt+name); err != nil {
			t.client.logger.Warn("savepoint cleanup failed", "tx", t.id, "savepoint", name, "error", err)
		}
	}
	defer func() {
		if p := recover(); p != nil {
			release("ROLLBACK TO SAVEPOINT ")
			panic(p)
		}
	}()
	if err := fn(ctx, t); err != nil {
		release("ROLLBACK TO SAVEPOINT ")
		return err
	}
	if _, err := s.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return dberr.Translate(nil, err)
	}
	return nil
}

// abort rolls back after the body failed and reports why.
func (t *Tx) abort(parent context.Context, cause error) error {
	timedOut := parent.Err() == nil && errors.Is(t.ctx.Err(), context.DeadlineExceeded)
	if timedOut {
		t.rollback(TxTimedOut)
		return &errs.TransactionTimeoutError{Phase: errs.PhaseTimeout, Limit: t.timeout}
	}
	t.rollback(TxRolledBack)
	if err := parent.Err(); err != nil {
		return fmt.Errorf("transaction rolled back: %w", err)
	}
	return cause
}

func (t *Tx) commit(parent context.Context) error {
	if err := t.ctx.Err(); err != nil {
		return t.abort(parent, err)
	}
	t.mu.Lock()
	if t.state != TxOpen {
		t.mu.Unlock()
		return errs.ErrTransactionClosed
	}
	t.state = TxCommitted
	t.mu.Unlock()

	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) && t.ctx.Err() != nil {
			t.setState(TxTimedOut)
			return &errs.TransactionTimeoutError{Phase: errs.PhaseTimeout, Limit: t.timeout}
		}
		t.setState(TxRolledBack)
		return dberr.Translate(nil, err)
	}
	t.client.logger.Debug("transaction committed", "tx", t.id)
	return nil
}

func (t *Tx) rollback(state TxState) {
	t.mu.Lock()
	if t.state != TxOpen {
		t.mu.Unlock()
		return
	}
	t.state = state
	t.mu.Unlock()

	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		t.client.logger.Warn("rollback failed", "tx", t.id, "error", err)
	}
	t.client.logger.Debug("transaction ended", "tx", t.id, "state", state.String())
}

func (t *Tx) setState(s TxState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (c *Client) txOptions(opts []TxOption) txOptions {
	o := txOptions{maxWait: c.cfg.TxMaxWait, timeout: c.cfg.TxTimeout}
	o.isolation, _ = parseIsolation(c.cfg.TxIsolationLevel)
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxWait <= 0 {
		o.maxWait = DefaultMaxWait
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	return o
}
