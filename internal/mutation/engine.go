// Package mutation implements writes: validation of payloads, client-side
// defaults, nested relation writes, upserts and emulated referential actions.
//
// Every write that needs more than one statement runs in a transaction. The
// engine opens one when the session can begin transactions and otherwise
// assumes the session already is one.
package mutation

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/satishbabariya/prisma-engine/internal/compiler"
	"github.com/satishbabariya/prisma-engine/internal/dberr"
	"github.com/satishbabariya/prisma-engine/internal/dialect"
	"github.com/satishbabariya/prisma-engine/internal/executor"
	"github.com/satishbabariya/prisma-engine/internal/logging"
)

// Beginner starts transactions. *sql.DB and *sql.Conn implement it.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// State is the progress of one write operation.
type State int

// Operation states.
const (
	Pending State = iota
	Validated
	Executed
	Committed
	Failed
)

func (s State) String() string {
	switch s {
	case Validated:
		return "validated"
	case Executed:
		return "executed"
	case Committed:
		return "committed"
	case Failed:
		return "failed"
	}
	return "pending"
}

// Options configure an Engine.
type Options struct {
	Logger *slog.Logger
	// Now stamps DateTime defaults and updatedAt fields; nil uses the wall clock.
	Now func() time.Time
	// NewUUID generates uuid defaults; nil uses random (v4) UUIDs.
	NewUUID func() string
}

// Engine runs writes. It is safe for concurrent use.
type Engine struct {
	exec     *executor.Executor
	compiler *compiler.Compiler
	dialect  dialect.Dialect
	logger   *slog.Logger
	now      func() time.Time
	newUUID  func() string
}

// New creates an engine writing through exec.
func New(exec *executor.Executor, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewUUID == nil {
		opts.NewUUID = uuid.NewString
	}
	return &Engine{
		exec:     exec,
		compiler: exec.Compiler(),
		dialect:  exec.Compiler().Dialect(),
		logger:   logging.Or(opts.Logger),
		now:      opts.Now,
		newUUID:  opts.NewUUID,
	}
}

// timestamp is the engine's notion of now, at the precision every store keeps.
func (e *Engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

// operation tracks the state of one write for the debug log.
type operation struct {
	engine *Engine
	model  string
	name   string
	state  State
	// owned is false when the write runs in the caller's transaction,
	// which may still roll back.
	owned bool
}

func (e *Engine) begin(s executor.Session, model, name string) *operation {
	return &operation{engine: e, model: model, name: name, owned: ownsTransaction(s)}
}

func (o *operation) advance(s State) {
	o.state = s
	o.engine.logger.Debug("mutation", "model", o.model, "operation", o.name, "state", s.String())
}

// finish records the outcome of the operation and passes err through.
func (o *operation) finish(err error) error {
	if err != nil {
		o.advance(Failed)
		return err
	}
	if o.owned {
		o.advance(Committed)
	} else {
		o.advance(Executed)
	}
	return nil
}

// atomic runs fn in a transaction. When s cannot begin one it is already a
// transaction and fn runs on it directly.
func (e *Engine) atomic(ctx context.Context, s executor.Session, fn func(executor.Session) error) (err error) {
	b, ok := s.(Beginner)
	if !ok {
		return fn(s)
	}
	tx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return dberr.Translate(nil, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				e.logger.Warn("rollback failed", "error", rbErr)
			}
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return dberr.Translate(nil, err)
	}
	return nil
}

// ownsTransaction reports whether writes on s run in a transaction the
// engine opens itself.
func ownsTransaction(s executor.Session) bool {
	_, ok := s.(Beginner)
	return ok
}
