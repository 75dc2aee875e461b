// Package errs defines the engine's error taxonomy.
//
// Every error carries a stable code and the structured context (model,
// field, constraint) needed to build a message without parsing driver text.
// Each type matches its sentinel with errors.Is:
//
//	if errors.Is(err, errs.ErrRecordNotFound) { ... }
//
// and exposes its fields with errors.As:
//
//	var uerr *errs.UniqueConstraintViolationError
//	if errors.As(err, &uerr) { log.Println(uerr.Constraint) }
package errs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinels matched by the typed errors below.
var (
	ErrSchemaMismatch       = errors.New("schema mismatch")
	ErrRecordNotFound       = errors.New("record not found")
	ErrRelatedNotFound      = errors.New("related record not found")
	ErrUniqueConstraint     = errors.New("unique constraint violation")
	ErrForeignKey           = errors.New("foreign key constraint violation")
	ErrNullConstraint       = errors.New("null constraint violation")
	ErrRelationViolation    = errors.New("relation violation")
	ErrUpsertConflict       = errors.New("upsert conflict")
	ErrWriteConflict        = errors.New("write conflict")
	ErrSelectionTooDeep     = errors.New("selection too deep")
	ErrInvalidSelection     = errors.New("invalid selection")
	ErrTransactionTimeout   = errors.New("transaction timeout")
	ErrUnsupportedIsolation = errors.New("unsupported isolation level")
	ErrConnection           = errors.New("connection error")
	ErrStore                = errors.New("store error")

	// ErrTransactionClosed is returned by operations on a committed, rolled back or timed out transaction.
	ErrTransactionClosed = errors.New("transaction already closed")
)

// Coder is implemented by every error in the taxonomy.
type Coder interface {
	error
	Code() string
}

// Code returns the code of the first taxonomy error in err's chain, or "".
func Code(err error) string {
	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}

// IsRetryable reports whether err is transient and the caller may retry the
// whole operation with backoff.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// SchemaMismatchError reports a descriptor that disagrees with the schema.
type SchemaMismatchError struct {
	Model  string
	Field  string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[P2009] %s.%s: %s", e.Model, e.Field, e.Reason)
	}
	return fmt.Sprintf("[P2009] %s: %s", e.Model, e.Reason)
}

func (e *SchemaMismatchError) Code() string         { return "P2009" }
func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }

// Mismatch builds a SchemaMismatchError.
func Mismatch(model, field, format string, args ...any) *SchemaMismatchError {
	return &SchemaMismatchError{Model: model, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// RecordNotFoundError is returned by the OrThrow finders and by single-record
// mutations whose target does not exist.
type RecordNotFoundError struct {
	Model     string
	Operation string
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("[P2025] No %s found for %s", e.Model, e.Operation)
}

func (e *RecordNotFoundError) Code() string         { return "P2025" }
func (e *RecordNotFoundError) Is(target error) bool { return target == ErrRecordNotFound }

// RelatedRecordNotFoundError reports a connect whose target does not exist.
type RelatedRecordNotFoundError struct {
	Model    string
	Relation string
	Target   string
}

func (e *RelatedRecordNotFoundError) Error() string {
	return fmt.Sprintf("[P2018] %s.%s: no %s record to connect", e.Model, e.Relation, e.Target)
}

func (e *RelatedRecordNotFoundError) Code() string         { return "P2018" }
func (e *RelatedRecordNotFoundError) Is(target error) bool { return target == ErrRelatedNotFound }

// UniqueConstraintViolationError reports a write that collided with a unique key.
type UniqueConstraintViolationError struct {
	Model      string
	Constraint string
	Fields     []string
	Cause      error
}

func (e *UniqueConstraintViolationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("[P2002] Unique constraint %s failed on %s(%s)",
			e.Constraint, e.Model, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("[P2002] Unique constraint %s failed on %s", e.Constraint, e.Model)
}

func (e *UniqueConstraintViolationError) Code() string         { return "P2002" }
func (e *UniqueConstraintViolationError) Unwrap() error        { return e.Cause }
func (e *UniqueConstraintViolationError) Is(target error) bool { return target == ErrUniqueConstraint }

// ForeignKeyViolationError reports a write referencing a missing record.
type ForeignKeyViolationError struct {
	Model      string
	Constraint string
	Cause      error
}

func (e *ForeignKeyViolationError) Error() string {
	return fmt.Sprintf("[P2003] Foreign key constraint %s failed on %s", e.Constraint, e.Model)
}

func (e *ForeignKeyViolationError) Code() string         { return "P2003" }
func (e *ForeignKeyViolationError) Unwrap() error        { return e.Cause }
func (e *ForeignKeyViolationError) Is(target error) bool { return target == ErrForeignKey }

// NullConstraintViolationError reports a NULL written to a required column.
type NullConstraintViolationError struct {
	Model string
	Field string
	Cause error
}

func (e *NullConstraintViolationError) Error() string {
	return fmt.Sprintf("[P2011] Null constraint violation on %s.%s", e.Model, e.Field)
}

func (e *NullConstraintViolationError) Code() string         { return "P2011" }
func (e *NullConstraintViolationError) Unwrap() error        { return e.Cause }
func (e *NullConstraintViolationError) Is(target error) bool { return target == ErrNullConstraint }

// RelationViolationError reports a delete blocked by a Restrict relation.
type RelationViolationError struct {
	Model    string
	Relation string
	Target   string
}

func (e *RelationViolationError) Error() string {
	return fmt.Sprintf("[P2014] Deleting %s would violate the required relation %s on %s",
		e.Model, e.Relation, e.Target)
}

func (e *RelationViolationError) Code() string         { return "P2014" }
func (e *RelationViolationError) Is(target error) bool { return target == ErrRelationViolation }

// UpsertConflictError reports an upsert that kept losing races on its unique key.
type UpsertConflictError struct {
	Model    string
	Attempts int
	Cause    error
}

func (e *UpsertConflictError) Error() string {
	return fmt.Sprintf("[P2034] Upsert on %s conflicted %d times", e.Model, e.Attempts)
}

func (e *UpsertConflictError) Code() string         { return "P2034" }
func (e *UpsertConflictError) Unwrap() error        { return e.Cause }
func (e *UpsertConflictError) Is(target error) bool { return target == ErrUpsertConflict }

// WriteConflictError reports a serialization failure or deadlock; the whole
// transaction may be retried.
type WriteConflictError struct {
	Cause error
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("[P2034] Transaction failed due to a write conflict or a deadlock: %v", e.Cause)
}

func (e *WriteConflictError) Code() string         { return "P2034" }
func (e *WriteConflictError) Unwrap() error        { return e.Cause }
func (e *WriteConflictError) Retryable() bool      { return true }
func (e *WriteConflictError) Is(target error) bool { return target == ErrWriteConflict }

// SelectionTooDeepError reports relation nesting beyond the configured bound.
type SelectionTooDeepError struct {
	Model string
	Depth int
	Max   int
}

func (e *SelectionTooDeepError) Error() string {
	return fmt.Sprintf("[P2009] Selection on %s nests %d relations deep, the limit is %d", e.Model, e.Depth, e.Max)
}

func (e *SelectionTooDeepError) Code() string         { return "P2009" }
func (e *SelectionTooDeepError) Is(target error) bool { return target == ErrSelectionTooDeep }

// InvalidSelectionError reports a selection that cannot be satisfied, such as select with omit.
type InvalidSelectionError struct {
	Model  string
	Reason string
}

func (e *InvalidSelectionError) Error() string {
	return fmt.Sprintf("[P2009] Invalid selection on %s: %s", e.Model, e.Reason)
}

func (e *InvalidSelectionError) Code() string         { return "P2009" }
func (e *InvalidSelectionError) Is(target error) bool { return target == ErrInvalidSelection }

// TransactionPhase names the limit a transaction exceeded.
type TransactionPhase string

// Transaction phases.
const (
	PhaseMaxWait TransactionPhase = "maxWait"
	PhaseTimeout TransactionPhase = "timeout"
)

// TransactionTimeoutError reports a transaction that waited too long for a
// connection or ran past its timeout. The transaction was rolled back.
type TransactionTimeoutError struct {
	Phase TransactionPhase
	Limit time.Duration
}

func (e *TransactionTimeoutError) Error() string {
	if e.Phase == PhaseMaxWait {
		return fmt.Sprintf("[P2028] Unable to start a transaction in the given time (maxWait %s)", e.Limit)
	}
	return fmt.Sprintf("[P2028] Transaction exceeded its timeout of %s and was rolled back", e.Limit)
}

func (e *TransactionTimeoutError) Code() string         { return "P2028" }
func (e *TransactionTimeoutError) Is(target error) bool { return target == ErrTransactionTimeout }

// UnsupportedIsolationLevelError reports an isolation level the store cannot provide.
type UnsupportedIsolationLevelError struct {
	Provider string
	Level    string
}

func (e *UnsupportedIsolationLevelError) Error() string {
	return fmt.Sprintf("[P2028] Isolation level %s is not supported by %s", e.Level, e.Provider)
}

func (e *UnsupportedIsolationLevelError) Code() string { return "P2028" }
func (e *UnsupportedIsolationLevelError) Is(target error) bool {
	return target == ErrUnsupportedIsolation
}

// ConnectionError reports a failure to reach the store. It is transient.
type ConnectionError struct {
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("[P1001] Can't reach database server: %v", e.Cause)
}

func (e *ConnectionError) Code() string         { return "P1001" }
func (e *ConnectionError) Unwrap() error        { return e.Cause }
func (e *ConnectionError) Retryable() bool      { return true }
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// StoreError is any other store-reported error, with the store's own code.
type StoreError struct {
	Model     string
	StoreCode string
	Message   string
	Cause     error
}

func (e *StoreError) Error() string {
	if e.StoreCode != "" {
		return fmt.Sprintf("[P2010] %s (code %s)", e.Message, e.StoreCode)
	}
	return fmt.Sprintf("[P2010] %s", e.Message)
}

func (e *StoreError) Code() string         { return "P2010" }
func (e *StoreError) Unwrap() error        { return e.Cause }
func (e *StoreError) Is(target error) bool { return target == ErrStore }
