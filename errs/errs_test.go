package errs_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/prisma-engine/errs"
)

func TestCodesAndSentinels(t *testing.T) {
	cause := errors.New("driver failure")
	tests := []struct {
		name      string
		err       error
		code      string
		sentinel  error
		retryable bool
	}{
		{"schema mismatch", errs.Mismatch("Customer", "age", "unknown field"), "P2009", errs.ErrSchemaMismatch, false},
		{"record not found", &errs.RecordNotFoundError{Model: "Customer", Operation: "update"}, "P2025", errs.ErrRecordNotFound, false},
		{"related not found", &errs.RelatedRecordNotFoundError{Model: "Booking", Relation: "customer", Target: "Customer"}, "P2018", errs.ErrRelatedNotFound, false},
		{"unique", &errs.UniqueConstraintViolationError{Model: "Customer", Constraint: "Customer_email_key", Cause: cause}, "P2002", errs.ErrUniqueConstraint, false},
		{"foreign key", &errs.ForeignKeyViolationError{Model: "Booking", Cause: cause}, "P2003", errs.ErrForeignKey, false},
		{"null", &errs.NullConstraintViolationError{Model: "Booking", Field: "reference", Cause: cause}, "P2011", errs.ErrNullConstraint, false},
		{"relation", &errs.RelationViolationError{Model: "Booking", Relation: "booking", Target: "Payment"}, "P2014", errs.ErrRelationViolation, false},
		{"upsert conflict", &errs.UpsertConflictError{Model: "Customer", Attempts: 3}, "P2034", errs.ErrUpsertConflict, false},
		{"write conflict", &errs.WriteConflictError{Cause: cause}, "P2034", errs.ErrWriteConflict, true},
		{"too deep", &errs.SelectionTooDeepError{Model: "Customer", Depth: 9, Max: 8}, "P2009", errs.ErrSelectionTooDeep, false},
		{"invalid selection", &errs.InvalidSelectionError{Model: "Customer", Reason: "select with omit"}, "P2009", errs.ErrInvalidSelection, false},
		{"tx timeout", &errs.TransactionTimeoutError{Phase: errs.PhaseTimeout, Limit: time.Second}, "P2028", errs.ErrTransactionTimeout, false},
		{"isolation", &errs.UnsupportedIsolationLevelError{Provider: "sqlite", Level: "Read Committed"}, "P2028", errs.ErrUnsupportedIsolation, false},
		{"connection", &errs.ConnectionError{Cause: cause}, "P1001", errs.ErrConnection, true},
		{"store", &errs.StoreError{StoreCode: "42P01", Message: "relation does not exist", Cause: cause}, "P2010", errs.ErrStore, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("findMany: %w", tt.err)

			assert.Equal(t, tt.code, errs.Code(tt.err))
			assert.Equal(t, tt.code, errs.Code(wrapped))
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.Equal(t, tt.retryable, errs.IsRetryable(wrapped))
			assert.Contains(t, tt.err.Error(), "["+tt.code+"]")
		})
	}
}

func TestCauseIsReachable(t *testing.T) {
	cause := errors.New("duplicate key")
	err := fmt.Errorf("create: %w", &errs.UniqueConstraintViolationError{
		Model:      "Customer",
		Constraint: "Customer_email_key",
		Fields:     []string{"email"},
		Cause:      cause,
	})

	assert.ErrorIs(t, err, cause)

	var uerr *errs.UniqueConstraintViolationError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, []string{"email"}, uerr.Fields)
	assert.Equal(t, "[P2002] Unique constraint Customer_email_key failed on Customer(email)", uerr.Error())
}

func TestSentinelsDoNotCrossMatch(t *testing.T) {
	err := &errs.RecordNotFoundError{Model: "Customer", Operation: "delete"}
	assert.NotErrorIs(t, err, errs.ErrRelatedNotFound)
	assert.NotErrorIs(t, err, errs.ErrSchemaMismatch)

	sel := &errs.SelectionTooDeepError{Model: "Customer", Depth: 3, Max: 2}
	assert.NotErrorIs(t, sel, errs.ErrInvalidSelection)
}

func TestCodeOfForeignError(t *testing.T) {
	assert.Empty(t, errs.Code(errors.New("plain")))
	assert.Empty(t, errs.Code(nil))
	assert.False(t, errs.IsRetryable(errors.New("plain")))
}

func TestTimeoutMessages(t *testing.T) {
	maxWait := &errs.TransactionTimeoutError{Phase: errs.PhaseMaxWait, Limit: 2 * time.Second}
	timeout := &errs.TransactionTimeoutError{Phase: errs.PhaseTimeout, Limit: 5 * time.Second}

	assert.Contains(t, maxWait.Error(), "maxWait 2s")
	assert.Contains(t, timeout.Error(), "timeout of 5s")
}
