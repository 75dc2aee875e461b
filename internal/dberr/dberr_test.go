package dberr_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/internal/dberr"
	"github.com/satishbabariya/prisma-engine/internal/testutil"
)

func TestTranslatePostgres(t *testing.T) {
	s := testutil.Schema(t)
	customer := s.MustModel("Customer")
	booking := s.MustModel("Booking")

	t.Run("unique by constraint name", func(t *testing.T) {
		err := dberr.Translate(customer, &pq.Error{Code: "23505", Constraint: "Customer_email_key"})
		var uerr *errs.UniqueConstraintViolationError
		require.ErrorAs(t, err, &uerr)
		assert.Equal(t, "Customer", uerr.Model)
		assert.Equal(t, "Customer_email_key", uerr.Constraint)
		assert.Equal(t, []string{"email"}, uerr.Fields)
	})

	t.Run("unique by detail columns", func(t *testing.T) {
		err := dberr.Translate(customer, &pgconn.PgError{
			Code:           "23505",
			ConstraintName: "customer_email_idx",
			Detail:         `Key ("email")=(ada@example.com) already exists.`,
		})
		var uerr *errs.UniqueConstraintViolationError
		require.ErrorAs(t, err, &uerr)
		assert.Equal(t, "Customer_email_key", uerr.Constraint)
		assert.Equal(t, []string{"email"}, uerr.Fields)
	})

	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"foreign key", &pq.Error{Code: "23503", Constraint: "Booking_customerId_fkey"}, errs.ErrForeignKey},
		{"not null", &pgconn.PgError{Code: "23502", ColumnName: "reference"}, errs.ErrNullConstraint},
		{"serialization", &pq.Error{Code: "40001"}, errs.ErrWriteConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, errs.ErrWriteConflict},
		{"connection class", &pq.Error{Code: "08006"}, errs.ErrConnection},
		{"shutdown", &pgconn.PgError{Code: "57P01"}, errs.ErrConnection},
		{"other", &pq.Error{Code: "42P01", Message: `relation "Booking" does not exist`}, errs.ErrStore},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := dberr.Translate(booking, fmt.Errorf("exec: %w", tt.err))
			assert.ErrorIs(t, err, tt.target)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	var nerr *errs.NullConstraintViolationError
	require.ErrorAs(t, dberr.Translate(booking, &pq.Error{Code: "23502", Column: "reference"}), &nerr)
	assert.Equal(t, "reference", nerr.Field)

	var serr *errs.StoreError
	require.ErrorAs(t, dberr.Translate(booking, &pq.Error{Code: "42P01", Message: "missing"}), &serr)
	assert.Equal(t, "42P01", serr.StoreCode)
}

func TestTranslateMySQL(t *testing.T) {
	s := testutil.Schema(t)
	customer := s.MustModel("Customer")
	booking := s.MustModel("Booking")

	var uerr *errs.UniqueConstraintViolationError
	err := dberr.Translate(customer, &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'ada@example.com' for key 'Customer.Customer_email_key'"})
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "Customer_email_key", uerr.Constraint)
	assert.Equal(t, []string{"email"}, uerr.Fields)

	err = dberr.Translate(customer, &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1' for key 'PRIMARY'"})
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "Customer_pkey", uerr.Constraint)
	assert.Equal(t, []string{"id"}, uerr.Fields)

	var ferr *errs.ForeignKeyViolationError
	err = dberr.Translate(booking, &mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row: a foreign key constraint fails (`shop`.`Booking`, CONSTRAINT `Booking_customerId_fkey` FOREIGN KEY (`customerId`) REFERENCES `Customer` (`id`))"})
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "Booking_customerId_fkey", ferr.Constraint)

	var nerr *errs.NullConstraintViolationError
	err = dberr.Translate(booking, &mysql.MySQLError{Number: 1048, Message: "Column 'reference' cannot be null"})
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "reference", nerr.Field)

	assert.ErrorIs(t, dberr.Translate(booking, &mysql.MySQLError{Number: 1213}), errs.ErrWriteConflict)
	assert.ErrorIs(t, dberr.Translate(booking, &mysql.MySQLError{Number: 2006}), errs.ErrConnection)
	assert.ErrorIs(t, dberr.Translate(nil, mysql.ErrInvalidConn), errs.ErrConnection)

	var serr *errs.StoreError
	require.ErrorAs(t, dberr.Translate(booking, &mysql.MySQLError{Number: 1146, Message: "Table 'shop.Booking' doesn't exist"}), &serr)
	assert.Equal(t, "1146", serr.StoreCode)
}

func TestTranslateSQLiteCodes(t *testing.T) {
	s := testutil.Schema(t)
	booking := s.MustModel("Booking")

	fk := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}
	assert.ErrorIs(t, dberr.Translate(booking, fk), errs.ErrForeignKey)

	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	assert.ErrorIs(t, dberr.Translate(booking, busy), errs.ErrWriteConflict)
	assert.True(t, errs.IsRetryable(dberr.Translate(booking, busy)))
}

func TestTranslateSQLiteDriver(t *testing.T) {
	db := testutil.OpenSQLite(t)
	s := testutil.Schema(t)
	customer := s.MustModel("Customer")
	booking := s.MustModel("Booking")
	now := time.Now().UTC()

	_, err := db.Exec(`INSERT INTO "Customer" ("email", "createdAt", "updatedAt") VALUES (?, ?, ?)`, "ada@example.com", now, now)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO "Customer" ("email", "createdAt", "updatedAt") VALUES (?, ?, ?)`, "ada@example.com", now, now)
	require.Error(t, err)

	var uerr *errs.UniqueConstraintViolationError
	require.ErrorAs(t, dberr.Translate(customer, err), &uerr)
	assert.Equal(t, "Customer_email_key", uerr.Constraint)
	assert.Equal(t, []string{"email"}, uerr.Fields)

	_, err = db.Exec(`INSERT INTO "Booking" ("reference", "customerId", "createdAt") VALUES (?, ?, ?)`, "BK-1", 42, now)
	require.Error(t, err)
	assert.ErrorIs(t, dberr.Translate(booking, err), errs.ErrForeignKey)

	_, err = db.Exec(`INSERT INTO "Booking" ("reference", "customerId", "createdAt") VALUES (?, ?, ?)`, nil, 1, now)
	require.Error(t, err)
	var nerr *errs.NullConstraintViolationError
	require.ErrorAs(t, dberr.Translate(booking, err), &nerr)
	assert.Equal(t, "reference", nerr.Field)
}

func TestTranslatePassThrough(t *testing.T) {
	assert.NoError(t, dberr.Translate(nil, nil))

	canceled := fmt.Errorf("query: %w", context.Canceled)
	assert.Same(t, canceled, dberr.Translate(nil, canceled))

	known := &errs.RecordNotFoundError{Model: "Customer", Operation: "update"}
	assert.Same(t, known, dberr.Translate(nil, known))
}

func TestTranslateConnectionAndUnknown(t *testing.T) {
	assert.ErrorIs(t, dberr.Translate(nil, fmt.Errorf("ping: %w", driver.ErrBadConn)), errs.ErrConnection)
	assert.ErrorIs(t, dberr.Translate(nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}), errs.ErrConnection)

	var serr *errs.StoreError
	require.ErrorAs(t, dberr.Translate(nil, errors.New("boom")), &serr)
	assert.Equal(t, "boom", serr.Message)
	assert.Empty(t, serr.Model)
}
