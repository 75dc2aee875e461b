// Package dberr translates driver errors into the engine's error taxonomy.
//
// The four supported drivers report failures differently: lib/pq and pgx
// carry SQLSTATE codes and constraint names, go-sql-driver/mysql carries
// server error numbers and a message naming the key, and go-sqlite3 carries
// result codes and a message naming the columns.
package dberr

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/schema"
)

// PostgreSQL SQLSTATE codes.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgNotNullViolation     = "23502"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgAdminShutdown        = "57P01"
	pgCannotConnectNow     = "57P03"
	pgConnectionClass      = "08"
)

// MySQL server error numbers.
const (
	myDuplicateEntry      = 1062
	myRowIsReferenced     = 1451
	myNoReferencedRow     = 1452
	myRowIsReferenced2    = 1217
	myNoReferencedRow2    = 1216
	myBadNull             = 1048
	myNoDefault           = 1364
	myLockWaitTimeout     = 1205
	myDeadlock            = 1213
	myServerGone          = 2006
	myServerLost          = 2013
	myTooManyConnections  = 1040
	myConnectionRefused   = 2003
	myUnknownHostOrSocket = 2002
)

var (
	pgKeyDetail     = regexp.MustCompile(`Key \(([^)]+)\)=`)
	myDuplicateKey  = regexp.MustCompile(`for key '([^']+)'`)
	myColumn        = regexp.MustCompile(`(?:Column|Field) '([^']+)'`)
	sqliteColumns   = regexp.MustCompile(`constraint failed: (.+)$`)
	myForeignKeyRef = regexp.MustCompile("CONSTRAINT `([^`]+)`")
)

// Translate maps err, raised while operating on m (nil when unknown), to a
// taxonomy error. Errors already in the taxonomy, context errors and nil
// pass through unchanged.
func Translate(m *schema.Model, err error) error {
	if err == nil {
		return nil
	}
	var coder errs.Coder
	if errors.As(err, &coder) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fromPostgres(m, err, string(pqErr.Code), pqErr.Constraint, pqErr.Column, pqErr.Detail, pqErr.Message)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fromPostgres(m, err, pgErr.Code, pgErr.ConstraintName, pgErr.ColumnName, pgErr.Detail, pgErr.Message)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return fromMySQL(m, err, myErr)
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return fromSQLite(m, err, liteErr)
	}

	if isConnection(err) {
		return &errs.ConnectionError{Cause: err}
	}
	return &errs.StoreError{Model: modelName(m), Message: err.Error(), Cause: err}
}

func isConnection(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var pgConnect *pgconn.ConnectError
	return errors.As(err, &pgConnect)
}

func fromPostgres(m *schema.Model, err error, code, constraint, column, detail, message string) error {
	switch {
	case code == pgUniqueViolation:
		return unique(m, err, constraint, keyColumns(detail))
	case code == pgForeignKeyViolation:
		return &errs.ForeignKeyViolationError{Model: modelName(m), Constraint: constraint, Cause: err}
	case code == pgNotNullViolation:
		return &errs.NullConstraintViolationError{Model: modelName(m), Field: fieldName(m, column), Cause: err}
	case code == pgSerializationFailure || code == pgDeadlockDetected:
		return &errs.WriteConflictError{Cause: err}
	case strings.HasPrefix(code, pgConnectionClass) || code == pgAdminShutdown || code == pgCannotConnectNow:
		return &errs.ConnectionError{Cause: err}
	}
	return &errs.StoreError{Model: modelName(m), StoreCode: code, Message: message, Cause: err}
}

func keyColumns(detail string) []string {
	match := pgKeyDetail.FindStringSubmatch(detail)
	if match == nil {
		return nil
	}
	cols := strings.Split(match[1], ",")
	for i := range cols {
		cols[i] = strings.Trim(strings.TrimSpace(cols[i]), `"`)
	}
	return cols
}

func fromMySQL(m *schema.Model, err error, e *mysql.MySQLError) error {
	switch e.Number {
	case myDuplicateEntry:
		name := ""
		if match := myDuplicateKey.FindStringSubmatch(e.Message); match != nil {
			// MySQL 8 prefixes the key with the table name
			name = match[1]
			if i := strings.LastIndexByte(name, '.'); i >= 0 {
				name = name[i+1:]
			}
		}
		if name == "PRIMARY" && m != nil {
			name = m.Constraints()[0].Name
		}
		return unique(m, err, name, nil)
	case myRowIsReferenced, myNoReferencedRow, myRowIsReferenced2, myNoReferencedRow2:
		constraint := ""
		if match := myForeignKeyRef.FindStringSubmatch(e.Message); match != nil {
			constraint = match[1]
		}
		return &errs.ForeignKeyViolationError{Model: modelName(m), Constraint: constraint, Cause: err}
	case myBadNull, myNoDefault:
		column := ""
		if match := myColumn.FindStringSubmatch(e.Message); match != nil {
			column = match[1]
		}
		return &errs.NullConstraintViolationError{Model: modelName(m), Field: fieldName(m, column), Cause: err}
	case myDeadlock, myLockWaitTimeout:
		return &errs.WriteConflictError{Cause: err}
	case myServerGone, myServerLost, myTooManyConnections, myConnectionRefused, myUnknownHostOrSocket:
		return &errs.ConnectionError{Cause: err}
	}
	return &errs.StoreError{Model: modelName(m), StoreCode: strconv.Itoa(int(e.Number)), Message: e.Message, Cause: err}
}

func fromSQLite(m *schema.Model, err error, e sqlite3.Error) error {
	switch e.Code {
	case sqlite3.ErrConstraint:
		switch e.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return unique(m, err, "", sqliteColumnList(e.Error()))
		case sqlite3.ErrConstraintForeignKey:
			return &errs.ForeignKeyViolationError{Model: modelName(m), Cause: err}
		case sqlite3.ErrConstraintNotNull:
			cols := sqliteColumnList(e.Error())
			column := ""
			if len(cols) > 0 {
				column = cols[0]
			}
			return &errs.NullConstraintViolationError{Model: modelName(m), Field: fieldName(m, column), Cause: err}
		}
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return &errs.WriteConflictError{Cause: err}
	case sqlite3.ErrCantOpen, sqlite3.ErrNotADB:
		return &errs.ConnectionError{Cause: err}
	}
	return &errs.StoreError{Model: modelName(m), StoreCode: strconv.Itoa(int(e.ExtendedCode)), Message: e.Error(), Cause: err}
}

// sqliteColumnList parses "UNIQUE constraint failed: t.a, t.b" into [a b].
func sqliteColumnList(msg string) []string {
	match := sqliteColumns.FindStringSubmatch(msg)
	if match == nil {
		return nil
	}
	parts := strings.Split(match[1], ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if i := strings.LastIndexByte(p, '.'); i >= 0 {
			p = p[i+1:]
		}
		cols = append(cols, p)
	}
	return cols
}

// unique resolves the violated constraint by name, then by columns.
func unique(m *schema.Model, err error, name string, columns []string) error {
	e := &errs.UniqueConstraintViolationError{Model: modelName(m), Constraint: name, Cause: err}
	if m == nil {
		return e
	}
	if name != "" {
		if u, ok := m.ConstraintByName(name); ok {
			e.Constraint, e.Fields = u.Name, u.Fields
			return e
		}
	}
	if len(columns) > 0 {
		if u, ok := m.ConstraintByColumns(columns); ok {
			e.Constraint, e.Fields = u.Name, u.Fields
			return e
		}
		for _, c := range columns {
			e.Fields = append(e.Fields, fieldName(m, c))
		}
	}
	return e
}

func modelName(m *schema.Model) string {
	if m == nil {
		return ""
	}
	return m.Name
}

func fieldName(m *schema.Model, column string) string {
	if m == nil || column == "" {
		return column
	}
	if f, ok := m.FieldByColumn(column); ok {
		return f.Name
	}
	return column
}
