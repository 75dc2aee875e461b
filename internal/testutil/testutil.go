// Package testutil holds the booking schema and SQLite databases the test
// suites run against.
package testutil

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/prisma-engine/schema"
)

// Schema builds the booking schema:
//
//	Customer 1-n Booking  (Booking.customer, onDelete Cascade)
//	Customer 1-1 Profile  (Profile.customer, onDelete SetNull)
//	Booking  1-n Payment  (Payment.booking,  onDelete Restrict)
func Schema(t testing.TB) *schema.Schema {
	t.Helper()
	s, err := BuildSchema()
	require.NoError(t, err)
	return s
}

// BuildSchema builds the booking schema.
func BuildSchema() (*schema.Schema, error) {
	customer := &schema.Model{
		Name: "Customer",
		Fields: []*schema.Field{
			{Name: "id", Type: schema.Int, IsID: true, Default: &schema.Default{Kind: schema.DefaultAutoincrement}},
			{Name: "email", Type: schema.String, Unique: true},
			{Name: "name", Type: schema.String, Nullable: true},
			{Name: "tier", Type: schema.Enum, EnumValues: []string{"BASIC", "GOLD"}, Default: &schema.Default{Kind: schema.DefaultValue, Value: "BASIC"}},
			{Name: "createdAt", Type: schema.DateTime, Default: &schema.Default{Kind: schema.DefaultNow}},
			{Name: "updatedAt", Type: schema.DateTime, UpdatedAt: true},
		},
		Relations: []*schema.Relation{
			{Name: "bookings", Target: "Booking", Cardinality: schema.Many},
			{Name: "profile", Target: "Profile", Cardinality: schema.One},
		},
	}
	profile := &schema.Model{
		Name: "Profile",
		Fields: []*schema.Field{
			{Name: "id", Type: schema.Int, IsID: true, Default: &schema.Default{Kind: schema.DefaultAutoincrement}},
			{Name: "bio", Type: schema.String, Nullable: true},
			{Name: "customerId", Type: schema.Int, Nullable: true, Unique: true},
		},
		Relations: []*schema.Relation{
			{Name: "customer", Target: "Customer", Fields: []string{"customerId"}, References: []string{"id"}, OnDelete: schema.SetNull},
		},
	}
	booking := &schema.Model{
		Name: "Booking",
		Fields: []*schema.Field{
			{Name: "id", Type: schema.Int, IsID: true, Default: &schema.Default{Kind: schema.DefaultAutoincrement}},
			{Name: "reference", Type: schema.String, Unique: true},
			{Name: "customerId", Type: schema.Int},
			{Name: "seats", Type: schema.Int, Default: &schema.Default{Kind: schema.DefaultValue, Value: 1}},
			{Name: "total", Type: schema.Decimal, Default: &schema.Default{Kind: schema.DefaultValue, Value: "0"}},
			{Name: "status", Type: schema.Enum, EnumValues: []string{"PENDING", "CONFIRMED", "CANCELLED"}, Default: &schema.Default{Kind: schema.DefaultValue, Value: "PENDING"}},
			{Name: "notes", Type: schema.String, Nullable: true},
			{Name: "meta", Type: schema.Json, Nullable: true},
			{Name: "createdAt", Type: schema.DateTime, Default: &schema.Default{Kind: schema.DefaultNow}},
		},
		Relations: []*schema.Relation{
			{Name: "customer", Target: "Customer", Fields: []string{"customerId"}, References: []string{"id"}, OnDelete: schema.Cascade},
			{Name: "payments", Target: "Payment", Cardinality: schema.Many},
		},
	}
	payment := &schema.Model{
		Name: "Payment",
		Fields: []*schema.Field{
			{Name: "id", Type: schema.String, IsID: true, Default: &schema.Default{Kind: schema.DefaultUUID}},
			{Name: "bookingId", Type: schema.Int},
			{Name: "amount", Type: schema.Decimal},
			{Name: "method", Type: schema.Enum, EnumValues: []string{"CARD", "CASH"}, Default: &schema.Default{Kind: schema.DefaultValue, Value: "CARD"}},
			{Name: "paidAt", Type: schema.DateTime, Nullable: true},
		},
		Relations: []*schema.Relation{
			{Name: "booking", Target: "Booking", Fields: []string{"bookingId"}, References: []string{"id"}, OnDelete: schema.Restrict},
		},
	}
	return schema.Build("1.0", customer, profile, booking, payment)
}

// SQLiteDDL creates the tables of the booking schema.
var SQLiteDDL = []string{
	`CREATE TABLE "Customer" (
		"id" INTEGER PRIMARY KEY AUTOINCREMENT,
		"email" TEXT NOT NULL UNIQUE,
		"name" TEXT,
		"tier" TEXT NOT NULL DEFAULT 'BASIC',
		"createdAt" DATETIME NOT NULL,
		"updatedAt" DATETIME NOT NULL
	)`,
	`CREATE TABLE "Profile" (
		"id" INTEGER PRIMARY KEY AUTOINCREMENT,
		"bio" TEXT,
		"customerId" INTEGER UNIQUE REFERENCES "Customer"("id")
	)`,
	`CREATE TABLE "Booking" (
		"id" INTEGER PRIMARY KEY AUTOINCREMENT,
		"reference" TEXT NOT NULL UNIQUE,
		"customerId" INTEGER NOT NULL REFERENCES "Customer"("id"),
		"seats" INTEGER NOT NULL DEFAULT 1,
		"total" DECIMAL(10,2) NOT NULL DEFAULT 0,
		"status" TEXT NOT NULL DEFAULT 'PENDING',
		"notes" TEXT,
		"meta" TEXT,
		"createdAt" DATETIME NOT NULL
	)`,
	`CREATE TABLE "Payment" (
		"id" TEXT PRIMARY KEY,
		"bookingId" INTEGER NOT NULL REFERENCES "Booking"("id"),
		"amount" DECIMAL(10,2) NOT NULL,
		"method" TEXT NOT NULL DEFAULT 'CARD',
		"paidAt" DATETIME
	)`,
}

// OpenSQLite creates a file database in a temporary directory with the
// booking tables. Writers take the database lock when their transaction
// begins, so concurrent writers queue instead of deadlocking.
func OpenSQLite(t testing.TB) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.db")
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=10000&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range SQLiteDDL {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}
