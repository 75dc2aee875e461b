package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/internal/compiler"
	"github.com/satishbabariya/prisma-engine/internal/dialect"
	"github.com/satishbabariya/prisma-engine/internal/testutil"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/schema"
)

func newCompiler(t *testing.T, p dialect.Provider) (*compiler.Compiler, *schema.Schema) {
	t.Helper()
	s := testutil.Schema(t)
	d, err := dialect.New(p)
	require.NoError(t, err)
	return compiler.New(s, d), s
}

func TestFilter(t *testing.T) {
	c, s := newCompiler(t, dialect.Postgres)

	tests := []struct {
		name     string
		model    string
		filter   query.Filter
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "equals",
			model:    "Customer",
			filter:   query.Eq("email", "ada@example.com"),
			wantSQL:  `"t0"."email" = ?`,
			wantArgs: []any{"ada@example.com"},
		},
		{
			name:    "equals null",
			model:   "Customer",
			filter:  query.Eq("name", nil),
			wantSQL: `"t0"."name" IS NULL`,
		},
		{
			name:    "not equals null",
			model:   "Customer",
			filter:  query.Ne("name", nil),
			wantSQL: `"t0"."name" IS NOT NULL`,
		},
		{
			name:     "not equals",
			model:    "Customer",
			filter:   query.Ne("name", "Ada"),
			wantSQL:  `"t0"."name" <> ?`,
			wantArgs: []any{"Ada"},
		},
		{
			name:     "and",
			model:    "Customer",
			filter:   query.And{query.Eq("tier", "GOLD"), query.Where("id", query.Gte, 10)},
			wantSQL:  `("t0"."tier" = ? AND "t0"."id" >= ?)`,
			wantArgs: []any{"GOLD", int64(10)},
		},
		{
			name:    "empty and",
			model:   "Customer",
			filter:  query.And{},
			wantSQL: `(1=1)`,
		},
		{
			name:    "empty or",
			model:   "Customer",
			filter:  query.Or{},
			wantSQL: `(1=0)`,
		},
		{
			name:     "not",
			model:    "Customer",
			filter:   query.Not{Filter: query.Eq("name", "Ada")},
			wantSQL:  `NOT COALESCE(("t0"."name" = ?), FALSE)`,
			wantArgs: []any{"Ada"},
		},
		{
			name:     "in",
			model:    "Customer",
			filter:   query.OneOf("id", 1, 2),
			wantSQL:  `"t0"."id" IN (?, ?)`,
			wantArgs: []any{int64(1), int64(2)},
		},
		{
			name:    "empty in",
			model:   "Customer",
			filter:  query.OneOf("id"),
			wantSQL: `1=0`,
		},
		{
			name:    "empty not in",
			model:   "Customer",
			filter:  query.NoneOf("id"),
			wantSQL: `1=1`,
		},
		{
			name:     "in insensitive",
			model:    "Customer",
			filter:   query.OneOf("email", "A@X.IO").Fold(),
			wantSQL:  `LOWER("t0"."email") IN (LOWER(?))`,
			wantArgs: []any{"A@X.IO"},
		},
		{
			name:    "empty contains",
			model:   "Customer",
			filter:  query.HasSubstring("email", ""),
			wantSQL: `"t0"."email" IS NOT NULL`,
		},
		{
			name:     "starts with insensitive",
			model:    "Customer",
			filter:   query.HasPrefix("email", "ad").Fold(),
			wantSQL:  `"t0"."email" ILIKE ?`,
			wantArgs: []any{"ad%"},
		},
		{
			name:     "equals insensitive",
			model:    "Customer",
			filter:   query.Eq("email", "Ada@X.io").Fold(),
			wantSQL:  `LOWER("t0"."email") = LOWER(?)`,
			wantArgs: []any{"Ada@X.io"},
		},
		{
			name:    "is null",
			model:   "Customer",
			filter:  query.Null("name"),
			wantSQL: `"t0"."name" IS NULL`,
		},
		{
			name:    "is not null",
			model:   "Customer",
			filter:  query.NotNull("name"),
			wantSQL: `"t0"."name" IS NOT NULL`,
		},
		{
			name:     "decimal",
			model:    "Booking",
			filter:   query.Where("total", query.Gt, "99.90"),
			wantSQL:  `"t0"."total" > ?`,
			wantArgs: []any{"99.90"},
		},
		{
			name:     "some",
			model:    "Customer",
			filter:   query.SomeOf("bookings", query.Eq("status", "CONFIRMED")),
			wantSQL:  `EXISTS (SELECT 1 FROM "Booking" AS "r0" WHERE "r0"."customerId" = "t0"."id" AND "r0"."status" = ?)`,
			wantArgs: []any{"CONFIRMED"},
		},
		{
			name:     "none",
			model:    "Customer",
			filter:   query.NoneOfRelated("bookings", query.Eq("status", "CANCELLED")),
			wantSQL:  `NOT EXISTS (SELECT 1 FROM "Booking" AS "r0" WHERE "r0"."customerId" = "t0"."id" AND "r0"."status" = ?)`,
			wantArgs: []any{"CANCELLED"},
		},
		{
			name:     "every",
			model:    "Customer",
			filter:   query.EveryOf("bookings", query.Eq("status", "CONFIRMED")),
			wantSQL:  `NOT EXISTS (SELECT 1 FROM "Booking" AS "r0" WHERE "r0"."customerId" = "t0"."id" AND NOT COALESCE(("r0"."status" = ?), FALSE))`,
			wantArgs: []any{"CONFIRMED"},
		},
		{
			name:    "every without filter",
			model:   "Customer",
			filter:  query.EveryOf("bookings", nil),
			wantSQL: `1=1`,
		},
		{
			name:    "some without filter",
			model:   "Customer",
			filter:  query.SomeOf("bookings", nil),
			wantSQL: `EXISTS (SELECT 1 FROM "Booking" AS "r0" WHERE "r0"."customerId" = "t0"."id")`,
		},
		{
			name:     "is",
			model:    "Booking",
			filter:   query.RelatedIs("customer", query.Eq("tier", "GOLD")),
			wantSQL:  `EXISTS (SELECT 1 FROM "Customer" AS "r0" WHERE "r0"."id" = "t0"."customerId" AND "r0"."tier" = ?)`,
			wantArgs: []any{"GOLD"},
		},
		{
			name:    "is not on inverse side",
			model:   "Customer",
			filter:  query.RelatedIsNot("profile", nil),
			wantSQL: `NOT EXISTS (SELECT 1 FROM "Profile" AS "r0" WHERE "r0"."customerId" = "t0"."id")`,
		},
		{
			name:     "nested relations",
			model:    "Customer",
			filter:   query.SomeOf("bookings", query.SomeOf("payments", query.Eq("method", "CASH"))),
			wantSQL:  `EXISTS (SELECT 1 FROM "Booking" AS "r0" WHERE "r0"."customerId" = "t0"."id" AND EXISTS (SELECT 1 FROM "Payment" AS "r1" WHERE "r1"."bookingId" = "r0"."id" AND "r1"."method" = ?))`,
			wantArgs: []any{"CASH"},
		},
		{
			name:     "json path",
			model:    "Booking",
			filter:   query.JSONPath("meta", []string{"seat"}, query.Equals, "12A"),
			wantSQL:  `jsonb_extract_path_text("t0"."meta", ?) = ?`,
			wantArgs: []any{"seat", "12A"},
		},
		{
			name:     "json equals",
			model:    "Booking",
			filter:   query.Eq("meta", map[string]bool{"vip": true}),
			wantSQL:  `"t0"."meta" = CAST(? AS jsonb)`,
			wantArgs: []any{`{"vip":true}`},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			pred, err := c.Filter(s.MustModel(tt.model), "t0", tt.filter)
			require.NoError(t, err)
			sql, args, err := pred.ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			if tt.wantArgs == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.wantArgs, args)
			}
		})
	}
}

func TestFilterSQLite(t *testing.T) {
	c, s := newCompiler(t, dialect.SQLite)

	pred, err := c.Filter(s.MustModel("Customer"), "t0", query.Or{
		query.HasSuffix("email", ".io"),
		query.HasSubstring("name", "da"),
	})
	require.NoError(t, err)
	sql, args, err := pred.ToSql()
	require.NoError(t, err)
	assert.Equal(t, `(substr("t0"."email", -length(?)) = ? OR instr("t0"."name", ?) > 0)`, sql)
	assert.Equal(t, []any{".io", ".io", "da"}, args)
}

func TestFilterErrors(t *testing.T) {
	c, s := newCompiler(t, dialect.Postgres)

	tests := []struct {
		name   string
		model  string
		filter query.Filter
	}{
		{"null on required field", "Customer", query.Eq("email", nil)},
		{"unknown field", "Customer", query.Eq("age", 30)},
		{"contains on int", "Booking", query.Where("seats", query.Contains, "1")},
		{"unknown enum value", "Customer", query.Eq("tier", "PLATINUM")},
		{"insensitive int", "Booking", query.Eq("seats", 1).Fold()},
		{"wrong value type", "Booking", query.Eq("seats", "two")},
		{"leaf on relation", "Customer", query.Eq("bookings", 1)},
		{"some on to-one", "Booking", query.SomeOf("customer", nil)},
		{"is on to-many", "Customer", query.RelatedIs("bookings", nil)},
		{"relation filter on scalar", "Customer", query.SomeOf("email", nil)},
		{"aggregate outside having", "Booking", query.Leaf{Field: "seats", Op: query.Gt, Value: 1, Aggregate: query.SumAgg}},
		{"path on non-json", "Booking", query.JSONPath("notes", []string{"a"}, query.Equals, "x")},
		{"in with null", "Customer", query.OneOf("id", 1, nil)},
		{"in with scalar", "Customer", query.Where("id", query.In, 1)},
		{"isNull with string", "Customer", query.Where("name", query.IsNull, "yes")},
		{"lt with null", "Booking", query.Where("seats", query.Lt, nil)},
		{"order on json", "Booking", query.Where("meta", query.Gt, "{}")},
		{"unknown operator", "Booking", query.Where("seats", "between", 1)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Filter(s.MustModel(tt.model), "t0", tt.filter)
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrSchemaMismatch)
		})
	}
}

func TestValidateFilter(t *testing.T) {
	c, s := newCompiler(t, dialect.MySQL)
	m := s.MustModel("Booking")

	assert.NoError(t, c.ValidateFilter(m, query.And{query.Eq("status", "PENDING"), query.Not{Filter: query.Null("notes")}}))
	assert.ErrorIs(t, c.ValidateFilter(m, query.Eq("status", "LOST")), errs.ErrSchemaMismatch)
}
