package compiler_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/prisma-engine/internal/compiler"
	"github.com/satishbabariya/prisma-engine/internal/dialect"
	"github.com/satishbabariya/prisma-engine/internal/planner"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/schema"
)

func fields(t *testing.T, m *schema.Model, names ...string) []*schema.Field {
	t.Helper()
	out := make([]*schema.Field, len(names))
	for i, name := range names {
		fd, ok := m.Field(name)
		require.True(t, ok, name)
		out[i] = fd
	}
	return out
}

func TestSelectWithJoin(t *testing.T) {
	c, s := newCompiler(t, dialect.Postgres)
	p := planner.New(c, 0)

	f, err := p.Find(s.MustModel("Booking"), query.FindManyArgs{
		Where:   query.Eq("status", "CONFIRMED"),
		OrderBy: []query.OrderBy{query.Descending("createdAt")},
		Selection: query.Selection{
			Select:  []string{"reference"},
			Include: map[string]*query.Include{"customer": {Selection: query.Selection{Select: []string{"email"}}}},
		},
	})
	require.NoError(t, err)

	limit := uint64(10)
	stmt, err := c.Select(f, compiler.SelectOptions{Limit: &limit, ForUpdate: true})
	require.NoError(t, err)

	cols := strings.Join([]string{
		`"t0"."id" AS "t0__id"`,
		`"t0"."reference" AS "t0__reference"`,
		`"t0"."customerId" AS "t0__customerId"`,
		`"t0"."createdAt" AS "t0__createdAt"`,
		`"t1"."id" AS "t1__id"`,
		`"t1"."email" AS "t1__email"`,
	}, ", ")
	assert.Equal(t, "SELECT "+cols+
		` FROM "Booking" AS "t0" LEFT JOIN "Customer" AS "t1" ON "t1"."id" = "t0"."customerId"`+
		` WHERE "t0"."status" = $1 ORDER BY "t0"."createdAt" DESC, "t0"."id" ASC LIMIT 10 FOR UPDATE`, stmt.SQL)
	assert.Equal(t, []any{"CONFIRMED"}, stmt.Args)
}

func TestSelectSQLiteSkipsLocking(t *testing.T) {
	c, s := newCompiler(t, dialect.SQLite)
	f, err := planner.New(c, 0).Find(s.MustModel("Profile"), query.FindManyArgs{})
	require.NoError(t, err)

	stmt, err := c.Select(f, compiler.SelectOptions{ForUpdate: true})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "t0"."id" AS "t0__id", "t0"."bio" AS "t0__bio", "t0"."customerId" AS "t0__customerId" FROM "Profile" AS "t0" ORDER BY "t0"."id" ASC`, stmt.SQL)
}

func TestAfter(t *testing.T) {
	c, s := newCompiler(t, dialect.SQLite)
	orders, err := planner.ResolveOrder(s.MustModel("Customer"), []query.OrderBy{query.Ascending("name")})
	require.NoError(t, err)

	sql, args, err := c.After("t0", orders, []any{"Bo", int64(4)}, false).ToSql()
	require.NoError(t, err)
	assert.Equal(t, `(("t0"."name" > ?) OR ("t0"."name" = ? AND "t0"."id" > ?))`, sql)
	assert.Equal(t, []any{"Bo", "Bo", int64(4)}, args)

	sql, args, err = c.After("t0", orders, []any{nil, int64(4)}, false).ToSql()
	require.NoError(t, err)
	assert.Equal(t, `(("t0"."name" IS NOT NULL) OR ("t0"."name" IS NULL AND "t0"."id" > ?))`, sql)
	assert.Equal(t, []any{int64(4)}, args)

	sql, _, err = c.After("t0", orders, []any{"Bo", int64(4)}, true).ToSql()
	require.NoError(t, err)
	assert.Equal(t, `((("t0"."name" < ? OR "t0"."name" IS NULL)) OR ("t0"."name" = ? AND "t0"."id" < ?))`, sql)
}

func TestInsert(t *testing.T) {
	c, s := newCompiler(t, dialect.Postgres)
	m := s.MustModel("Customer")

	stmt, err := c.Insert(m, fields(t, m, "email", "name"), [][]any{
		{"a@x.io", nil},
		{"b@x.io", "Bo"},
	}, compiler.InsertOptions{Returning: fields(t, m, "id")})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "Customer" ("email","name") VALUES ($1,$2),($3,$4) RETURNING "id"`, stmt.SQL)
	assert.Equal(t, []any{"a@x.io", nil, "b@x.io", "Bo"}, stmt.Args)

	stmt, err = c.Insert(m, fields(t, m, "email"), [][]any{{"a@x.io"}}, compiler.InsertOptions{SkipDuplicates: true})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "Customer" ("email") VALUES ($1) ON CONFLICT DO NOTHING`, stmt.SQL)
}

func TestInsertMySQL(t *testing.T) {
	c, s := newCompiler(t, dialect.MySQL)
	m := s.MustModel("Customer")

	stmt, err := c.Insert(m, fields(t, m, "email"), [][]any{{"a@x.io"}}, compiler.InsertOptions{
		SkipDuplicates: true,
		Returning:      fields(t, m, "id"),
	})
	require.NoError(t, err)
	assert.Equal(t, "INSERT IGNORE INTO `Customer` (`email`) VALUES (?)", stmt.SQL)
}

func TestInsertDefaults(t *testing.T) {
	c, s := newCompiler(t, dialect.SQLite)
	m := s.MustModel("Profile")

	stmt, err := c.Insert(m, nil, [][]any{{}}, compiler.InsertOptions{Returning: fields(t, m, "id")})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "Profile" DEFAULT VALUES RETURNING "id"`, stmt.SQL)

	_, err = c.Insert(m, nil, [][]any{{}, {}}, compiler.InsertOptions{})
	assert.Error(t, err)
}

func TestUpdateAndDelete(t *testing.T) {
	c, s := newCompiler(t, dialect.Postgres)
	m := s.MustModel("Booking")

	stmt, err := c.Update(m, []compiler.Assignment{
		{Field: fields(t, m, "seats")[0], Op: query.Increment, Value: int64(2)},
		{Field: fields(t, m, "status")[0], Op: query.Set, Value: "CONFIRMED"},
	}, query.Eq("id", 5))
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "Booking" SET "seats" = "seats" + $1, "status" = $2 WHERE "Booking"."id" = $3`, stmt.SQL)
	assert.Equal(t, []any{int64(2), "CONFIRMED", int64(5)}, stmt.Args)

	_, err = c.Update(m, nil, nil)
	assert.Error(t, err)

	stmt, err = c.Delete(m, query.Eq("status", "CANCELLED"))
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "Booking" WHERE "Booking"."status" = $1`, stmt.SQL)
	assert.Equal(t, []any{"CANCELLED"}, stmt.Args)
}

func TestUpsert(t *testing.T) {
	c, s := newCompiler(t, dialect.Postgres)
	customer := s.MustModel("Customer")

	stmt, err := c.Upsert(customer,
		fields(t, customer, "email", "name"), []any{"a@x.io", "Ada"},
		fields(t, customer, "email"),
		[]compiler.Assignment{{Field: fields(t, customer, "name")[0], Op: query.Set, Value: "Ada L"}},
		fields(t, customer, "id", "email"))
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "Customer" ("email","name") VALUES ($1,$2) ON CONFLICT ("email") DO UPDATE SET "name" = $3 RETURNING "id", "email"`, stmt.SQL)
	assert.Equal(t, []any{"a@x.io", "Ada", "Ada L"}, stmt.Args)

	stmt, err = c.Upsert(customer,
		fields(t, customer, "email"), []any{"a@x.io"},
		fields(t, customer, "email"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "Customer" ("email") VALUES ($1) ON CONFLICT ("email") DO UPDATE SET "email" = excluded."email"`, stmt.SQL)

	booking := s.MustModel("Booking")
	stmt, err = c.Upsert(booking,
		fields(t, booking, "reference", "customerId"), []any{"BK-1", int64(1)},
		fields(t, booking, "reference"),
		[]compiler.Assignment{{Field: fields(t, booking, "seats")[0], Op: query.Increment, Value: int64(1)}}, nil)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `DO UPDATE SET "seats" = "Booking"."seats" + $3`)

	my, _ := newCompiler(t, dialect.MySQL)
	_, err = my.Upsert(customer, fields(t, customer, "email"), []any{"a@x.io"}, fields(t, customer, "email"), nil, nil)
	assert.Error(t, err)
}

func TestCountAndAggregate(t *testing.T) {
	c, s := newCompiler(t, dialect.Postgres)
	p := planner.New(c, 0)
	m := s.MustModel("Booking")

	f, err := p.Find(m, query.FindManyArgs{Where: query.Eq("status", "PENDING")})
	require.NoError(t, err)

	stmt, err := c.Count(f, compiler.SelectOptions{})
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "Booking" AS "t0" WHERE "t0"."status" = $1`, stmt.SQL)

	limit := uint64(5)
	stmt, err = c.Count(f, compiler.SelectOptions{Limit: &limit})
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM (SELECT 1 FROM "Booking" AS "t0" WHERE "t0"."status" = $1 ORDER BY "t0"."id" ASC LIMIT 5) AS "__page"`, stmt.SQL)

	aggs, err := compiler.ResolveAggregates(m, query.Aggregates{
		Max:   []string{"createdAt"},
		Count: []string{query.AllRecords, "notes"},
		Sum:   []string{"seats"},
		Avg:   []string{"total"},
	})
	require.NoError(t, err)
	keys := make([]string, len(aggs))
	for i, a := range aggs {
		keys[i] = string(a.Func) + ":" + a.Key() + ":" + string(a.Type())
	}
	assert.Equal(t, []string{
		"_count:_all:BigInt",
		"_count:notes:BigInt",
		"_sum:seats:BigInt",
		"_avg:total:Decimal",
		"_max:createdAt:DateTime",
	}, keys)

	stmt, err = c.Aggregate(f, aggs[:3], compiler.SelectOptions{})
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) AS "_count___all", COUNT("t0"."notes") AS "_count__notes", SUM("t0"."seats") AS "_sum__seats" FROM "Booking" AS "t0" WHERE "t0"."status" = $1`, stmt.SQL)
}

func TestResolveAggregatesErrors(t *testing.T) {
	_, s := newCompiler(t, dialect.Postgres)
	m := s.MustModel("Booking")

	for name, a := range map[string]query.Aggregates{
		"sum of string":   {Sum: []string{"reference"}},
		"all outside cnt": {Max: []string{query.AllRecords}},
		"unknown field":   {Min: []string{"price"}},
		"min of json":     {Min: []string{"meta"}},
	} {
		a := a
		t.Run(name, func(t *testing.T) {
			_, err := compiler.ResolveAggregates(m, a)
			assert.Error(t, err)
		})
	}
}

func TestGroupBy(t *testing.T) {
	c, s := newCompiler(t, dialect.Postgres)
	m := s.MustModel("Booking")

	aggs, err := compiler.ResolveAggregates(m, query.Aggregates{Sum: []string{"seats"}})
	require.NoError(t, err)
	by := fields(t, m, "status")
	take := uint64(2)

	stmt, err := c.GroupBy(compiler.GroupQuery{
		Model:      m,
		By:         by,
		Aggregates: aggs,
		Having:     query.Leaf{Field: "seats", Op: query.Gt, Value: 3, Aggregate: query.SumAgg},
		OrderBy: []compiler.GroupOrder{
			{Order: planner.Order{Field: by[0], NullsFirst: true}},
		},
		Limit: &take,
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "t0"."status" AS "status", SUM("t0"."seats") AS "_sum__seats" FROM "Booking" AS "t0" GROUP BY "t0"."status" HAVING SUM("t0"."seats") > $1 ORDER BY "t0"."status" ASC LIMIT 2`, stmt.SQL)
	assert.Equal(t, []any{int64(3)}, stmt.Args)

	_, err = c.GroupBy(compiler.GroupQuery{Model: m, By: by, Having: query.Eq("reference", "x")})
	assert.Error(t, err)
}
