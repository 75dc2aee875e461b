package runtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/runtime"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 123456000, time.UTC)

type ClientSuite struct {
	suite.Suite
	ctx    context.Context
	client *runtime.Client
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.ctx = context.Background()
	s.client, _ = newClient(s.T(), runtime.WithClock(func() time.Time { return fixedNow }))
}

func (s *ClientSuite) TestCreateRoundTrip() {
	customer := createCustomer(s.T(), s.client, "ada@example.com", query.Data{"name": "Ada", "tier": "GOLD"})
	s.Equal("ada@example.com", customer["email"])
	s.Equal("GOLD", customer["tier"])
	s.Equal(fixedNow, customer["createdAt"])
	s.Equal(fixedNow, customer["updatedAt"])

	created := time.Date(2024, 12, 24, 18, 30, 15, 250000000, time.UTC)
	total, _, err := apd.NewFromString("149.90")
	s.Require().NoError(err)
	booking, err := s.client.Model("Booking").Create(s.ctx, query.CreateArgs{Data: query.Data{
		"reference":  "BK-1",
		"customerId": customer["id"],
		"seats":      3,
		"total":      total,
		"status":     "CONFIRMED",
		"notes":      "window seat",
		"meta":       map[string]any{"vip": true, "tags": []string{"late"}},
		"createdAt":  created,
	}})
	s.Require().NoError(err)

	found, err := s.client.Model("Booking").FindUnique(s.ctx, query.FindUniqueArgs{
		Where: query.UniqueWhere{"reference": "BK-1"},
	})
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal(booking, found)

	s.Equal(customer["id"], found["customerId"])
	s.Equal(int64(3), found["seats"])
	s.Equal(0, found["total"].(*apd.Decimal).Cmp(total))
	s.Equal("CONFIRMED", found["status"])
	s.Equal("window seat", found["notes"])
	s.JSONEq(`{"vip":true,"tags":["late"]}`, string(found["meta"].(json.RawMessage)))
	s.True(created.Equal(found["createdAt"].(time.Time)))
}

func (s *ClientSuite) TestDefaults() {
	customer := createCustomer(s.T(), s.client, "bo@example.com", nil)
	s.Equal("BASIC", customer["tier"])
	s.Nil(customer["name"])

	booking := createBooking(s.T(), s.client, customer["id"], "BK-2", nil)
	s.Equal(int64(1), booking["seats"])
	s.Equal("PENDING", booking["status"])
	s.Equal(0, booking["total"].(*apd.Decimal).Cmp(apd.New(0, 0)))

	payment, err := s.client.Model("Payment").Create(s.ctx, query.CreateArgs{Data: query.Data{
		"bookingId": booking["id"],
		"amount":    "10.50",
	}})
	s.Require().NoError(err)
	s.Len(payment["id"], 36)
	s.Equal("CARD", payment["method"])
}

func (s *ClientSuite) TestIncludeCustomerScenario() {
	customer := createCustomer(s.T(), s.client, "a@x.com", nil)
	booking := createBooking(s.T(), s.client, customer["id"], "BK-A", query.Data{"status": "PENDING"})

	found, err := s.client.Model("Booking").FindUnique(s.ctx, query.FindUniqueArgs{
		Where:     query.UniqueWhere{"id": booking["id"]},
		Selection: query.Selection{Include: map[string]*query.Include{"customer": {}}},
	})
	s.Require().NoError(err)
	s.Require().NotNil(found)
	nested, ok := found["customer"].(query.Record)
	s.Require().True(ok)
	s.Equal("a@x.com", nested["email"])
	s.Equal("BK-A", found["reference"])
}

func (s *ClientSuite) TestUpdateManyThenCount() {
	customer := createCustomer(s.T(), s.client, "c@example.com", nil)
	for _, ref := range []string{"P-1", "P-2", "P-3"} {
		createBooking(s.T(), s.client, customer["id"], ref, nil)
	}
	createBooking(s.T(), s.client, customer["id"], "C-1", query.Data{"status": "CANCELLED"})

	res, err := s.client.Model("Booking").UpdateMany(s.ctx, query.UpdateManyArgs{
		Where: query.Eq("status", "PENDING"),
		Data:  query.Data{"status": "CONFIRMED"},
	})
	s.Require().NoError(err)
	s.Equal(int64(3), res.Count)
	s.Equal(res.Count, count(s.T(), s.client, "Booking", query.Eq("status", "CONFIRMED")))
}

func (s *ClientSuite) TestOrThrowVariants() {
	rec, err := s.client.Model("Customer").FindUnique(s.ctx, query.FindUniqueArgs{Where: query.UniqueWhere{"id": 404}})
	s.NoError(err)
	s.Nil(rec)

	rec, err = s.client.Model("Customer").FindFirst(s.ctx, query.FindManyArgs{Where: query.Eq("email", "none@example.com")})
	s.NoError(err)
	s.Nil(rec)

	_, err = s.client.Model("Customer").FindUniqueOrThrow(s.ctx, query.FindUniqueArgs{Where: query.UniqueWhere{"id": 404}})
	var notFound *errs.RecordNotFoundError
	s.Require().ErrorAs(err, &notFound)
	s.Equal("Customer", notFound.Model)
	s.Equal("findUniqueOrThrow", notFound.Operation)

	_, err = s.client.Model("Customer").FindFirstOrThrow(s.ctx, query.FindManyArgs{})
	s.ErrorIs(err, errs.ErrRecordNotFound)

	createCustomer(s.T(), s.client, "d@example.com", nil)
	rec, err = s.client.Model("Customer").FindFirstOrThrow(s.ctx, query.FindManyArgs{})
	s.NoError(err)
	s.Equal("d@example.com", rec["email"])
}

func (s *ClientSuite) TestSelectOmitAndHiddenKeys() {
	customer := createCustomer(s.T(), s.client, "e@example.com", query.Data{"name": "Eve"})
	createBooking(s.T(), s.client, customer["id"], "BK-E", nil)

	recs, err := s.client.Model("Booking").FindMany(s.ctx, query.FindManyArgs{
		Selection: query.Selection{
			Select: []string{"reference", "customer"},
			Include: map[string]*query.Include{
				"customer": {Selection: query.Selection{Omit: []string{"createdAt", "updatedAt", "id"}}},
			},
		},
	})
	s.Require().NoError(err)
	s.Equal([]query.Record{{
		"reference": "BK-E",
		"customer":  query.Record{"email": "e@example.com", "name": "Eve", "tier": "BASIC"},
	}}, recs)

	_, err = s.client.Model("Booking").FindMany(s.ctx, query.FindManyArgs{
		Selection: query.Selection{Select: []string{"reference"}, Omit: []string{"notes"}},
	})
	s.ErrorIs(err, errs.ErrInvalidSelection)
}

func (s *ClientSuite) TestToManyIncludeIsPaginatedPerParent() {
	for i, email := range []string{"f@example.com", "g@example.com"} {
		c := createCustomer(s.T(), s.client, email, nil)
		for j := 0; j < 4; j++ {
			createBooking(s.T(), s.client, c["id"], email[:1]+string(rune('0'+j)), query.Data{"seats": (i + 1) * (j + 1)})
		}
	}
	recs, err := s.client.Model("Customer").FindMany(s.ctx, query.FindManyArgs{
		OrderBy: []query.OrderBy{query.Ascending("email")},
		Selection: query.Selection{
			Select: []string{"email", "bookings"},
			Include: map[string]*query.Include{
				"bookings": {
					OrderBy:   []query.OrderBy{query.Descending("seats")},
					Take:      query.Int(2),
					Selection: query.Selection{Select: []string{"reference", "seats"}},
				},
			},
		},
	})
	s.Require().NoError(err)
	s.Require().Len(recs, 2)
	s.Equal([]query.Record{{"reference": "f3", "seats": int64(4)}, {"reference": "f2", "seats": int64(3)}}, recs[0]["bookings"])
	s.Equal([]query.Record{{"reference": "g3", "seats": int64(8)}, {"reference": "g2", "seats": int64(6)}}, recs[1]["bookings"])
}

func (s *ClientSuite) TestDistinct() {
	c := createCustomer(s.T(), s.client, "h@example.com", nil)
	for i, status := range []string{"PENDING", "CONFIRMED", "PENDING", "CANCELLED", "CONFIRMED"} {
		createBooking(s.T(), s.client, c["id"], "D-"+string(rune('a'+i)), query.Data{"status": status})
	}
	recs, err := s.client.Model("Booking").FindMany(s.ctx, query.FindManyArgs{
		Distinct:  []string{"status"},
		OrderBy:   []query.OrderBy{query.Ascending("status")},
		Selection: query.Selection{Select: []string{"status", "reference"}},
	})
	s.Require().NoError(err)
	s.Equal([]query.Record{
		{"status": "CANCELLED", "reference": "D-d"},
		{"status": "CONFIRMED", "reference": "D-b"},
		{"status": "PENDING", "reference": "D-a"},
	}, recs)
}

func (s *ClientSuite) TestSchemaMismatch() {
	_, err := s.client.Model("Invoice").FindMany(s.ctx, query.FindManyArgs{})
	s.ErrorIs(err, errs.ErrSchemaMismatch)

	_, err = s.client.Model("Customer").FindMany(s.ctx, query.FindManyArgs{Where: query.Eq("nickname", "x")})
	var mismatch *errs.SchemaMismatchError
	s.Require().ErrorAs(err, &mismatch)
	s.Equal("Customer", mismatch.Model)
	s.Equal("nickname", mismatch.Field)

	_, err = s.client.Model("Customer").Create(s.ctx, query.CreateArgs{Data: query.Data{"name": "no email"}})
	s.ErrorIs(err, errs.ErrSchemaMismatch)

	_, err = s.client.Model("Customer").Create(s.ctx, query.CreateArgs{Data: query.Data{"email": "x@example.com", "tier": "PLATINUM"}})
	s.ErrorIs(err, errs.ErrSchemaMismatch)
	s.Zero(count(s.T(), s.client, "Customer", nil))
}

func (s *ClientSuite) TestUniqueViolationCarriesConstraint() {
	createCustomer(s.T(), s.client, "dup@example.com", nil)
	_, err := s.client.Model("Customer").Create(s.ctx, query.CreateArgs{Data: query.Data{"email": "dup@example.com"}})

	var unique *errs.UniqueConstraintViolationError
	s.Require().ErrorAs(err, &unique)
	s.Equal("Customer", unique.Model)
	s.Equal("Customer_email_key", unique.Constraint)
	s.Equal([]string{"email"}, unique.Fields)
	s.Equal("P2002", errs.Code(err))
}

func (s *ClientSuite) TestExplainAndPlanCache() {
	args := query.FindManyArgs{
		Where:     query.Eq("tier", "GOLD"),
		Selection: query.Selection{Include: map[string]*query.Include{"bookings": {}}},
	}
	plan, err := s.client.Explain("Customer", args)
	s.Require().NoError(err)
	s.Contains(plan, "root Customer AS t0")
	s.Contains(plan, "batch bookings (many) Booking")

	for i := 0; i < 3; i++ {
		_, err := s.client.Model("Customer").FindMany(s.ctx, args)
		s.Require().NoError(err)
	}
	stats := s.client.CacheStats()
	s.Equal(int64(2), stats.Hits)
	s.Equal(int64(1), stats.Misses)

	_, err = s.client.Explain("Invoice", args)
	s.ErrorIs(err, errs.ErrSchemaMismatch)
}

func (s *ClientSuite) TestDecode() {
	c := createCustomer(s.T(), s.client, "i@example.com", query.Data{"name": "Ivy"})
	createBooking(s.T(), s.client, c["id"], "BK-I", query.Data{"seats": 2})

	type booking struct {
		Reference string `db:"reference"`
		Seats     int
	}
	var out struct {
		ID       int64     `db:"id"`
		Email    string    `db:"email"`
		Name     *string   `db:"name"`
		Bookings []booking `db:"bookings"`
	}
	rec, err := s.client.Model("Customer").FindUniqueOrThrow(s.ctx, query.FindUniqueArgs{
		Where:     query.UniqueWhere{"email": "i@example.com"},
		Selection: query.Selection{Include: map[string]*query.Include{"bookings": {}}},
	})
	s.Require().NoError(err)
	s.Require().NoError(runtime.Decode(rec, &out))
	s.Equal(c["id"], out.ID)
	s.Equal("Ivy", *out.Name)
	s.Equal([]booking{{Reference: "BK-I", Seats: 2}}, out.Bookings)
}

func TestSelectionTooDeep(t *testing.T) {
	c, _ := newClient(t, runtime.WithMaxDepth(1))
	_, err := c.Model("Customer").FindMany(context.Background(), query.FindManyArgs{
		Selection: query.Selection{Include: map[string]*query.Include{
			"bookings": {Selection: query.Selection{Include: map[string]*query.Include{"payments": {}}}},
		}},
	})
	var deep *errs.SelectionTooDeepError
	require.ErrorAs(t, err, &deep)
	assert.Equal(t, 1, deep.Max)
}

func TestCloseIsIdempotent(t *testing.T) {
	c, db := newClient(t)
	require.NoError(t, c.Ping(context.Background()))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	// the caller's handle stays open
	assert.NoError(t, db.Ping())
}

func TestNewClientRejectsNilSchema(t *testing.T) {
	_, db := newClient(t)
	_, err := runtime.NewClient(db, runtime.SQLite, nil)
	assert.Error(t, err)

	_, err = runtime.NewClient(db, runtime.Provider("oracle"), nil)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, errs.ErrSchemaMismatch))
}
