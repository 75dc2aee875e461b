package runtime_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/prisma-engine/internal/logging"
	"github.com/satishbabariya/prisma-engine/internal/testutil"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/runtime"
)

// newClient returns a client over a fresh SQLite database holding the
// booking tables.
func newClient(t testing.TB, opts ...runtime.Option) (*runtime.Client, *sql.DB) {
	t.Helper()
	db := testutil.OpenSQLite(t)
	opts = append([]runtime.Option{runtime.WithLogger(logging.Discard())}, opts...)
	c, err := runtime.NewClient(db, runtime.SQLite, testutil.Schema(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, db
}

func createCustomer(t testing.TB, c *runtime.Client, email string, data query.Data) query.Record {
	t.Helper()
	d := query.Data{"email": email}
	for k, v := range data {
		d[k] = v
	}
	rec, err := c.Model("Customer").Create(context.Background(), query.CreateArgs{Data: d})
	require.NoError(t, err)
	return rec
}

func createBooking(t testing.TB, c *runtime.Client, customerID any, reference string, data query.Data) query.Record {
	t.Helper()
	d := query.Data{"reference": reference, "customerId": customerID}
	for k, v := range data {
		d[k] = v
	}
	rec, err := c.Model("Booking").Create(context.Background(), query.CreateArgs{Data: d})
	require.NoError(t, err)
	return rec
}

func count(t testing.TB, c *runtime.Client, model string, where query.Filter) int64 {
	t.Helper()
	n, err := c.Model(model).Count(context.Background(), query.CountArgs{Where: where})
	require.NoError(t, err)
	return n
}

func references(recs []query.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i], _ = r["reference"].(string)
	}
	return out
}
