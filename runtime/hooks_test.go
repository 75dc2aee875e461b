package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/runtime"
)

func TestHooksRunAroundOperations(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	var events []string
	record := func(label string) runtime.HookFunc {
		return func(hc *runtime.HookContext) error {
			events = append(events, label+" "+hc.Model+"."+hc.Operation)
			return nil
		}
	}
	h := c.Hooks()
	h.OnBeforeWrite("Customer", record("before"))
	h.OnAfterWrite("Customer", record("after"))
	h.OnBeforeRead(runtime.AllModels, record("read"))
	h.OnBeforeDelete("Customer", record("delete"))

	createCustomer(t, c, "h@example.com", nil)
	_, err := c.Model("Booking").Count(ctx, query.CountArgs{})
	require.NoError(t, err)
	_, err = c.Model("Customer").DeleteMany(ctx, query.DeleteManyArgs{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"before Customer.create",
		"after Customer.create",
		"read Booking.count",
		"delete Customer.deleteMany",
	}, events)
}

func TestBeforeHookAborts(t *testing.T) {
	c, _ := newClient(t)
	denied := errors.New("read only")
	c.Hooks().OnBeforeWrite(runtime.AllModels, func(hc *runtime.HookContext) error {
		args, ok := hc.Args.(query.CreateArgs)
		if ok && args.Data["email"] == "blocked@example.com" {
			return denied
		}
		return nil
	})

	_, err := c.Model("Customer").Create(context.Background(), query.CreateArgs{Data: query.Data{"email": "blocked@example.com"}})
	assert.ErrorIs(t, err, denied)
	assert.Zero(t, count(t, c, "Customer", nil))

	createCustomer(t, c, "fine@example.com", nil)
	assert.Equal(t, int64(1), count(t, c, "Customer", nil))
}

func TestAfterHookSeesResultAndCanFail(t *testing.T) {
	c, _ := newClient(t)
	var seen query.Record
	audit := errors.New("audit failed")
	c.Hooks().OnAfterWrite("Customer", func(hc *runtime.HookContext) error {
		require.NoError(t, hc.Error)
		seen, _ = hc.Result.(query.Record)
		return audit
	})

	rec, err := c.Model("Customer").Create(context.Background(), query.CreateArgs{Data: query.Data{"email": "a@example.com"}})
	assert.ErrorIs(t, err, audit)
	assert.Nil(t, rec)
	require.NotNil(t, seen)
	assert.Equal(t, "a@example.com", seen["email"])
}

func TestClearHooks(t *testing.T) {
	c, _ := newClient(t)
	calls := 0
	hook := func(*runtime.HookContext) error { calls++; return nil }
	c.Hooks().OnBeforeRead("Customer", hook)
	c.Hooks().OnBeforeRead("Booking", hook)

	count(t, c, "Customer", nil)
	c.Hooks().ClearModel("Customer")
	count(t, c, "Customer", nil)
	count(t, c, "Booking", nil)
	c.Hooks().Clear()
	count(t, c, "Booking", nil)

	assert.Equal(t, 2, calls)
}
