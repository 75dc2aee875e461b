package cache

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/prisma-engine/internal/planner"
	"github.com/satishbabariya/prisma-engine/query"
)

func TestKey(t *testing.T) {
	a := query.FindManyArgs{Where: query.Eq("email", "ada@example.com"), Take: query.Int(5)}
	b := query.FindManyArgs{Where: query.Eq("email", "ada@example.com"), Take: query.Int(5)}
	c := query.FindManyArgs{Where: query.Eq("email", "bo@example.com"), Take: query.Int(5)}

	ka, ok := Key("Customer", "findMany", a)
	require.True(t, ok)
	kb, _ := Key("Customer", "findMany", b)
	kc, _ := Key("Customer", "findMany", c)
	kd, _ := Key("Customer", "findFirst", a)
	ke, _ := Key("Booking", "findMany", a)

	assert.Equal(t, ka, kb)
	assert.NotEqual(t, ka, kc)
	assert.NotEqual(t, ka, kd)
	assert.NotEqual(t, ka, ke)

	_, ok = Key("Customer", "findMany", query.FindManyArgs{Where: query.Eq("meta", make(chan int))})
	assert.False(t, ok)
}

func TestGetOrBuild(t *testing.T) {
	plans, err := New(2)
	require.NoError(t, err)

	var builds atomic.Int32
	build := func() (*planner.Fetch, error) {
		builds.Add(1)
		return &planner.Fetch{Alias: "t0"}, nil
	}

	f1, err := plans.GetOrBuild("k1", build)
	require.NoError(t, err)
	f2, err := plans.GetOrBuild("k1", build)
	require.NoError(t, err)
	assert.Same(t, f1, f2)
	assert.Equal(t, int32(1), builds.Load())

	stats := plans.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestGetOrBuildDoesNotCacheErrors(t *testing.T) {
	plans, err := New(0)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = plans.GetOrBuild("k", func() (*planner.Fetch, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	_, ok := plans.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, plans.Stats().Size)
}

func TestEvictionAndPurge(t *testing.T) {
	plans, err := New(2)
	require.NoError(t, err)

	plans.Add("a", &planner.Fetch{})
	plans.Add("b", &planner.Fetch{})
	plans.Add("c", &planner.Fetch{})

	_, ok := plans.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 2, plans.Stats().Size)

	plans.Purge()
	assert.Equal(t, 0, plans.Stats().Size)
}
