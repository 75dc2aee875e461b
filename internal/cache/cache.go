// Package cache provides the plan cache.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/satishbabariya/prisma-engine/internal/planner"
)

// DefaultSize is the number of plans kept when no size is configured.
const DefaultSize = 512

// Stats represents cache statistics
type Stats struct {
	Hits    int64
	Misses  int64
	Size    int
	HitRate float64
}

// Plans caches execution plans keyed by model, operation and descriptor.
// It is safe for concurrent use. Plans are immutable once built.
type Plans struct {
	lru    *lru.Cache[string, *planner.Fetch]
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a plan cache holding up to size plans. size <= 0 selects DefaultSize.
func New(size int) (*Plans, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, *planner.Fetch](size)
	if err != nil {
		return nil, err
	}
	return &Plans{lru: c}, nil
}

// Key derives a cache key from a descriptor. It reports false when the
// descriptor cannot be encoded; such plans are not cached.
func Key(model, op string, descriptor any) (string, bool) {
	raw, err := json.Marshal(descriptor)
	if err != nil {
		return "", false
	}
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(op))
	h.Write([]byte{0})
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil)), true
}

// Get returns the plan stored under key.
func (p *Plans) Get(key string) (*planner.Fetch, bool) {
	f, ok := p.lru.Get(key)
	if ok {
		p.hits.Add(1)
	} else {
		p.misses.Add(1)
	}
	return f, ok
}

// Add stores a plan.
func (p *Plans) Add(key string, f *planner.Fetch) {
	p.lru.Add(key, f)
}

// GetOrBuild returns the cached plan for key or builds and stores it.
func (p *Plans) GetOrBuild(key string, build func() (*planner.Fetch, error)) (*planner.Fetch, error) {
	if f, ok := p.Get(key); ok {
		return f, nil
	}
	f, err := build()
	if err != nil {
		return nil, err
	}
	p.Add(key, f)
	return f, nil
}

// Purge drops every plan.
func (p *Plans) Purge() {
	p.lru.Purge()
}

// Stats returns cache statistics.
func (p *Plans) Stats() Stats {
	s := Stats{Hits: p.hits.Load(), Misses: p.misses.Load(), Size: p.lru.Len()}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
