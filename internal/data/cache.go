package data

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"bess-intraday/internal/model"
)

// RemoteCache is a shared second-level cache behind CachedSource.
type RemoteCache interface {
	Get(ctx context.Context, key string) (model.PriceVector, bool, error)
	Set(ctx context.Context, key string, v model.PriceVector, ttl time.Duration) error
}

type cacheEntry struct {
	prices    model.PriceVector
	expiresAt time.Time
}

// CachedSource memoizes VWAP queries. Repeated runs over the same days hit
// the same (window, delivery day) keys, so the cache pays off across runs
// sharing one process or one Redis.
type CachedSource struct {
	src    PriceSource
	remote RemoteCache
	ttl    time.Duration
	max    int

	mu     sync.RWMutex
	store  map[string]cacheEntry
	hits   int
	misses int

	now func() time.Time
}

// NewCachedSource wraps src. remote may be nil.
func NewCachedSource(src PriceSource, remote RemoteCache, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedSource{
		src:    src,
		remote: remote,
		ttl:    ttl,
		max:    100_000,
		store:  make(map[string]cacheEntry),
		now:    time.Now,
	}
}

func (c *CachedSource) AveragePrices(ctx context.Context, q PriceQuery) (model.PriceVector, error) {
	key := CacheKey(q)

	if v, ok := c.get(key); ok {
		return v, nil
	}
	if c.remote != nil {
		// a broken remote cache degrades to the underlying source
		if v, ok, err := c.remote.Get(ctx, key); err == nil && ok {
			c.set(key, v)
			return v.Clone(), nil
		}
	}

	v, err := c.src.AveragePrices(ctx, q)
	if err != nil {
		return nil, err
	}
	c.set(key, v)
	if c.remote != nil {
		_ = c.remote.Set(ctx, key, v, c.ttl)
	}
	return v, nil
}

func (c *CachedSource) get(key string) (model.PriceVector, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.store[key]
	if !ok || c.now().After(e.expiresAt) {
		c.misses++
		return nil, false
	}
	c.hits++
	return e.prices.Clone(), true
}

func (c *CachedSource) set(key string, v model.PriceVector) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.store) >= c.max {
		c.pruneLocked()
	}
	c.store[key] = cacheEntry{prices: v.Clone(), expiresAt: c.now().Add(c.ttl)}
}

// Prune drops expired entries.
func (c *CachedSource) Prune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
}

func (c *CachedSource) pruneLocked() {
	now := c.now()
	for k, e := range c.store {
		if now.After(e.expiresAt) {
			delete(c.store, k)
		}
	}
	if len(c.store) >= c.max {
		c.store = make(map[string]cacheEntry)
	}
}

// Stats returns hit and miss counts of the in-memory level.
func (c *CachedSource) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// CacheKey is a stable hash of every query field.
func CacheKey(q PriceQuery) string {
	s := fmt.Sprintf("%s|%d|%d|%d|%d",
		q.Side,
		q.ExecStart.UnixNano(),
		q.ExecEnd.UnixNano(),
		q.DeliveryDay.UnixNano(),
		q.MinTrades,
	)
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
