// Package oracle supplies the source-currency to settlement-asset exchange
// rate used when a bill's escrow funding is prepared.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Source is one upstream rate provider.
type Source interface {
	Name() string
	FetchRate(ctx context.Context) (float64, error)
}

// Cache holds the last good rate for a bounded time. It is constructed once
// at process start and injected into the oracle rather than living as a
// package-level singleton.
type Cache struct {
	mu        sync.Mutex
	rate      float64
	fetchedAt time.Time
	ttl       time.Duration
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl}
}

// Get returns the cached rate and whether it is still fresh.
func (c *Cache) Get() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rate <= 0 || time.Since(c.fetchedAt) > c.ttl {
		return 0, false
	}
	return c.rate, true
}

func (c *Cache) Put(rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = rate
	c.fetchedAt = time.Now()
}

// Oracle tries each source in order and caches the first positive rate.
type Oracle struct {
	sources []Source
	cache   *Cache
}

func New(cache *Cache, sources ...Source) *Oracle {
	return &Oracle{sources: sources, cache: cache}
}

// GetRate returns a current positive rate. When every source is unavailable
// it fails outright: escrow funding must never be priced from a guessed or
// expired rate.
func (o *Oracle) GetRate(ctx context.Context) (float64, error) {
	if rate, ok := o.cache.Get(); ok {
		return rate, nil
	}

	var lastErr error
	for _, src := range o.sources {
		rate, err := src.FetchRate(ctx)
		if err != nil {
			slog.Warn("rate source failed", "source", src.Name(), "error", err)
			lastErr = fmt.Errorf("%s: %w", src.Name(), err)
			continue
		}
		if rate <= 0 {
			slog.Warn("rate source returned non-positive rate", "source", src.Name(), "rate", rate)
			lastErr = fmt.Errorf("%s: non-positive rate %v", src.Name(), rate)
			continue
		}
		o.cache.Put(rate)
		return rate, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no rate sources configured")
	}
	return 0, fmt.Errorf("all rate sources unavailable: %w", lastErr)
}
