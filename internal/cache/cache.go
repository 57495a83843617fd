package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/liamashdown/tradeintel/internal/metrics"
)

// DefaultTTL is used by Set and by Fetch when no ttl is given
const DefaultTTL = 15 * time.Minute

// DefaultSweepInterval is how often Run removes expired entries
const DefaultSweepInterval = 5 * time.Minute

type entry struct {
	value   interface{}
	expires time.Time
}

// Cache is the process-wide analysis result cache. Entries expire lazily on read
// and in bulk on each sweep.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	clock   clock.Clock
	group   singleflight.Group
	log     *logrus.Logger
}

// New creates a cache. A zero ttl selects DefaultTTL.
func New(clk clock.Clock, ttl time.Duration, log *logrus.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		clock:   clk,
		log:     log,
	}
}

// Get returns the value stored under key if it has not expired
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expires) {
		c.mu.Lock()
		// Re-check, a concurrent Set may have refreshed it
		if cur, ok := c.entries[key]; ok && !c.clock.Now().Before(cur.expires) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the default TTL
func (c *Cache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key. Last write wins.
func (c *Cache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	c.entries[key] = entry{value: value, expires: c.clock.Now().Add(ttl)}
	c.mu.Unlock()
}

// Has reports whether key holds an unexpired value
func (c *Cache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Invalidate removes every entry whose key starts with prefix and returns how many
// were removed. An empty prefix clears the cache.
func (c *Cache) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Cleanup removes expired entries and returns how many were evicted
func (c *Cache) Cleanup() int {
	now := c.clock.Now()

	c.mu.Lock()
	evicted := 0
	for key, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, key)
			evicted++
		}
	}
	remaining := len(c.entries)
	c.mu.Unlock()

	metrics.RecordCacheSweep(evicted, remaining)
	return evicted
}

// Len returns the number of stored entries, including expired ones not yet swept
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Run sweeps expired entries every interval until ctx is cancelled
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := c.clock.Ticker(interval)
	defer ticker.Stop()

	c.log.WithField("interval", interval.String()).Info("Starting cache sweeper")

	for {
		select {
		case <-ctx.Done():
			c.log.Info("Cache sweeper stopped")
			return
		case <-ticker.C:
			if evicted := c.Cleanup(); evicted > 0 {
				c.log.WithFields(logrus.Fields{
					"evicted":   evicted,
					"remaining": c.Len(),
				}).Debug("Swept expired cache entries")
			}
		}
	}
}

type result[T any] struct {
	value T
	ok    bool
}

// Fetch returns the cached value for key or computes it with fn. Concurrent misses
// for the same key share one computation. Results are only stored when fn reports
// ok and returns no error, so empty answers and failures are recomputed next time.
func Fetch[T any](c *Cache, key string, ttl time.Duration, fn func() (T, bool, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			metrics.RecordCacheLookup(true)
			return typed, nil
		}
	}
	metrics.RecordCacheLookup(false)

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		value, ok, err := fn()
		if err != nil {
			return nil, err
		}
		if ok {
			c.SetWithTTL(key, value, ttl)
		}
		return result[T]{value: value, ok: ok}, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(result[T]).value, nil
}

// Key builds a cache key from an operation name and every input that affects its result
func Key(op string, parts ...interface{}) string {
	var b strings.Builder
	b.WriteString(op)
	for _, p := range parts {
		b.WriteByte(':')
		fmt.Fprint(&b, p)
	}
	return b.String()
}
