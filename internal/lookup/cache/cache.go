// Package cache keeps lookup results in Redis. Keys embed the vocabulary
// generation, so a mutation makes every older entry unreachable and lets it
// expire on its own.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/lookup"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/resilience"
)

const keyPrefix = "lookup:"

// Backend is the subset of *pkgredis.Client the cache uses.
type Backend interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	breaker *resilience.Breaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a QueryCache. m may be nil; otherwise the breaker state is
// exported through m.CacheBreakerState.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	cfg := resilience.BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         15 * time.Second,
	}
	if m != nil {
		m.CacheBreakerState.Set(float64(resilience.StateClosed))
		cfg.OnStateChange = func(_, to resilience.State) {
			m.CacheBreakerState.Set(float64(to))
			m.CacheBreakerChanges.WithLabelValues(to.String()).Inc()
		}
	}
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		breaker: resilience.NewBreaker("lookup-cache", cfg),
		metrics: m,
		logger:  slog.Default().With("component", "lookup-cache"),
	}
}

// Get returns the cached result for query at generation, if any. Redis errors
// and an open breaker are reported as misses.
func (c *QueryCache) Get(ctx context.Context, generation uint64, query string, limit int) (*lookup.Result, bool) {
	key := buildKey(generation, query, limit)
	var result lookup.Result
	found := false
	err := c.breaker.Do(func() error {
		err := c.backend.GetJSON(ctx, key, &result)
		if pkgredis.IsNilError(err) {
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
	}
	if !found {
		c.recordMiss()
		return nil, false
	}
	c.recordHit()
	c.logger.Debug("cache hit", "query", query, "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, generation uint64, query string, limit int, result *lookup.Result) {
	key := buildKey(generation, query, limit)
	err := c.breaker.Do(func() error {
		return c.backend.SetJSON(ctx, key, result, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute serves query from the cache, or runs computeFn once per key
// across concurrent callers and stores its result. The generation must be
// read before computeFn runs so a result is never filed under a newer
// generation than the one it was computed from.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	generation uint64,
	query string,
	limit int,
	computeFn func() (*lookup.Result, error),
) (*lookup.Result, bool, error) {
	if result, ok := c.Get(ctx, generation, query, limit); ok {
		return result, true, nil
	}
	key := buildKey(generation, query, limit)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, generation, query, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	shared := *val.(*lookup.Result)
	return &shared, false, nil
}

// Invalidate deletes every cached lookup.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BreakerState reports the state of the breaker guarding Redis.
func (c *QueryCache) BreakerState() resilience.State {
	return c.breaker.State()
}

func (c *QueryCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// buildKey hashes the query verbatim. Folding or normalizing it here could
// merge queries the index segments differently.
func buildKey(generation uint64, query string, limit int) string {
	hash := sha256.Sum256(fmt.Appendf(nil, "%s\x00limit=%d", query, limit))
	return fmt.Sprintf("%s%d:%x", keyPrefix, generation, hash[:16])
}
