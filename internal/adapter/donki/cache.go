package donki

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/solarsentry/space-weather-forecast/internal/domain"
	"github.com/solarsentry/space-weather-forecast/internal/observability"
)

// CachedSource wraps an EventSource with a TTL cache keyed by window length.
// Forced refreshes and bursts of reconnecting subscribers would otherwise
// hammer DONKI's hourly quota with identical queries.
type CachedSource struct {
	inner   domain.EventSource
	ttl     time.Duration
	metrics *observability.Metrics
	clock   clockwork.Clock

	mu      sync.Mutex
	entries map[int]cacheEntry
}

type cacheEntry struct {
	snapshot domain.FeedSnapshot
	expires  time.Time
}

// NewCachedSource creates a cache decorator around an event source.
func NewCachedSource(inner domain.EventSource, ttl time.Duration, metrics *observability.Metrics) *CachedSource {
	return &CachedSource{
		inner:   inner,
		ttl:     ttl,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
		entries: make(map[int]cacheEntry),
	}
}

// Fetch serves a cached snapshot while it is fresh, delegating to the inner
// source otherwise. Snapshots with fetch errors are never cached so the next
// cycle retries.
func (c *CachedSource) Fetch(ctx context.Context, windowDays int) (domain.FeedSnapshot, error) {
	c.mu.Lock()
	entry, ok := c.entries[windowDays]
	if ok && c.clock.Now().Before(entry.expires) {
		c.mu.Unlock()
		c.metrics.FeedCache.WithLabelValues("hit").Inc()
		return entry.snapshot, nil
	}
	c.mu.Unlock()
	c.metrics.FeedCache.WithLabelValues("miss").Inc()

	snapshot, err := c.inner.Fetch(ctx, windowDays)
	if err != nil {
		return snapshot, err
	}

	if len(snapshot.Errors) == 0 {
		c.mu.Lock()
		c.entries[windowDays] = cacheEntry{
			snapshot: snapshot,
			expires:  c.clock.Now().Add(c.ttl),
		}
		c.mu.Unlock()
	}
	return snapshot, nil
}
