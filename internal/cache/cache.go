// Package cache memoizes the tradable market list behind a TTL, serving the
// last good snapshot when a refresh fails.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rewired-gh/polyedge/internal/logger"
	"github.com/rewired-gh/polyedge/internal/models"
	"golang.org/x/sync/singleflight"
)

// Fetcher returns up to limit active markets ordered by descending 24h volume.
type Fetcher interface {
	FetchMarkets(ctx context.Context, limit int) ([]models.Market, error)
}

// MarketCache holds one market snapshot. Concurrent expired reads share a single refresh.
type MarketCache struct {
	fetcher      Fetcher
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time

	mu       sync.RWMutex
	snapshot *models.MarketSnapshot

	flight singleflight.Group
}

// New creates a MarketCache. fetchTimeout bounds every refresh call.
func New(fetcher Fetcher, ttl, fetchTimeout time.Duration) *MarketCache {
	return &MarketCache{
		fetcher:      fetcher,
		ttl:          ttl,
		fetchTimeout: fetchTimeout,
		now:          time.Now,
	}
}

// Get returns the cached markets, refreshing them when older than the TTL.
// It never fails: on refresh failure the previous snapshot (or an empty slice) is returned.
func (c *MarketCache) Get(ctx context.Context, limit int) []models.Market {
	return c.Snapshot(ctx, limit).Markets
}

// Snapshot is Get with the fetch timestamp attached. A zero FetchedAt means no snapshot exists.
func (c *MarketCache) Snapshot(ctx context.Context, limit int) models.MarketSnapshot {
	if snap, ok := c.fresh(); ok {
		logger.Debug("Serving %d markets from cache (expires in %v)",
			len(snap.Markets), (c.ttl - snap.Age(c.now())).Truncate(time.Second))
		return snap
	}

	v, _, _ := c.flight.Do("markets", func() (interface{}, error) {
		return c.refresh(ctx, limit), nil
	})
	return v.(models.MarketSnapshot)
}

// Peek returns the current snapshot, possibly stale or empty, without refreshing it.
func (c *MarketCache) Peek() models.MarketSnapshot {
	return c.current()
}

func (c *MarketCache) fresh() (models.MarketSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil || c.snapshot.Age(c.now()) >= c.ttl {
		return models.MarketSnapshot{}, false
	}
	return *c.snapshot, true
}

func (c *MarketCache) current() models.MarketSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return models.MarketSnapshot{}
	}
	return *c.snapshot
}

// refresh runs inside the single flight; only one refresh is in progress per cache.
func (c *MarketCache) refresh(ctx context.Context, limit int) models.MarketSnapshot {
	// A flight that finished just before this one may already have refreshed.
	if snap, ok := c.fresh(); ok {
		return snap
	}

	// Waiters share this result, so one caller's cancellation must not fail the others.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	defer cancel()

	markets, err := c.fetcher.FetchMarkets(fetchCtx, limit)
	if err != nil {
		prev := c.current()
		if prev.FetchedAt.IsZero() {
			logger.Error("Failed to fetch markets and no cached snapshot exists: %v", err)
			return prev
		}
		logger.Warn("Failed to fetch markets, serving stale snapshot from %s: %v",
			prev.FetchedAt.Format(time.RFC3339), err)
		return prev
	}

	snap := models.MarketSnapshot{Markets: markets, FetchedAt: c.now()}
	c.mu.Lock()
	c.snapshot = &snap
	c.mu.Unlock()

	logger.Info("Loaded %d markets from Polymarket (cache refreshed)", len(markets))
	return snap
}
