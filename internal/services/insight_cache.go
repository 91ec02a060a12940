package services

import (
	"context"
	"strings"
	"time"

	"finsight/internal/cache"
	"finsight/internal/core"

	"golang.org/x/sync/singleflight"
)

// InsightSource computes a dashboard insight.
type InsightSource interface {
	ComputeDashboardInsight(ctx context.Context, userID string, asOf time.Time) (core.DashboardInsight, error)
}

// InsightCache memoizes dashboard insights per (user, day) and collapses
// concurrent computations of the same key into one ledger read.
type InsightCache struct {
	source InsightSource
	lru    *cache.LRU[string, core.DashboardInsight]
	group  singleflight.Group
}

func NewInsightCache(source InsightSource, capacity int, ttl time.Duration, opts ...cache.LRUOption) *InsightCache {
	return &InsightCache{
		source: source,
		lru:    cache.NewLRU[string, core.DashboardInsight](capacity, ttl, opts...),
	}
}

// Get returns the insight for userID on the day of asOf. Errors are not cached.
// The shared computation ignores caller cancellation; a cancelled caller
// stops waiting and gets its own context error while other callers still
// receive the result.
func (c *InsightCache) Get(ctx context.Context, userID string, asOf time.Time) (core.DashboardInsight, error) {
	day := core.DateOf(asOf)
	key := insightKey(userID, day)
	if in, ok := c.lru.Get(key); ok {
		return in, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if in, ok := c.lru.Get(key); ok {
			return in, nil
		}
		in, err := c.source.ComputeDashboardInsight(context.WithoutCancel(ctx), userID, day.Time)
		if err != nil {
			return core.DashboardInsight{}, err
		}
		c.lru.Set(key, in)
		return in, nil
	})
	select {
	case <-ctx.Done():
		return core.DashboardInsight{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return core.DashboardInsight{}, res.Err
		}
		return res.Val.(core.DashboardInsight), nil
	}
}

// Invalidate drops every cached insight of userID.
func (c *InsightCache) Invalidate(userID string) int {
	prefix := userID + "/"
	return c.lru.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, prefix) })
}

// Cleaner exposes the underlying cache to a cache.Manager.
func (c *InsightCache) Cleaner() cache.Cleaner {
	return c.lru
}

func insightKey(userID string, day core.Date) string {
	return userID + "/" + day.String()
}
