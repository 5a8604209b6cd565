package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mailscope/querycache/logger"
)

// TieredCache composes the in-process tier and an optional shared Redis
// tier into a single lookup/store/invalidate surface. Tier-2 is an
// optimization, not a correctness dependency: every tier-2 failure is
// logged and degrades to a miss or a no-op, never an error to the caller.
type TieredCache struct {
	tier1  Store
	tier2  Store // nil when running tier-1 only
	policy *Policy
	log    logger.Logger

	totalLookups atomic.Int64
	totalStores  atomic.Int64
	tier1Hits    atomic.Int64
	tier2Hits    atomic.Int64
}

// Statistics is the aggregate report for both tiers plus the cache-level
// counters. Hit rates are percentages (0-100); OverallHitRate is zero when
// there have been no lookups.
type Statistics struct {
	TotalLookups   int64      `json:"total_lookups"`
	TotalStores    int64      `json:"total_stores"`
	Tier1Hits      int64      `json:"tier1_hits"`
	Tier2Hits      int64      `json:"tier2_hits"`
	OverallHitRate float64    `json:"overall_hit_rate"`
	Tier1          StoreStats `json:"tier1"`
	Tier2          StoreStats `json:"tier2"`
}

// NewTiered returns a TieredCache over tier1 and tier2. tier2 may be nil
// for tier-1-only operation (e.g. when Redis is unreachable at startup).
// A nil policy uses DefaultPolicy.
func NewTiered(tier1 Store, tier2 Store, policy *Policy, log logger.Logger) *TieredCache {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &TieredCache{
		tier1:  tier1,
		tier2:  tier2,
		policy: policy,
		log:    log.WithPrefix("[cache]"),
	}
}

// Lookup derives the key for (descriptor, params) and checks tier-1 then
// tier-2. A tier-2 hit is promoted into tier-1 with the category's TTL so
// the next lookup is served locally. The returned Tier reports which tier
// served the value; TierNone means a full miss and a nil value.
func (t *TieredCache) Lookup(ctx context.Context, descriptor string, params map[string]any, category Category) (any, Tier, time.Duration) {
	start := time.Now()
	t.totalLookups.Add(1)
	key := DeriveKey(descriptor, params)

	if found, val, err := t.tier1.Get(ctx, key); err == nil && found {
		t.tier1Hits.Add(1)
		return val, Tier1, time.Since(start)
	}

	if t.tier2 == nil {
		return nil, TierNone, time.Since(start)
	}
	found, val, err := t.tier2.Get(ctx, key)
	if err != nil {
		t.log.Warn("tier2 get failed for %s, treating as miss: %v", descriptor, err)
		return nil, TierNone, time.Since(start)
	}
	if !found {
		return nil, TierNone, time.Since(start)
	}
	// Promote so the next lookup hits tier-1. The promoted copy carries
	// the category TTL, not the remaining tier-2 TTL.
	if err := t.tier1.Set(ctx, key, val, t.policy.TTL(category)); err != nil {
		t.log.Warn("tier1 promotion failed for %s: %v", descriptor, err)
	}
	t.tier2Hits.Add(1)
	return val, Tier2, time.Since(start)
}

// Store derives the key for (descriptor, params) and writes value to both
// tiers with the category's TTL. A tier-2 write failure is logged and
// swallowed; there is no cross-tier rollback.
func (t *TieredCache) Store(ctx context.Context, descriptor string, params map[string]any, value any, category Category) {
	t.totalStores.Add(1)
	key := DeriveKey(descriptor, params)
	ttl := t.policy.TTL(category)
	if err := t.tier1.Set(ctx, key, value, ttl); err != nil {
		t.log.Warn("tier1 set failed for %s: %v", descriptor, err)
	}
	if t.tier2 != nil {
		if err := t.tier2.Set(ctx, key, value, ttl); err != nil {
			t.log.Warn("tier2 set failed for %s: %v", descriptor, err)
		}
	}
}

// InvalidatePattern removes every key matching a glob-style pattern from
// both tiers, using tier-2 as the authoritative enumeration. Returns the
// number of keys invalidated. Without tier-2, or when enumeration fails,
// nothing is invalidated and the condition is logged — callers tolerate
// imprecise invalidation.
func (t *TieredCache) InvalidatePattern(ctx context.Context, pattern string) int {
	if t.tier2 == nil {
		t.log.Warn("invalidate %q skipped: no shared tier to enumerate", pattern)
		return 0
	}
	keys, err := t.tier2.Keys(ctx, pattern)
	if err != nil {
		t.log.Warn("invalidate %q skipped: enumeration failed: %v", pattern, err)
		return 0
	}
	for _, key := range keys {
		if err := t.tier2.Delete(ctx, key); err != nil {
			t.log.Warn("tier2 delete of %s failed: %v", key, err)
		}
		if err := t.tier1.Delete(ctx, key); err != nil {
			t.log.Warn("tier1 delete of %s failed: %v", key, err)
		}
	}
	t.log.Debug("invalidated %d keys matching %q", len(keys), pattern)
	return len(keys)
}

// ClearAll clears both tiers unconditionally.
func (t *TieredCache) ClearAll(ctx context.Context) {
	if err := t.tier1.Clear(ctx); err != nil {
		t.log.Warn("tier1 clear failed: %v", err)
	}
	if t.tier2 != nil {
		if err := t.tier2.Clear(ctx); err != nil {
			t.log.Warn("tier2 clear failed: %v", err)
		}
	}
}

// Statistics returns the aggregate counters for both tiers. Tier-2 server
// fields are best effort and zeroed when the server is unreachable.
func (t *TieredCache) Statistics(ctx context.Context) Statistics {
	lookups := t.totalLookups.Load()
	cached := t.tier1Hits.Load() + t.tier2Hits.Load()
	var overall float64
	if lookups > 0 {
		overall = float64(cached) / float64(lookups) * 100
	}
	stats := Statistics{
		TotalLookups:   lookups,
		TotalStores:    t.totalStores.Load(),
		Tier1Hits:      t.tier1Hits.Load(),
		Tier2Hits:      t.tier2Hits.Load(),
		OverallHitRate: overall,
		Tier1:          t.tier1.Stats(ctx),
	}
	if t.tier2 != nil {
		stats.Tier2 = t.tier2.Stats(ctx)
	}
	return stats
}

// Close shuts down both tiers.
func (t *TieredCache) Close() error {
	err := t.tier1.Close()
	if t.tier2 != nil {
		if err2 := t.tier2.Close(); err == nil {
			err = err2
		}
	}
	return err
}
