package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/mailscope/querycache/logger"
)

func newTestTiered(t *testing.T) (*miniredis.Miniredis, *TieredCache, *logger.TestLogger) {
	t.Helper()
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	log := logger.NewTestLogger()
	tc := NewTiered(
		NewMemory(ctx, 100, WithSweepInterval(time.Hour)),
		NewRedis(client),
		DefaultPolicy(),
		log,
	)
	t.Cleanup(func() { tc.Close() })
	return mr, tc, log
}

func TestTieredStoreLookup(t *testing.T) {
	ctx := context.Background()
	_, tc, _ := newTestTiered(t)
	params := map[string]any{"limit": 5}

	val, tier, _ := tc.Lookup(ctx, "top-senders", params, CategoryDashboard)
	assert.Nil(t, val)
	assert.Equal(t, TierNone, tier)

	tc.Store(ctx, "top-senders", params, []string{"a@x.com", "b@y.com"}, CategoryDashboard)
	val, tier, latency := tc.Lookup(ctx, "top-senders", params, CategoryDashboard)
	assert.Equal(t, Tier1, tier)
	assert.Equal(t, []string{"a@x.com", "b@y.com"}, val)
	assert.GreaterOrEqual(t, latency, time.Duration(0))
}

func TestTieredPromotion(t *testing.T) {
	ctx := context.Background()
	_, tc, _ := newTestTiered(t)
	params := map[string]any{"limit": 5}

	// Plant the value in tier-2 only, as if another process stored it.
	key := DeriveKey("top-senders", params)
	assert.NoError(t, tc.tier2.Set(ctx, key, []string{"a@x.com"}, time.Minute))

	val, tier, _ := tc.Lookup(ctx, "top-senders", params, CategoryDashboard)
	assert.Equal(t, Tier2, tier)
	decoded, err := Materialize[[]string](val)
	assert.NoError(t, err)
	assert.Equal(t, []string{"a@x.com"}, decoded)

	// The hit was promoted; the next lookup is served locally.
	_, tier, _ = tc.Lookup(ctx, "top-senders", params, CategoryDashboard)
	assert.Equal(t, Tier1, tier)
}

func TestTieredStoreUsesCategoryTTL(t *testing.T) {
	ctx := context.Background()
	mr, tc, _ := newTestTiered(t)

	tc.Store(ctx, "d", map[string]any{"a": 1}, "v", CategoryReport)
	assert.Equal(t, 24*time.Hour, mr.TTL(DeriveKey("d", map[string]any{"a": 1})))

	// Unknown categories fall back to the default TTL instead of failing.
	tc.Store(ctx, "d", map[string]any{"a": 2}, "v", Category("mystery"))
	assert.Equal(t, DefaultTTL, mr.TTL(DeriveKey("d", map[string]any{"a": 2})))
}

func TestTieredCounters(t *testing.T) {
	ctx := context.Background()
	_, tc, _ := newTestTiered(t)
	params := map[string]any{"x": 1}

	tc.Lookup(ctx, "d", params, CategoryDashboard) // full miss
	tc.Store(ctx, "d", params, "v", CategoryDashboard)
	tc.Lookup(ctx, "d", params, CategoryDashboard) // tier1 hit

	// Drop the tier-1 copy so the next lookup hits tier-2.
	assert.NoError(t, tc.tier1.Delete(ctx, DeriveKey("d", params)))
	tc.Lookup(ctx, "d", params, CategoryDashboard) // tier2 hit

	stats := tc.Statistics(ctx)
	assert.Equal(t, int64(3), stats.TotalLookups)
	assert.Equal(t, int64(1), stats.TotalStores)
	assert.Equal(t, int64(1), stats.Tier1Hits)
	assert.Equal(t, int64(1), stats.Tier2Hits)
	assert.InDelta(t, 66.7, stats.OverallHitRate, 0.1)
	assert.Equal(t, int64(1), stats.Tier1.Size)
	assert.Equal(t, int64(1), stats.Tier2.Keys)
}

func TestTieredStatisticsEmpty(t *testing.T) {
	ctx := context.Background()
	_, tc, _ := newTestTiered(t)
	stats := tc.Statistics(ctx)
	assert.Zero(t, stats.TotalLookups)
	assert.Zero(t, stats.OverallHitRate)
}

func TestTieredInvalidatePattern(t *testing.T) {
	ctx := context.Background()
	_, tc, _ := newTestTiered(t)

	tc.Store(ctx, "top-senders", map[string]any{"limit": 5}, "v1", CategoryDashboard)
	tc.Store(ctx, "top-senders", map[string]any{"limit": 10}, "v2", CategoryDashboard)
	tc.Store(ctx, "mailbox-summary", map[string]any{}, "v3", CategoryDashboard)

	assert.Equal(t, 2, tc.InvalidatePattern(ctx, "top-senders:*"))

	// Both tiers dropped the matching keys; the other descriptor survives.
	_, tier, _ := tc.Lookup(ctx, "top-senders", map[string]any{"limit": 5}, CategoryDashboard)
	assert.Equal(t, TierNone, tier)
	_, tier, _ = tc.Lookup(ctx, "top-senders", map[string]any{"limit": 10}, CategoryDashboard)
	assert.Equal(t, TierNone, tier)
	_, tier, _ = tc.Lookup(ctx, "mailbox-summary", map[string]any{}, CategoryDashboard)
	assert.Equal(t, Tier1, tier)
}

func TestTieredInvalidateWithoutTier2(t *testing.T) {
	ctx := context.Background()
	log := logger.NewTestLogger()
	tc := NewTiered(NewMemory(ctx, 10, WithSweepInterval(time.Hour)), nil, nil, log)
	defer tc.Close()

	tc.Store(ctx, "top-senders", map[string]any{"limit": 5}, "v", CategoryDashboard)

	// No shared tier to enumerate: logged no-op, nothing removed.
	assert.Zero(t, tc.InvalidatePattern(ctx, "top-senders:*"))
	entries := log.Entries()
	assert.NotEmpty(t, entries)
	assert.Equal(t, "WARN", entries[0].Severity)
	_, tier, _ := tc.Lookup(ctx, "top-senders", map[string]any{"limit": 5}, CategoryDashboard)
	assert.Equal(t, Tier1, tier)
}

func TestTieredClearAll(t *testing.T) {
	ctx := context.Background()
	_, tc, _ := newTestTiered(t)

	tc.Store(ctx, "a", map[string]any{}, 1, CategoryDashboard)
	tc.Store(ctx, "b", map[string]any{}, 2, CategoryGraph)
	tc.ClearAll(ctx)

	stats := tc.Statistics(ctx)
	assert.Zero(t, stats.Tier1.Size)
	assert.Zero(t, stats.Tier2.Keys)
}

func TestTieredDegradesWhenTier2Down(t *testing.T) {
	ctx := context.Background()
	mr, tc, log := newTestTiered(t)
	params := map[string]any{"x": 1}
	mr.Close()

	// Store still lands on tier-1; the tier-2 failure is logged, not raised.
	tc.Store(ctx, "d", params, "v", CategoryDashboard)
	val, tier, _ := tc.Lookup(ctx, "d", params, CategoryDashboard)
	assert.Equal(t, Tier1, tier)
	assert.Equal(t, "v", val)

	// A tier-1 miss with tier-2 down is a full miss, not an error.
	_, tier, _ = tc.Lookup(ctx, "other", params, CategoryDashboard)
	assert.Equal(t, TierNone, tier)

	warned := false
	for _, e := range log.Entries() {
		if e.Severity == "WARN" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestTieredTier1Only(t *testing.T) {
	ctx := context.Background()
	tc := NewTiered(NewMemory(ctx, 10, WithSweepInterval(time.Hour)), nil, nil, logger.NewTestLogger())
	defer tc.Close()
	params := map[string]any{"x": 1}

	tc.Store(ctx, "d", params, "v", CategoryDashboard)
	val, tier, _ := tc.Lookup(ctx, "d", params, CategoryDashboard)
	assert.Equal(t, Tier1, tier)
	assert.Equal(t, "v", val)

	tc.ClearAll(ctx)
	_, tier, _ = tc.Lookup(ctx, "d", params, CategoryDashboard)
	assert.Equal(t, TierNone, tier)
}
