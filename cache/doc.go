// Package cache implements a two-tier query-result cache: a bounded
// in-process tier backed by an optional shared Redis tier, composed behind
// a single lookup/store/invalidate surface with per-category TTL policy
// and hit/miss accounting.
//
// # Keys
//
// [DeriveKey] turns a (descriptor, parameters) pair into a deterministic
// key of the form "<descriptor>:<128-bit hex digest>". Parameters are
// canonicalized with sorted keys and JSON-encoded values, so two maps with
// the same contents always produce the same key regardless of insertion
// order. The descriptor stays in plaintext so keys can be matched by glob
// patterns ("top-senders:*") for invalidation.
//
// # Tiers
//
// [NewMemory] is the first tier: a mutex-guarded map with lazy expiry on
// read, a background sweep, and capacity eviction. When a new key would
// exceed capacity, the entry with the nearest expiry is evicted — NOT the
// least recently used one. This ordering is deliberate and load-bearing;
// tests and callers rely on it.
//
// [NewRedis] (or [DialRedis]) is the second tier, shared by every process
// pointed at the same server and key prefix. Values are msgpack-encoded
// ([github.com/vmihailenco/msgpack/v5]) and carry native Redis TTLs. Every
// operation is bounded by a per-query timeout ([DefaultQueryTimeout]).
//
// # TieredCache
//
// [NewTiered] composes the tiers. [TieredCache.Lookup] checks tier-1
// first, then tier-2; a tier-2 hit is promoted into tier-1 with the TTL of
// the caller-supplied [Category] so subsequent lookups are local.
// [TieredCache.Store] writes both tiers with the category's TTL from the
// [Policy] table, falling back to [DefaultTTL] for unknown categories.
//
// Tier-2 is strictly an optimization. A Redis outage, timeout, or corrupt
// stored value degrades the affected call to a miss (or a no-op for
// writes), is logged at warning level, and is never surfaced to callers.
// There is no cross-tier atomicity: a store that lands on one tier and
// fails on the other is left as-is.
//
// # Cache-aside execution
//
// [Execute] is the entry point callers actually use:
//
//	value, res, err := cache.Execute(ctx, executor, cache.Query{
//	    Descriptor: "top-senders",
//	    Params:     map[string]any{"limit": 5},
//	    Category:   cache.CategoryDashboard,
//	}, func(ctx context.Context) ([]string, error) {
//	    return queries.TopSenders(ctx, 5)
//	})
//
// On a hit the cached value is returned with res.Cached=true and the tier
// that served it; on a miss the compute function runs exactly once and its
// result is stored before returning. A compute error propagates unmodified
// and nothing is stored, so a failed computation is never served from
// cache. [WithSingleflight] optionally collapses concurrent misses for the
// same key into one compute.
//
// Values promoted from tier-2 live in tier-1 in their serialized form;
// [Materialize] (used internally by [Execute]) type-asserts native values
// and msgpack-decodes promoted ones, so callers see a single value shape
// either way.
package cache
