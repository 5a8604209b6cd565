package cache

import (
	"context"
	"time"
)

// Tier identifies which cache tier served a lookup.
type Tier string

const (
	// TierNone means the lookup missed both tiers.
	TierNone Tier = "none"
	// Tier1 is the in-process bounded store.
	Tier1 Tier = "tier1"
	// Tier2 is the shared Redis-backed store.
	Tier2 Tier = "tier2"
)

// Store is the contract shared by both cache tiers. Implementations differ
// in failure modes: the in-memory store never returns errors, the Redis
// store may fail on any operation. The tiered cache absorbs tier-2 errors;
// callers using a Store directly must handle them.
type Store interface {
	// Get retrieves a value. The bool reports whether the key was present
	// and unexpired. Expired entries are removed lazily and count as a miss.
	Get(ctx context.Context, key string) (bool, any, error)
	// Set stores a value with a TTL. If ttl <= 0, the store's configured
	// default TTL is used.
	Set(ctx context.Context, key string, val any, ttl time.Duration) error
	// Delete removes a key. Removing a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Clear removes every entry owned by this store.
	Clear(ctx context.Context) error
	// Keys returns the keys matching a glob-style pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Stats returns a point-in-time snapshot of the store's counters.
	Stats(ctx context.Context) StoreStats
	// Close shuts down the store.
	Close() error
}

// StoreStats is a snapshot of one store's counters. Size and Capacity are
// populated by the in-process store; Keys and MemoryUsed by the Redis store
// (best effort, zero when the server is unreachable).
type StoreStats struct {
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
	Size       int64   `json:"size,omitempty"`
	Capacity   int64   `json:"capacity,omitempty"`
	Keys       int64   `json:"keys,omitempty"`
	MemoryUsed int64   `json:"memory_used,omitempty"`
}

// hitRate converts hit/miss counters into a 0-100 percentage. Zero when
// there have been no lookups.
func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// DefaultTTL is the fallback TTL used for categories not present in the
// policy table and for Set calls with ttl <= 0.
const DefaultTTL = 300 * time.Second

// DefaultQueryTimeout is the per-operation timeout for the Redis store.
// Prevents indefinite hangs on a slow or unresponsive server.
const DefaultQueryTimeout = 3 * time.Second

// config holds the resolved configuration for a Store implementation.
type config struct {
	defaultTTL    time.Duration
	queryTimeout  time.Duration
	sweepInterval time.Duration
	prefix        string
}

// Option configures a Store implementation.
type Option func(*config)

func defaultConfig() config {
	return config{
		defaultTTL:    DefaultTTL,
		queryTimeout:  DefaultQueryTimeout,
		sweepInterval: time.Minute,
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithDefaultTTL sets the TTL used when Set is called with ttl <= 0.
// Defaults to DefaultTTL (300 seconds).
func WithDefaultTTL(d time.Duration) Option {
	return func(c *config) { c.defaultTTL = d }
}

// WithQueryTimeout sets the per-operation timeout for the Redis store.
// Defaults to DefaultQueryTimeout (3 seconds).
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithSweepInterval sets the interval for the in-memory store's background
// expired entry cleanup. Defaults to 1 minute.
func WithSweepInterval(d time.Duration) Option {
	return func(c *config) { c.sweepInterval = d }
}

// WithPrefix sets the key prefix for namespacing Redis keys.
// Defaults to empty (no prefix).
func WithPrefix(p string) Option {
	return func(c *config) { c.prefix = p }
}
