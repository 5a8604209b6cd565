package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/mailscope/querycache/logger"
)

// Query identifies one cacheable computation: a descriptor naming the
// query, its parameters, and the category selecting the TTL. SkipCache
// forces a recompute; the fresh result is still stored.
type Query struct {
	Descriptor string
	Params     map[string]any
	Category   Category
	SkipCache  bool
}

// Result is the metadata returned alongside every Execute call.
type Result struct {
	Cached         bool          `json:"cached"`
	Tier           Tier          `json:"tier"`
	LookupLatency  time.Duration `json:"lookup_latency"`
	ComputeLatency time.Duration `json:"compute_latency"`
}

// ComputeFunc produces the value for a cache miss.
type ComputeFunc[T any] func(ctx context.Context) (T, error)

// Executor wraps a TieredCache with the cache-aside pattern: check cache,
// compute on miss, store the result. Methods on Executor are not generic
// (Go does not allow generic methods), so the entry point is the
// package-level Execute function.
type Executor struct {
	cache *TieredCache
	log   logger.Logger
	group *singleflight.Group
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSingleflight collapses concurrent Execute calls for the same derived
// key into a single compute; the other callers share its result and error.
func WithSingleflight() ExecutorOption {
	return func(e *Executor) { e.group = &singleflight.Group{} }
}

// NewExecutor returns an Executor over cache.
func NewExecutor(cache *TieredCache, log logger.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{cache: cache, log: log.WithPrefix("[cache]")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Materialize converts a value returned by Lookup into T. Values served
// from tier-1 in their native form type-assert directly; values promoted
// from tier-2 arrive as msgpack bytes and are decoded.
func Materialize[T any](val any) (T, error) {
	var zero T
	if typed, ok := val.(T); ok {
		return typed, nil
	}
	if data, ok := val.([]byte); ok {
		var out T
		if err := msgpack.Unmarshal(data, &out); err != nil {
			return zero, errors.Wrap(err, "cache: decode stored value")
		}
		return out, nil
	}
	return zero, errors.Newf("cache: cannot convert cached %T to %T", val, zero)
}

// Execute runs q through the cache-aside pattern. On any cache hit the
// cached value is returned with Cached=true and compute is not invoked.
// On a miss (or SkipCache) compute runs exactly once; its result is stored
// with the category's TTL and returned with Cached=false. A compute error
// — including cancellation of ctx during compute — propagates unmodified
// and nothing is stored. Compute errors are the only errors Execute
// returns; cache infrastructure failures degrade to extra computes.
func Execute[T any](ctx context.Context, e *Executor, q Query, compute ComputeFunc[T]) (T, Result, error) {
	var zero T
	res := Result{Tier: TierNone}

	if !q.SkipCache {
		val, tier, lat := e.cache.Lookup(ctx, q.Descriptor, q.Params, q.Category)
		res.LookupLatency = lat
		if tier != TierNone {
			typed, err := Materialize[T](val)
			if err == nil {
				res.Cached = true
				res.Tier = tier
				return typed, res, nil
			}
			// Corrupt or incompatible entry. Treat as a miss; the store
			// after compute overwrites it.
			e.log.Warn("discarding undecodable cached value for %s: %v", q.Descriptor, err)
		}
	}

	run := func() (T, error) {
		value, err := compute(ctx)
		if err != nil {
			return zero, err
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		e.cache.Store(ctx, q.Descriptor, q.Params, value, q.Category)
		return value, nil
	}

	start := time.Now()
	var value T
	var err error
	if e.group != nil {
		var shared any
		shared, err, _ = e.group.Do(DeriveKey(q.Descriptor, q.Params), func() (any, error) {
			return run()
		})
		if err == nil {
			value, err = Materialize[T](shared)
		}
	} else {
		value, err = run()
	}
	res.ComputeLatency = time.Since(start)
	if err != nil {
		return zero, res, err
	}
	return value, res, nil
}
