package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mailscope/querycache/logger"
)

// RedisConfig holds the connection parameters for the shared tier.
type RedisConfig struct {
	Host     string
	Port     int
	DB       int
	Password string
}

// Addr returns the host:port dial address.
func (c RedisConfig) Addr() string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 6379
	}
	return fmt.Sprintf("%s:%d", host, port)
}

type redisStore struct {
	client *redis.Client
	hits   atomic.Int64
	misses atomic.Int64
	cfg    config
}

var _ Store = (*redisStore)(nil)

// NewRedis returns a Store backed by Redis. Values are msgpack-encoded
// before storage. The caller owns the redis.Client lifecycle — Close is a
// no-op on the client.
func NewRedis(client *redis.Client, opts ...Option) Store {
	return &redisStore{
		client: client,
		cfg:    applyOptions(opts),
	}
}

// DialRedis connects to Redis using cfg and returns a Store on success.
// A connect failure is logged once and returned; callers may ignore it and
// run tier-1 only.
func DialRedis(ctx context.Context, cfg RedisConfig, log logger.Logger, opts ...Option) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	store := NewRedis(client, opts...).(*redisStore)
	pctx, cancel := store.queryCtx(ctx)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		log.Warn("redis unavailable at %s, running without shared tier: %v", cfg.Addr(), err)
		client.Close()
		return nil, errors.Wrapf(err, "cache: connect to redis at %s", cfg.Addr())
	}
	return store, nil
}

func (s *redisStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.cfg.queryTimeout)
}

func (s *redisStore) prefixKey(key string) string {
	if s.cfg.prefix == "" {
		return key
	}
	return s.cfg.prefix + ":" + key
}

func (s *redisStore) stripPrefix(key string) string {
	if s.cfg.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.cfg.prefix+":")
}

// Get returns the stored msgpack bytes for key. Decoding is deferred to
// the consumer so a promoted entry keeps its serialized form.
func (s *redisStore) Get(ctx context.Context, key string) (bool, any, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	data, err := s.client.Get(qctx, s.prefixKey(key)).Bytes()
	if err == redis.Nil {
		s.misses.Add(1)
		return false, nil, nil
	}
	if err != nil {
		s.misses.Add(1)
		return false, nil, errors.Wrap(err, "cache: redis get")
	}
	s.hits.Add(1)
	return true, data, nil
}

func (s *redisStore) Set(ctx context.Context, key string, val any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.cfg.defaultTTL
	}
	data, err := msgpack.Marshal(val)
	if err != nil {
		return errors.Wrap(err, "cache: encode value")
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	if err := s.client.Set(qctx, s.prefixKey(key), data, ttl).Err(); err != nil {
		return errors.Wrap(err, "cache: redis set")
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	if err := s.client.Del(qctx, s.prefixKey(key)).Err(); err != nil {
		return errors.Wrap(err, "cache: redis del")
	}
	return nil
}

func (s *redisStore) Clear(ctx context.Context) error {
	keys, err := s.Keys(ctx, "*")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefixKey(k)
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	if err := s.client.Del(qctx, full...).Err(); err != nil {
		return errors.Wrap(err, "cache: redis clear")
	}
	return nil
}

// Keys enumerates keys matching a glob-style pattern using SCAN, so it
// never blocks the server the way KEYS would. Returned keys have the
// store's prefix stripped.
func (s *redisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	var keys []string
	iter := s.client.Scan(qctx, 0, s.prefixKey(pattern), 100).Iterator()
	for iter.Next(qctx) {
		keys = append(keys, s.stripPrefix(iter.Val()))
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "cache: redis scan")
	}
	return keys, nil
}

// Stats reports client-side hit/miss counters plus server-side key count
// and memory usage when the server is reachable. Server fields are zero on
// failure, never an error.
func (s *redisStore) Stats(ctx context.Context) StoreStats {
	hits, misses := s.hits.Load(), s.misses.Load()
	stats := StoreStats{
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate(hits, misses),
	}
	if keys, err := s.Keys(ctx, "*"); err == nil {
		stats.Keys = int64(len(keys))
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	if info, err := s.client.Info(qctx, "memory").Result(); err == nil {
		stats.MemoryUsed = parseUsedMemory(info)
	}
	return stats
}

func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		if rest, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if n, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}

// Close is a no-op — the caller owns the redis.Client lifecycle.
func (s *redisStore) Close() error {
	return nil
}
