package cache

import (
	"context"
	"path"
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt time.Time
}

type memoryStore struct {
	ctx       context.Context
	cancel    context.CancelFunc
	entries   map[string]*entry
	mutex     sync.Mutex
	waitGroup sync.WaitGroup
	once      sync.Once
	capacity  int
	hits      int64
	misses    int64
	cfg       config
}

var _ Store = (*memoryStore)(nil)

// NewMemory returns a bounded in-process Store holding at most capacity
// entries. When an insert of a new key would exceed capacity, the entry
// with the nearest expiry is evicted first (soonest-expiring, not LRU —
// callers rely on this ordering). Expired entries are removed lazily on
// Get and by a background sweep.
func NewMemory(parent context.Context, capacity int, opts ...Option) Store {
	cfg := applyOptions(opts)
	ctx, cancel := context.WithCancel(parent)
	s := &memoryStore{
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[string]*entry),
		capacity: capacity,
		cfg:      cfg,
	}
	s.waitGroup.Add(1)
	go s.run()
	return s
}

func (s *memoryStore) Get(_ context.Context, key string) (bool, any, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	e, ok := s.entries[key]
	if !ok {
		s.misses++
		return false, nil, nil
	}
	if !e.expiresAt.After(time.Now()) {
		delete(s.entries, key)
		s.misses++
		return false, nil, nil
	}
	s.hits++
	return true, e.value, nil
}

func (s *memoryStore) Set(_ context.Context, key string, val any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.cfg.defaultTTL
	}
	s.mutex.Lock()
	if _, ok := s.entries[key]; !ok && s.capacity > 0 && len(s.entries) >= s.capacity {
		s.evictSoonest()
	}
	s.entries[key] = &entry{value: val, expiresAt: time.Now().Add(ttl)}
	s.mutex.Unlock()
	return nil
}

// evictSoonest removes the entry with the smallest expiresAt.
// Caller must hold the mutex.
func (s *memoryStore) evictSoonest() {
	var victim string
	var soonest time.Time
	for key, e := range s.entries {
		if victim == "" || e.expiresAt.Before(soonest) {
			victim = key
			soonest = e.expiresAt
		}
	}
	if victim != "" {
		delete(s.entries, victim)
	}
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mutex.Lock()
	delete(s.entries, key)
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Clear(_ context.Context) error {
	s.mutex.Lock()
	s.entries = make(map[string]*entry)
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var keys []string
	for key := range s.entries {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *memoryStore) Stats(_ context.Context) StoreStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return StoreStats{
		Hits:     s.hits,
		Misses:   s.misses,
		HitRate:  hitRate(s.hits, s.misses),
		Size:     int64(len(s.entries)),
		Capacity: int64(s.capacity),
	}
}

func (s *memoryStore) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.waitGroup.Wait()
	})
	return nil
}

func (s *memoryStore) run() {
	defer s.waitGroup.Done()
	ticker := time.NewTicker(s.cfg.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			s.mutex.Lock()
			for key, e := range s.entries {
				if e.expiresAt.Before(now) {
					delete(s.entries, key)
				}
			}
			s.mutex.Unlock()
		}
	}
}
