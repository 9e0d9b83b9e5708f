package artifact

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type CacheConfig struct {
	BlobTTL        time.Duration
	BlobMaxEntries int

	ListTTL        time.Duration
	ListMaxEntries int

	URLTTL        time.Duration
	URLMaxEntries int
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		BlobTTL:        5 * time.Minute,
		BlobMaxEntries: 256,
		ListTTL:        30 * time.Second,
		ListMaxEntries: 128,
		URLTTL:         5 * time.Minute,
		URLMaxEntries:  256,
	}
}

type MetricsSnapshot struct {
	BlobHits       uint64
	BlobMisses     uint64
	ListHits       uint64
	ListMisses     uint64
	URLHits        uint64
	URLMisses      uint64
	OriginReads    uint64
	OriginWrites   uint64
	OriginReadErr  uint64
	OriginWriteErr uint64
}

type metrics struct {
	blobHits       atomic.Uint64
	blobMisses     atomic.Uint64
	listHits       atomic.Uint64
	listMisses     atomic.Uint64
	urlHits        atomic.Uint64
	urlMisses      atomic.Uint64
	originReads    atomic.Uint64
	originWrites   atomic.Uint64
	originReadErr  atomic.Uint64
	originWriteErr atomic.Uint64
}

// stamped carries the expiry alongside the cached value. Entries are
// evicted lazily on read.
type stamped[V any] struct {
	value   V
	expires time.Time
}

type ttlCache[V any] struct {
	lru *lru.Cache[string, stamped[V]]
	ttl time.Duration
	now func() time.Time
}

func newTTLCache[V any](size int, ttl time.Duration, now func() time.Time) *ttlCache[V] {
	c, _ := lru.New[string, stamped[V]](size)
	return &ttlCache[V]{lru: c, ttl: ttl, now: now}
}

func (c *ttlCache[V]) get(key string) (V, bool) {
	var zero V
	e, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if c.now().After(e.expires) {
		c.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

func (c *ttlCache[V]) set(key string, v V) {
	c.lru.Add(key, stamped[V]{value: v, expires: c.now().Add(c.ttl)})
}

func (c *ttlCache[V]) remove(key string) {
	c.lru.Remove(key)
}

// CachedStore fronts a slower origin store with in-memory LRU caches for
// blobs, listings and URLs. Writes go through to the origin.
type CachedStore struct {
	origin Store

	blobCache *ttlCache[[]byte]
	listCache *ttlCache[[]string]
	urlCache  *ttlCache[string]
	metrics   metrics
}

func NewCachedStore(origin Store, cfg CacheConfig) *CachedStore {
	return newCachedStore(origin, cfg, time.Now)
}

func newCachedStore(origin Store, cfg CacheConfig, now func() time.Time) *CachedStore {
	def := DefaultCacheConfig()
	if cfg.BlobTTL <= 0 {
		cfg.BlobTTL = def.BlobTTL
	}
	if cfg.BlobMaxEntries <= 0 {
		cfg.BlobMaxEntries = def.BlobMaxEntries
	}
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = def.ListTTL
	}
	if cfg.ListMaxEntries <= 0 {
		cfg.ListMaxEntries = def.ListMaxEntries
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = def.URLTTL
	}
	if cfg.URLMaxEntries <= 0 {
		cfg.URLMaxEntries = def.URLMaxEntries
	}
	return &CachedStore{
		origin:    origin,
		blobCache: newTTLCache[[]byte](cfg.BlobMaxEntries, cfg.BlobTTL, now),
		listCache: newTTLCache[[]string](cfg.ListMaxEntries, cfg.ListTTL, now),
		urlCache:  newTTLCache[string](cfg.URLMaxEntries, cfg.URLTTL, now),
	}
}

func (s *CachedStore) Put(ctx context.Context, runID, path string, content []byte) error {
	s.metrics.originWrites.Add(1)
	if err := s.origin.Put(ctx, runID, path, content); err != nil {
		s.metrics.originWriteErr.Add(1)
		return err
	}
	key := cacheKey(runID, path)
	s.blobCache.set(key, append([]byte(nil), content...))
	s.listCache.remove(strings.TrimSpace(runID))
	s.urlCache.remove(key)
	return nil
}

func (s *CachedStore) Get(ctx context.Context, runID, path string) ([]byte, error) {
	key := cacheKey(runID, path)
	if raw, ok := s.blobCache.get(key); ok {
		s.metrics.blobHits.Add(1)
		return append([]byte(nil), raw...), nil
	}
	s.metrics.blobMisses.Add(1)
	s.metrics.originReads.Add(1)

	raw, err := s.origin.Get(ctx, runID, path)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return nil, err
	}
	copied := append([]byte(nil), raw...)
	s.blobCache.set(key, copied)
	return append([]byte(nil), copied...), nil
}

func (s *CachedStore) GetURL(ctx context.Context, runID, path string) (string, error) {
	key := cacheKey(runID, path)
	if cached, ok := s.urlCache.get(key); ok {
		s.metrics.urlHits.Add(1)
		return cached, nil
	}
	s.metrics.urlMisses.Add(1)
	s.metrics.originReads.Add(1)

	u, err := s.origin.GetURL(ctx, runID, path)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return "", err
	}
	if strings.TrimSpace(u) != "" {
		s.urlCache.set(key, u)
	}
	return u, nil
}

func (s *CachedStore) List(ctx context.Context, runID string) ([]string, error) {
	runID = strings.TrimSpace(runID)
	if list, ok := s.listCache.get(runID); ok {
		s.metrics.listHits.Add(1)
		return append([]string(nil), list...), nil
	}
	s.metrics.listMisses.Add(1)
	s.metrics.originReads.Add(1)

	list, err := s.origin.List(ctx, runID)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return nil, err
	}
	s.listCache.set(runID, append([]string(nil), list...))
	return list, nil
}

func (s *CachedStore) Metrics() MetricsSnapshot {
	m := &s.metrics
	return MetricsSnapshot{
		BlobHits:       m.blobHits.Load(),
		BlobMisses:     m.blobMisses.Load(),
		ListHits:       m.listHits.Load(),
		ListMisses:     m.listMisses.Load(),
		URLHits:        m.urlHits.Load(),
		URLMisses:      m.urlMisses.Load(),
		OriginReads:    m.originReads.Load(),
		OriginWrites:   m.originWrites.Load(),
		OriginReadErr:  m.originReadErr.Load(),
		OriginWriteErr: m.originWriteErr.Load(),
	}
}

// Close closes the origin when it holds resources.
func (s *CachedStore) Close() error {
	if c, ok := s.origin.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func cacheKey(runID, path string) string {
	return strings.TrimSpace(runID) + "\x00" + strings.TrimLeft(strings.TrimSpace(path), "/")
}
