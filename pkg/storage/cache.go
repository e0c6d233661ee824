package storage

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/thermolog/pkg/types"
)

// ScanCache is an LRU cache with TTL for range-scan results.
type ScanCache struct {
	capacity int
	ttl      time.Duration
	mu       sync.Mutex
	cache    map[string]*cacheEntry
	lru      *list.List
}

type cacheEntry struct {
	key       string
	readings  []types.Reading
	timestamp time.Time
	element   *list.Element
}

// NewScanCache creates a scan cache.
func NewScanCache(capacity int, ttl time.Duration) *ScanCache {
	return &ScanCache{
		capacity: capacity,
		ttl:      ttl,
		cache:    make(map[string]*cacheEntry),
		lru:      list.New(),
	}
}

// Get retrieves a cached scan result.
func (sc *ScanCache) Get(req *types.ScanRequest) ([]types.Reading, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	key := generateKey(req)
	entry, exists := sc.cache[key]
	if !exists {
		return nil, false
	}

	if time.Since(entry.timestamp) > sc.ttl {
		sc.removeLocked(key)
		return nil, false
	}

	sc.lru.MoveToFront(entry.element)
	return entry.readings, true
}

// Put stores a scan result.
func (sc *ScanCache) Put(req *types.ScanRequest, readings []types.Reading) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	key := generateKey(req)

	if entry, exists := sc.cache[key]; exists {
		entry.readings = readings
		entry.timestamp = time.Now()
		sc.lru.MoveToFront(entry.element)
		return
	}

	entry := &cacheEntry{
		key:       key,
		readings:  readings,
		timestamp: time.Now(),
	}
	entry.element = sc.lru.PushFront(entry)
	sc.cache[key] = entry

	if sc.lru.Len() > sc.capacity {
		oldest := sc.lru.Back()
		if oldest != nil {
			sc.removeLocked(oldest.Value.(*cacheEntry).key)
		}
	}
}

// removeLocked removes an entry. Callers must hold the lock.
func (sc *ScanCache) removeLocked(key string) {
	if entry, exists := sc.cache[key]; exists {
		sc.lru.Remove(entry.element)
		delete(sc.cache, key)
	}
}

// Clear drops every cache entry.
func (sc *ScanCache) Clear() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.cache = make(map[string]*cacheEntry)
	sc.lru = list.New()
}

// Size returns the current number of cached results.
func (sc *ScanCache) Size() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.cache)
}

// CacheStats contains cache statistics.
type CacheStats struct {
	Size     int
	Capacity int
	Expired  int
}

// Stats returns cache statistics.
func (sc *ScanCache) Stats() CacheStats {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	expired := 0
	for _, entry := range sc.cache {
		if time.Since(entry.timestamp) > sc.ttl {
			expired++
		}
	}

	return CacheStats{
		Size:     len(sc.cache),
		Capacity: sc.capacity,
		Expired:  expired,
	}
}

// generateKey derives a deterministic cache key from scan bounds.
func generateKey(req *types.ScanRequest) string {
	data, _ := json.Marshal(req)
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

// allRequest is the synthetic key under which full-table dumps cache.
var allRequest = &types.ScanRequest{Start: 0, End: math.MaxInt64}

// CachedStore wraps a Store with scan-result caching. Readings never
// mutate, so staleness only comes from new inserts, and Insert simply
// drops the whole cache.
type CachedStore struct {
	store  Store
	cache  *ScanCache
	hits   uint64
	misses uint64
	mu     sync.RWMutex
}

// NewCachedStore creates a caching wrapper around store.
func NewCachedStore(store Store, capacity int, ttl time.Duration) *CachedStore {
	return &CachedStore{
		store: store,
		cache: NewScanCache(capacity, ttl),
	}
}

// Insert invalidates the cache and passes through.
func (cs *CachedStore) Insert(ctx context.Context, r types.Reading) error {
	cs.cache.Clear()
	return cs.store.Insert(ctx, r)
}

// Search passes through; point lookups are a tree descent and not
// worth caching.
func (cs *CachedStore) Search(ctx context.Context, ts int64) (types.Reading, error) {
	return cs.store.Search(ctx, ts)
}

// Scan checks the cache before scanning the store.
func (cs *CachedStore) Scan(ctx context.Context, req *types.ScanRequest) ([]types.Reading, error) {
	if req == nil {
		return cs.store.Scan(ctx, req)
	}

	if readings, ok := cs.cache.Get(req); ok {
		cs.mu.Lock()
		cs.hits++
		cs.mu.Unlock()
		return readings, nil
	}

	cs.mu.Lock()
	cs.misses++
	cs.mu.Unlock()

	readings, err := cs.store.Scan(ctx, req)
	if err != nil {
		return nil, err
	}

	cs.cache.Put(req, readings)
	return readings, nil
}

// All caches the full table dump under a synthetic whole-range key.
func (cs *CachedStore) All(ctx context.Context) ([]types.Reading, error) {
	if readings, ok := cs.cache.Get(allRequest); ok {
		cs.mu.Lock()
		cs.hits++
		cs.mu.Unlock()
		return readings, nil
	}

	cs.mu.Lock()
	cs.misses++
	cs.mu.Unlock()

	readings, err := cs.store.All(ctx)
	if err != nil {
		return nil, err
	}

	cs.cache.Put(allRequest, readings)
	return readings, nil
}

// Len passes through to the underlying store.
func (cs *CachedStore) Len() int {
	return cs.store.Len()
}

// Close closes the underlying store.
func (cs *CachedStore) Close() error {
	return cs.store.Close()
}

// HitRate returns the cache hit rate as a percentage.
func (cs *CachedStore) HitRate() float64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	total := cs.hits + cs.misses
	if total == 0 {
		return 0.0
	}
	return float64(cs.hits) / float64(total) * 100.0
}
