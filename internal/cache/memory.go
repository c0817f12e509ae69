package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/rulecache/rulecache/pkg/errors"
	"github.com/rulecache/rulecache/pkg/types"
)

// entryOverhead is the fixed per-entry accounting cost added to the
// key/value length when estimating memory usage. The estimate is
// deliberately coarse; it only has to be consistent and monotonic in
// the payload size.
const entryOverhead = 96

// MemoryCache implements the memory tier: a thread-safe LRU cache with
// per-entry TTL expiry and memory-pressure-triggered forced eviction.
// It owns no knowledge of other tiers.
type MemoryCache struct {
	mu          sync.RWMutex
	config      MemoryOptions
	items       map[string]*memoryEntry
	evictList   *list.List // front = most recently used
	memoryUsage int64

	hits      uint64
	misses    uint64
	evictions uint64

	stopCh chan struct{}
	closed bool
}

// memoryEntry is an item in the memory tier.
type memoryEntry struct {
	key            string
	value          []byte
	insertedAt     time.Time
	lastAccessedAt time.Time
	expiresAt      time.Time
	size           int64
	accessCount    int64
	element        *list.Element
}

// NewMemoryCache creates a memory tier and starts its expiry sweep
// goroutine. The goroutine is owned by the cache lifecycle and stops
// on Destroy.
func NewMemoryCache(config MemoryOptions) *MemoryCache {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultMemoryMaxSize
	}
	if config.MemoryLimit <= 0 {
		config.MemoryLimit = DefaultMemoryLimit
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultCleanupInterval
	}
	if config.EvictionBatch <= 0 {
		config.EvictionBatch = config.MaxSize / 10
		if config.EvictionBatch < 1 {
			config.EvictionBatch = 1
		}
	}

	c := &MemoryCache{
		config:    config,
		items:     make(map[string]*memoryEntry),
		evictList: list.New(),
		stopCh:    make(chan struct{}),
	}

	go c.sweepLoop()

	return c
}

// Get retrieves a value. An expired entry is removed and counted as a
// miss. A hit refreshes the entry's recency.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[key]
	if !exists {
		c.misses++
		return nil, false
	}

	if c.isExpired(entry, time.Now()) {
		c.removeEntry(entry, false)
		c.misses++
		return nil, false
	}

	entry.lastAccessedAt = time.Now()
	entry.accessCount++
	c.evictList.MoveToFront(entry.element)
	c.hits++

	return entry.value, true
}

// Set stores a value with the given TTL. A non-positive TTL is a
// configuration error, not a cache-state mutation.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.NewError(errors.ErrCodeInvalidTTL, "ttl must be positive").
			WithComponent("memory-cache").WithOperation("set").WithDetail("ttl", ttl.String())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.NewError(errors.ErrCodeAlreadyClosed, "cache destroyed").WithComponent("memory-cache")
	}

	now := time.Now()
	size := estimateSize(key, value)

	if entry, exists := c.items[key]; exists {
		c.memoryUsage += size - entry.size
		entry.value = value
		entry.size = size
		entry.insertedAt = now
		entry.lastAccessedAt = now
		entry.expiresAt = now.Add(ttl)
		entry.accessCount++
		c.evictList.MoveToFront(entry.element)
		c.evictWhileOverLimit()
		return nil
	}

	entry := &memoryEntry{
		key:            key,
		value:          value,
		insertedAt:     now,
		lastAccessedAt: now,
		expiresAt:      now.Add(ttl),
		size:           size,
		accessCount:    1,
	}
	entry.element = c.evictList.PushFront(entry)
	c.items[key] = entry
	c.memoryUsage += size

	c.evictWhileOverLimit()
	return nil
}

// Delete removes a key and reports whether it was present.
func (c *MemoryCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[key]
	if !exists {
		return false
	}
	c.removeEntry(entry, false)
	return true
}

// Has reports whether a live entry exists for key without refreshing
// its recency.
func (c *MemoryCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[key]
	if !exists {
		return false
	}
	if c.isExpired(entry, time.Now()) {
		c.removeEntry(entry, false)
		return false
	}
	return true
}

// Clear removes all entries.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*memoryEntry)
	c.evictList.Init()
	c.memoryUsage = 0
}

// Cleanup removes all expired entries and returns how many were removed.
// The sweep goroutine calls this on its interval; Optimize may call it
// on demand.
func (c *MemoryCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, entry := range c.items {
		if c.isExpired(entry, now) {
			c.removeEntry(entry, false)
			removed++
		}
	}
	return removed
}

// ForceEviction evicts a bounded batch of least-recently-used entries.
// It is the externally triggerable pressure-relief sweep; the batch
// bound keeps sustained pressure from clearing the whole cache.
func (c *MemoryCache) ForceEviction() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for evicted < c.config.EvictionBatch {
		element := c.evictList.Back()
		if element == nil {
			break
		}
		c.removeEntry(element.Value.(*memoryEntry), true)
		evicted++
	}
	return evicted
}

// PressureLevel derives the current memory pressure from estimated
// usage against the configured limit. It is recomputed on every call.
func (c *MemoryCache) PressureLevel() types.MemoryPressureLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.PressureLevelForRatio(float64(c.memoryUsage) / float64(c.config.MemoryLimit))
}

// Metrics returns a statistics snapshot for the tier.
func (c *MemoryCache) Metrics() types.TierStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := types.TierStats{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Entries:     len(c.items),
		MemoryUsage: c.memoryUsage,
		Capacity:    c.config.MemoryLimit,
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	stats.Utilization = float64(c.memoryUsage) / float64(c.config.MemoryLimit)
	return stats
}

// Destroy stops the sweep goroutine and drops all entries. It is
// idempotent; Get after Destroy returns misses.
func (c *MemoryCache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.stopCh)

	c.items = make(map[string]*memoryEntry)
	c.evictList.Init()
	c.memoryUsage = 0
}

// Internal helpers. All assume the write lock is held.

func (c *MemoryCache) isExpired(entry *memoryEntry, now time.Time) bool {
	return !entry.expiresAt.IsZero() && now.After(entry.expiresAt)
}

func (c *MemoryCache) removeEntry(entry *memoryEntry, evicted bool) {
	c.evictList.Remove(entry.element)
	delete(c.items, entry.key)
	c.memoryUsage -= entry.size
	if evicted {
		c.evictions++
	}
}

// evictWhileOverLimit evicts from the LRU end until both the entry
// count and the memory limit are satisfied.
func (c *MemoryCache) evictWhileOverLimit() {
	for (len(c.items) > c.config.MaxSize || c.memoryUsage > c.config.MemoryLimit) && c.evictList.Len() > 0 {
		element := c.evictList.Back()
		c.removeEntry(element.Value.(*memoryEntry), true)
	}
}

func (c *MemoryCache) sweepLoop() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}

// estimateSize gives the accounting size for an entry: key length plus
// payload length plus a fixed overhead constant.
func estimateSize(key string, value []byte) int64 {
	return int64(len(key)) + int64(len(value)) + entryOverhead
}
