package cache

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rulecache/rulecache/pkg/errors"
	"github.com/rulecache/rulecache/pkg/types"
	"github.com/rulecache/rulecache/pkg/utils"
)

// PersistentCache implements the disk-backed tier: one file per entry,
// optional gzip compression, checksums verified on read, and a JSON
// index persisted atomically. It satisfies types.Tier.
type PersistentCache struct {
	mu          sync.RWMutex
	config      PersistentOptions
	logger      *utils.StructuredLogger
	currentSize int64
	index       map[string]*persistentItem

	hits      uint64
	misses    uint64
	evictions uint64

	stopCh chan struct{}
	closed bool
}

// persistentItem is an index record for one cached file.
type persistentItem struct {
	Key        string    `json:"key"`
	FilePath   string    `json:"file_path"`
	Size       int64     `json:"size"`
	InsertedAt time.Time `json:"inserted_at"`
	AccessTime time.Time `json:"access_time"`
	ExpiresAt  time.Time `json:"expires_at"`
	Compressed bool      `json:"compressed"`
	Checksum   string    `json:"checksum"`
}

// NewPersistentCache opens or creates the cache directory, loads any
// existing index, and starts the expiry-sweep and index-sync goroutines.
func NewPersistentCache(config PersistentOptions, logger *utils.StructuredLogger) (*PersistentCache, error) {
	if config.Directory == "" {
		config.Directory = filepath.Join(os.TempDir(), "rulecache")
	}
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultPersistentMaxSize
	}
	if config.IndexFile == "" {
		config.IndexFile = "cache-index.json"
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 10 * time.Minute
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = time.Minute
	}
	if logger == nil {
		logger = utils.NopLogger()
	}

	if err := os.MkdirAll(config.Directory, 0750); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDirectorySetup, "failed to create cache directory").
			WithComponent("persistent-cache").WithDetail("directory", config.Directory)
	}

	c := &PersistentCache{
		config: config,
		logger: logger.WithField("component", "persistent-cache"),
		index:  make(map[string]*persistentItem),
		stopCh: make(chan struct{}),
	}

	if err := c.loadIndex(); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeIndexLoad, "failed to load cache index").
			WithComponent("persistent-cache")
	}

	go c.sweepLoop()
	go c.syncLoop()

	return c, nil
}

// Get reads a value from disk. A missing, expired, or corrupted entry
// is a miss; corruption additionally drops the entry from the index.
func (c *PersistentCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	c.mu.RLock()
	item, exists := c.index[key]
	c.mu.RUnlock()

	if !exists {
		c.recordMiss()
		return nil, false, nil
	}

	if item.isExpired(time.Now()) {
		c.mu.Lock()
		c.removeItemLocked(item, false)
		c.misses++
		c.mu.Unlock()
		return nil, false, nil
	}

	data, err := c.readFromFile(item)
	if err != nil {
		// Corrupted or missing file; drop it from the index.
		c.mu.Lock()
		c.removeItemLocked(item, false)
		c.misses++
		c.mu.Unlock()
		return nil, false, errors.WrapError(err, errors.ErrCodeStorageRead, "failed to read cached value").
			WithComponent("persistent-cache").WithDetail("key", key)
	}

	c.mu.Lock()
	item.AccessTime = time.Now()
	c.hits++
	c.mu.Unlock()

	return data, true, nil
}

// Set writes a value to disk and records it in the index, evicting by
// access time when the size cap is exceeded.
func (c *PersistentCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		return errors.NewError(errors.ErrCodeInvalidTTL, "ttl must be positive").
			WithComponent("persistent-cache").WithOperation("set")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.NewError(errors.ErrCodeAlreadyClosed, "cache closed").WithComponent("persistent-cache")
	}

	if existing, exists := c.index[key]; exists {
		c.removeItemLocked(existing, false)
	}

	now := time.Now()
	item := &persistentItem{
		Key:        key,
		FilePath:   c.entryPath(key),
		InsertedAt: now,
		AccessTime: now,
		ExpiresAt:  now.Add(ttl),
		Compressed: c.config.Compression,
		Checksum:   checksum(value),
	}

	storedSize, err := c.writeToFile(item, value)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeStorageWrite, "failed to write cached value").
			WithComponent("persistent-cache").WithDetail("key", key)
	}

	item.Size = storedSize
	c.index[key] = item
	c.currentSize += storedSize

	c.evictWhileOverLimitLocked()
	return nil
}

// Delete removes a key and its backing file.
func (c *PersistentCache) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.index[key]
	if !exists {
		return false, nil
	}
	c.removeItemLocked(item, false)
	return true, nil
}

// Has reports whether a live entry exists without touching the file.
func (c *PersistentCache) Has(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.RLock()
	item, exists := c.index[key]
	c.mu.RUnlock()

	if !exists {
		return false, nil
	}
	if item.isExpired(time.Now()) {
		c.mu.Lock()
		c.removeItemLocked(item, false)
		c.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// Clear removes all entries and their files.
func (c *PersistentCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, item := range c.index {
		_ = os.Remove(item.FilePath)
	}
	c.index = make(map[string]*persistentItem)
	c.currentSize = 0
	return nil
}

// Stats returns a statistics snapshot for the tier.
func (c *PersistentCache) Stats() types.TierStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := types.TierStats{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Entries:     len(c.index),
		MemoryUsage: c.currentSize,
		Capacity:    c.config.MaxSize,
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	stats.Utilization = float64(c.currentSize) / float64(c.config.MaxSize)
	return stats
}

// Optimize removes expired entries and forces an index sync.
func (c *PersistentCache) Optimize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, item := range c.index {
		if item.isExpired(now) {
			c.removeItemLocked(item, false)
		}
	}

	if err := c.saveIndexLocked(); err != nil {
		return errors.WrapError(err, errors.ErrCodeIndexSave, "failed to sync cache index").
			WithComponent("persistent-cache")
	}
	return nil
}

// Close stops the background goroutines and syncs the index. Idempotent.
func (c *PersistentCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.stopCh)

	return c.saveIndexLocked()
}

// Helper methods.

func (i *persistentItem) isExpired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

func (c *PersistentCache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

func (c *PersistentCache) entryPath(key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(c.config.Directory, fmt.Sprintf("%x.cache", hash[:8]))
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

func (c *PersistentCache) removeItemLocked(item *persistentItem, evicted bool) {
	if _, exists := c.index[item.Key]; !exists {
		return
	}
	_ = os.Remove(item.FilePath)
	delete(c.index, item.Key)
	c.currentSize -= item.Size
	if evicted {
		c.evictions++
	}
}

// evictWhileOverLimitLocked evicts least-recently-accessed entries
// until the size cap is satisfied.
func (c *PersistentCache) evictWhileOverLimitLocked() {
	for c.currentSize > c.config.MaxSize && len(c.index) > 0 {
		var oldest *persistentItem
		for _, item := range c.index {
			if oldest == nil || item.AccessTime.Before(oldest.AccessTime) {
				oldest = item
			}
		}
		c.removeItemLocked(oldest, true)
	}
}

func (c *PersistentCache) writeToFile(item *persistentItem, data []byte) (int64, error) {
	file, err := os.Create(item.FilePath)
	if err != nil {
		return 0, err
	}
	defer func() { _ = file.Close() }()

	var writer io.Writer = file
	var gz *gzip.Writer
	if item.Compressed {
		gz = gzip.NewWriter(file)
		writer = gz
	}

	if _, err := writer.Write(data); err != nil {
		_ = os.Remove(item.FilePath)
		return 0, err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			_ = os.Remove(item.FilePath)
			return 0, err
		}
	}

	if stat, err := file.Stat(); err == nil {
		return stat.Size(), nil
	}
	return int64(len(data)), nil
}

func (c *PersistentCache) readFromFile(item *persistentItem) ([]byte, error) {
	file, err := os.Open(item.FilePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var reader io.Reader = file
	if item.Compressed {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, err
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if checksum(data) != item.Checksum {
		return nil, errors.NewError(errors.ErrCodeStorageCorrupt, "checksum mismatch for cached file").
			WithComponent("persistent-cache").WithDetail("key", item.Key)
	}
	return data, nil
}

func (c *PersistentCache) loadIndex() error {
	indexPath := filepath.Join(c.config.Directory, c.config.IndexFile)

	file, err := os.Open(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No existing index, start fresh.
		}
		return err
	}
	defer func() { _ = file.Close() }()

	var items map[string]*persistentItem
	if err := json.NewDecoder(file).Decode(&items); err != nil {
		return err
	}

	c.currentSize = 0
	for key, item := range items {
		if _, err := os.Stat(item.FilePath); os.IsNotExist(err) {
			continue // Skip entries whose files have vanished.
		}
		c.index[key] = item
		c.currentSize += item.Size
	}
	return nil
}

func (c *PersistentCache) saveIndexLocked() error {
	indexPath := filepath.Join(c.config.Directory, c.config.IndexFile)
	tmpPath := indexPath + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(file).Encode(c.index); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	// Atomic replace.
	return os.Rename(tmpPath, indexPath)
}

func (c *PersistentCache) sweepLoop() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for _, item := range c.index {
				if item.isExpired(now) {
					c.removeItemLocked(item, false)
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *PersistentCache) syncLoop() {
	ticker := time.NewTicker(c.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			if err := c.saveIndexLocked(); err != nil {
				c.logger.Warn("index sync failed", map[string]interface{}{"error": err.Error()})
			}
			c.mu.Unlock()
		}
	}
}
