package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/rulecache/rulecache/pkg/types"
	"github.com/rulecache/rulecache/pkg/utils"
)

// Optimizer is implemented by tiers that support an on-demand
// maintenance pass.
type Optimizer interface {
	Optimize(ctx context.Context) error
}

// TieredCache orchestrates the memory tier and an optional persistent
// tier: read-through promotion, write-through population, per-operation
// SLA checks, and critical-key warmup. Every operation outcome is
// reported to the configured event sinks, which observe but never
// mutate cache state.
type TieredCache struct {
	opts       Options
	memory     *MemoryCache
	persistent types.Tier // nil when the persistent tier is disabled
	sla        *slaTracker
	logger     *utils.StructuredLogger
	sinks      []types.EventSink

	// loadGroup dedupes concurrent persistent-tier loads per key.
	loadGroup singleflight.Group

	mu      sync.Mutex
	origins map[string]types.CacheOrigin

	// tombstones guard promotions against racing deletes: a promotion
	// staged before a delete of the same key is discarded.
	tombstones map[string]uint64
	epoch      uint64

	totalHits   uint64
	totalMisses uint64
	promotions  uint64

	closed atomic.Bool
}

type persistentResult struct {
	data  []byte
	found bool
}

// NewTieredCache builds the orchestrator from options merged over
// defaults, constructing both tiers.
func NewTieredCache(opts Options) (*TieredCache, error) {
	opts = opts.withDefaults()

	c := &TieredCache{
		opts:       opts,
		memory:     NewMemoryCache(opts.MemoryCache),
		sla:        newSLATracker(opts.PerformanceTargets, opts.SLAMonitoring),
		logger:     opts.Logger.WithField("component", "tiered-cache"),
		sinks:      opts.Sinks,
		origins:    make(map[string]types.CacheOrigin),
		tombstones: make(map[string]uint64),
	}

	if opts.PersistentCache.Enabled {
		persistent, err := NewPersistentCache(opts.PersistentCache, opts.Logger)
		if err != nil {
			c.memory.Destroy()
			return nil, err
		}
		c.persistent = persistent
	}

	return c, nil
}

// Get consults the memory tier first, falls through to the persistent
// tier on miss, and promotes persistent hits into the memory tier. A
// degraded persistent tier is treated as a miss; Get never fails the
// caller for tier errors.
func (c *TieredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.closed.Load() {
		return nil, false
	}
	start := time.Now()

	if value, ok := c.memory.Get(key); ok {
		elapsed := time.Since(start)
		c.setOrigin(key, types.LayerMemory, elapsed)
		atomic.AddUint64(&c.totalHits, 1)
		c.emitLatency(types.EventHit, types.LayerMemory, key, elapsed)
		if v := c.sla.checkResponseTime(types.LayerMemory, elapsed); v != nil {
			c.emitViolation(*v)
		}
		return value, true
	}

	if c.persistent == nil {
		atomic.AddUint64(&c.totalMisses, 1)
		c.emitLatency(types.EventMiss, types.LayerMemory, key, time.Since(start))
		return nil, false
	}

	gen, epoch := c.generation(key)

	result, err, _ := c.loadGroup.Do(key, func() (interface{}, error) {
		data, found, err := c.persistent.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		return persistentResult{data: data, found: found}, nil
	})
	if err != nil {
		c.logger.Warn("persistent tier read failed, treating as miss", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		atomic.AddUint64(&c.totalMisses, 1)
		c.emitLatency(types.EventMiss, types.LayerPersistent, key, time.Since(start))
		return nil, false
	}

	res := result.(persistentResult)
	if !res.found {
		atomic.AddUint64(&c.totalMisses, 1)
		c.emitLatency(types.EventMiss, types.LayerPersistent, key, time.Since(start))
		return nil, false
	}

	elapsed := time.Since(start)
	atomic.AddUint64(&c.totalHits, 1)

	// Promote into the memory tier unless a concurrent delete removed
	// the key while the disk read was in flight.
	if c.promote(key, res.data, gen, epoch, elapsed) {
		atomic.AddUint64(&c.promotions, 1)
		c.emit(types.CacheEvent{
			Type:      types.EventPromotion,
			Timestamp: time.Now(),
			Layer:     types.LayerMemory,
			Key:       key,
			Value:     float64(len(res.data)),
		})
	}

	c.emitLatency(types.EventHit, types.LayerPersistent, key, elapsed)
	if v := c.sla.checkResponseTime(types.LayerPersistent, elapsed); v != nil {
		c.emitViolation(*v)
	}
	return res.data, true
}

// Set writes through to the memory tier and, when enabled, the
// persistent tier using tier-specific TTLs. A zero ttl selects the
// configured defaults; a negative ttl is a configuration error. A
// persistent-tier write failure is logged and swallowed.
func (c *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.closed.Load() {
		return nil
	}

	memTTL := c.opts.MemoryCache.TTL
	persTTL := c.opts.PersistentCache.TTL
	if ttl != 0 {
		memTTL = ttl
		persTTL = ttl
	}

	if err := c.memory.Set(key, value, memTTL); err != nil {
		return err
	}

	if c.persistent != nil {
		if err := c.persistent.Set(ctx, key, value, persTTL); err != nil {
			c.logger.Warn("persistent tier write failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}
	return nil
}

// Delete removes the key from both tiers, drops its origin record, and
// marks a tombstone so an in-flight promotion cannot resurrect it.
func (c *TieredCache) Delete(ctx context.Context, key string) bool {
	if c.closed.Load() {
		return false
	}

	c.mu.Lock()
	c.tombstones[key]++
	delete(c.origins, key)
	c.mu.Unlock()

	deleted := c.memory.Delete(key)
	if c.persistent != nil {
		pd, err := c.persistent.Delete(ctx, key)
		if err != nil {
			c.logger.Warn("persistent tier delete failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		deleted = deleted || pd
	}
	return deleted
}

// Has reports whether either tier holds a live entry for key.
func (c *TieredCache) Has(ctx context.Context, key string) bool {
	if c.closed.Load() {
		return false
	}
	if c.memory.Has(key) {
		return true
	}
	if c.persistent == nil {
		return false
	}
	ok, err := c.persistent.Has(ctx, key)
	if err != nil {
		return false
	}
	return ok
}

// Clear empties both tiers and all origin records.
func (c *TieredCache) Clear(ctx context.Context) {
	if c.closed.Load() {
		return
	}

	c.mu.Lock()
	atomic.AddUint64(&c.epoch, 1)
	c.origins = make(map[string]types.CacheOrigin)
	c.tombstones = make(map[string]uint64)
	c.mu.Unlock()

	c.memory.Clear()
	if c.persistent != nil {
		if err := c.persistent.Clear(ctx); err != nil {
			c.logger.Warn("persistent tier clear failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// WarmupCriticalStandards populates both tiers for the given critical
// keys, fetching only keys not already cached, with bounded provider
// fan-out. Per-key provider failures are logged and skipped; exceeding
// the time budget records a medium response-time violation but the
// warmup still completes for whichever keys succeeded.
func (c *TieredCache) WarmupCriticalStandards(ctx context.Context, keys []string, provider types.ValueProvider) error {
	if c.closed.Load() || len(keys) == 0 {
		return nil
	}
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Warmup.Concurrency)

	for _, key := range keys {
		if c.Has(ctx, key) {
			continue
		}
		key := key
		g.Go(func() error {
			value, err := provider(gctx, key)
			if err != nil {
				c.logger.Warn("warmup provider failed for key", map[string]interface{}{
					"key":   key,
					"error": err.Error(),
				})
				return nil // Partial warmup is not a fatal error.
			}
			if err := c.Set(gctx, key, value, 0); err != nil {
				c.logger.Warn("warmup set failed for key", map[string]interface{}{
					"key":   key,
					"error": err.Error(),
				})
				return nil
			}
			c.emit(types.CacheEvent{
				Type:      types.EventWarmup,
				Timestamp: time.Now(),
				Layer:     types.LayerMemory,
				Key:       key,
				Value:     float64(len(value)),
			})
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	if elapsed > c.opts.Warmup.Budget {
		// Overruns are graded medium by policy regardless of magnitude.
		v := types.SLAViolation{
			Type:        types.ViolationResponseTime,
			Layer:       types.LayerMemory,
			ActualValue: float64(elapsed.Microseconds()) / 1000.0,
			TargetValue: float64(c.opts.Warmup.Budget.Microseconds()) / 1000.0,
			Timestamp:   time.Now(),
			Severity:    types.SeverityMedium,
		}
		c.sla.recordViolation(v)
		c.emitViolation(v)
		c.logger.Warn("warmup exceeded budget", map[string]interface{}{
			"elapsed": elapsed.String(),
			"budget":  c.opts.Warmup.Budget.String(),
		})
	}
	return nil
}

// Optimize runs an idempotent maintenance pass: forced eviction under
// high memory pressure, expiry sweeps on both tiers, and a re-check of
// the hit-rate and memory-usage SLAs.
func (c *TieredCache) Optimize(ctx context.Context) {
	if c.closed.Load() {
		return
	}

	if level := c.memory.PressureLevel(); level >= types.PressureHigh {
		evicted := c.memory.ForceEviction()
		c.emit(types.CacheEvent{
			Type:      types.EventEviction,
			Timestamp: time.Now(),
			Layer:     types.LayerMemory,
			Value:     float64(evicted),
			Metadata:  map[string]interface{}{"pressure": level.String()},
		})
	}

	removed := c.memory.Cleanup()
	c.emit(types.CacheEvent{
		Type:      types.EventCleanup,
		Timestamp: time.Now(),
		Layer:     types.LayerMemory,
		Value:     float64(removed),
	})

	if opt, ok := c.persistent.(Optimizer); ok && c.persistent != nil {
		if err := opt.Optimize(ctx); err != nil {
			c.logger.Warn("persistent tier optimize failed", map[string]interface{}{"error": err.Error()})
		}
	}

	memStats := c.memory.Metrics()
	c.emit(types.CacheEvent{
		Type:      types.EventMemoryPressure,
		Timestamp: time.Now(),
		Layer:     types.LayerMemory,
		Value:     float64(memStats.MemoryUsage),
		Metadata:  map[string]interface{}{"pressure": c.memory.PressureLevel().String()},
	})

	hits := atomic.LoadUint64(&c.totalHits)
	misses := atomic.LoadUint64(&c.totalMisses)
	if total := hits + misses; total > 0 {
		if v := c.sla.checkHitRate(types.LayerMemory, float64(hits)/float64(total)); v != nil {
			c.emitViolation(*v)
		}
	}
	if v := c.sla.checkMemoryUsage(memStats.MemoryUsage); v != nil {
		c.emitViolation(*v)
	}
}

// GetOrigin reports which tier satisfied the most recent read of key,
// or nil if the key has not been read, was deleted, or was cleared.
func (c *TieredCache) GetOrigin(key string) *types.CacheOrigin {
	c.mu.Lock()
	defer c.mu.Unlock()

	origin, ok := c.origins[key]
	if !ok {
		return nil
	}
	out := origin
	return &out
}

// GetStats returns the combined statistics snapshot across both tiers.
func (c *TieredCache) GetStats() types.PerformanceCacheStats {
	stats := types.PerformanceCacheStats{
		Memory:        c.memory.Metrics(),
		TotalHits:     atomic.LoadUint64(&c.totalHits),
		TotalMisses:   atomic.LoadUint64(&c.totalMisses),
		Promotions:    atomic.LoadUint64(&c.promotions),
		PressureLevel: c.memory.PressureLevel(),
		SLACompliance: c.sla.compliance(),
	}
	if c.persistent != nil {
		stats.Persistent = c.persistent.Stats()
	}
	if total := stats.TotalHits + stats.TotalMisses; total > 0 {
		stats.HitRate = float64(stats.TotalHits) / float64(total)
	}
	stats.ViolationCount = len(c.sla.snapshot())
	return stats
}

// CalculateSLACompliance recomputes the compliance rate from in-window
// violations.
func (c *TieredCache) CalculateSLACompliance() float64 {
	return c.sla.compliance()
}

// Violations returns a copy of the in-window SLA violations.
func (c *TieredCache) Violations() []types.SLAViolation {
	return c.sla.snapshot()
}

// Destroy releases the cleanup timers and the persistent tier handle.
// Idempotent; subsequent Gets return misses.
func (c *TieredCache) Destroy() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.memory.Destroy()

	c.mu.Lock()
	c.origins = make(map[string]types.CacheOrigin)
	c.tombstones = make(map[string]uint64)
	c.mu.Unlock()

	if c.persistent != nil {
		return c.persistent.Close()
	}
	return nil
}

// Internal helpers.

func (c *TieredCache) setOrigin(key string, layer types.CacheLayer, hitTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.origins[key] = types.CacheOrigin{
		Layer:     layer,
		Timestamp: time.Now(),
		HitTime:   hitTime,
	}
}

func (c *TieredCache) generation(key string) (uint64, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tombstones[key], atomic.LoadUint64(&c.epoch)
}

// promote installs a persistent-tier hit into the memory tier. The
// generation re-check and the insert happen in one critical section so
// a delete that lands after the disk read cannot be undone here: once
// Delete has bumped the tombstone under c.mu, this either observes the
// bump and backs off, or has already finished the insert that Delete's
// memory.Delete then removes.
func (c *TieredCache) promote(key string, data []byte, gen, epoch uint64, hitTime time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tombstones[key] != gen || atomic.LoadUint64(&c.epoch) != epoch {
		return false
	}
	if err := c.memory.Set(key, data, c.opts.MemoryCache.TTL); err != nil {
		return false
	}
	c.origins[key] = types.CacheOrigin{
		Layer:     types.LayerPersistent,
		Timestamp: time.Now(),
		HitTime:   hitTime,
	}
	return true
}

func (c *TieredCache) emit(event types.CacheEvent) {
	for _, sink := range c.sinks {
		sink.RecordEvent(event)
	}
}

func (c *TieredCache) emitLatency(et types.EventType, layer types.CacheLayer, key string, elapsed time.Duration) {
	c.emit(types.CacheEvent{
		Type:      et,
		Timestamp: time.Now(),
		Layer:     layer,
		Key:       key,
		Value:     float64(elapsed.Microseconds()) / 1000.0,
	})
}

func (c *TieredCache) emitViolation(v types.SLAViolation) {
	c.emit(types.CacheEvent{
		Type:      types.EventSLAViolation,
		Timestamp: v.Timestamp,
		Layer:     v.Layer,
		Value:     v.ActualValue,
		Metadata: map[string]interface{}{
			"violation_type": string(v.Type),
			"severity":       string(v.Severity),
			"target":         v.TargetValue,
		},
	})
}
