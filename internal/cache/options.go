package cache

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rulecache/rulecache/pkg/types"
	"github.com/rulecache/rulecache/pkg/utils"
)

// MemoryOptions configures the memory tier.
type MemoryOptions struct {
	// MaxSize is the maximum number of entries before LRU eviction kicks in.
	MaxSize int `yaml:"max_size"`

	// MemoryLimit caps the estimated memory footprint in bytes.
	MemoryLimit int64 `yaml:"memory_limit"`

	// TTL is the default time-to-live applied by the orchestrator when a
	// caller does not supply one.
	TTL time.Duration `yaml:"ttl"`

	// CleanupInterval is the period of the proactive expiry sweep.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// EvictionBatch bounds how many entries a single forced eviction may
	// remove. Zero means MaxSize/10 (minimum 1).
	EvictionBatch int `yaml:"eviction_batch"`
}

// PersistentOptions configures the disk-backed tier.
type PersistentOptions struct {
	Enabled         bool          `yaml:"enabled"`
	Directory       string        `yaml:"directory"`
	MaxSize         int64         `yaml:"max_size"`
	TTL             time.Duration `yaml:"ttl"`
	Compression     bool          `yaml:"compression"`
	IndexFile       string        `yaml:"index_file"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	SyncInterval    time.Duration `yaml:"sync_interval"`
}

// PerformanceTargets holds the SLA targets checked on each operation.
type PerformanceTargets struct {
	// MaxMemoryResponseTime is the response-time target for memory-tier reads.
	MaxMemoryResponseTime time.Duration `yaml:"max_memory_response_time"`

	// MaxPersistentResponseTime is the target for persistent-tier reads.
	MaxPersistentResponseTime time.Duration `yaml:"max_persistent_response_time"`

	// MinCacheHitRate is the minimum acceptable hit rate in [0,1].
	MinCacheHitRate float64 `yaml:"min_cache_hit_rate"`

	// MaxMemoryUsage is the memory-usage target in bytes.
	MaxMemoryUsage int64 `yaml:"max_memory_usage"`
}

// SLAOptions configures violation tracking. The zero value enables
// monitoring; set Disabled to opt out.
type SLAOptions struct {
	Disabled bool `yaml:"disabled"`

	// ViolationThreshold is the number of in-window violations at which
	// compliance reaches zero.
	ViolationThreshold int `yaml:"violation_threshold"`

	// MonitoringWindow bounds how long violations are retained.
	MonitoringWindow time.Duration `yaml:"monitoring_window"`
}

// WarmupOptions configures critical-key warmup.
type WarmupOptions struct {
	// Concurrency bounds the provider fan-out.
	Concurrency int `yaml:"concurrency"`

	// Budget is the overall warmup duration target; exceeding it records
	// a medium response-time violation but does not abort the warmup.
	Budget time.Duration `yaml:"budget"`
}

// Options configures a tiered cache. Zero-valued fields merge over the
// documented defaults field by field.
type Options struct {
	MemoryCache        MemoryOptions      `yaml:"memory_cache"`
	PersistentCache    PersistentOptions  `yaml:"persistent_cache"`
	PerformanceTargets PerformanceTargets `yaml:"performance_targets"`
	SLAMonitoring      SLAOptions         `yaml:"sla_monitoring"`
	Warmup             WarmupOptions      `yaml:"warmup"`

	// Logger receives degraded-tier and lifecycle diagnostics. Defaults
	// to a no-op logger.
	Logger *utils.StructuredLogger `yaml:"-"`

	// Sinks observe cache events. Sinks must never block; the
	// statistics engine and the metrics collector both qualify.
	Sinks []types.EventSink `yaml:"-"`
}

// Default option values.
const (
	DefaultMemoryMaxSize       = 1000
	DefaultMemoryLimit         = 64 * 1024 * 1024 // 64MB
	DefaultMemoryTTL           = 5 * time.Minute
	DefaultCleanupInterval     = time.Minute
	DefaultPersistentMaxSize   = 256 * 1024 * 1024 // 256MB
	DefaultPersistentTTL       = time.Hour
	DefaultViolationThreshold  = 10
	DefaultMonitoringWindow    = 5 * time.Minute
	DefaultWarmupConcurrency   = 4
	DefaultWarmupBudget        = 200 * time.Millisecond
	DefaultMemoryResponseTime  = 5 * time.Millisecond
	DefaultPersistentRespTime  = 50 * time.Millisecond
	DefaultMinCacheHitRate     = 0.70
)

// withDefaults returns a copy of o with every zero-valued field replaced
// by its default.
func (o Options) withDefaults() Options {
	if o.MemoryCache.MaxSize <= 0 {
		o.MemoryCache.MaxSize = DefaultMemoryMaxSize
	}
	if o.MemoryCache.MemoryLimit <= 0 {
		o.MemoryCache.MemoryLimit = DefaultMemoryLimit
	}
	if o.MemoryCache.TTL <= 0 {
		o.MemoryCache.TTL = DefaultMemoryTTL
	}
	if o.MemoryCache.CleanupInterval <= 0 {
		o.MemoryCache.CleanupInterval = DefaultCleanupInterval
	}
	if o.MemoryCache.EvictionBatch <= 0 {
		o.MemoryCache.EvictionBatch = o.MemoryCache.MaxSize / 10
		if o.MemoryCache.EvictionBatch < 1 {
			o.MemoryCache.EvictionBatch = 1
		}
	}

	if o.PersistentCache.Directory == "" {
		o.PersistentCache.Directory = filepath.Join(os.TempDir(), "rulecache")
	}
	if o.PersistentCache.MaxSize <= 0 {
		o.PersistentCache.MaxSize = DefaultPersistentMaxSize
	}
	if o.PersistentCache.TTL <= 0 {
		o.PersistentCache.TTL = DefaultPersistentTTL
	}
	if o.PersistentCache.IndexFile == "" {
		o.PersistentCache.IndexFile = "cache-index.json"
	}
	if o.PersistentCache.CleanupInterval <= 0 {
		o.PersistentCache.CleanupInterval = 10 * time.Minute
	}
	if o.PersistentCache.SyncInterval <= 0 {
		o.PersistentCache.SyncInterval = time.Minute
	}

	if o.PerformanceTargets.MaxMemoryResponseTime <= 0 {
		o.PerformanceTargets.MaxMemoryResponseTime = DefaultMemoryResponseTime
	}
	if o.PerformanceTargets.MaxPersistentResponseTime <= 0 {
		o.PerformanceTargets.MaxPersistentResponseTime = DefaultPersistentRespTime
	}
	if o.PerformanceTargets.MinCacheHitRate <= 0 {
		o.PerformanceTargets.MinCacheHitRate = DefaultMinCacheHitRate
	}
	if o.PerformanceTargets.MaxMemoryUsage <= 0 {
		o.PerformanceTargets.MaxMemoryUsage = o.MemoryCache.MemoryLimit
	}

	if o.SLAMonitoring.ViolationThreshold <= 0 {
		o.SLAMonitoring.ViolationThreshold = DefaultViolationThreshold
	}
	if o.SLAMonitoring.MonitoringWindow <= 0 {
		o.SLAMonitoring.MonitoringWindow = DefaultMonitoringWindow
	}

	if o.Warmup.Concurrency <= 0 {
		o.Warmup.Concurrency = DefaultWarmupConcurrency
	}
	if o.Warmup.Budget <= 0 {
		o.Warmup.Budget = DefaultWarmupBudget
	}

	if o.Logger == nil {
		o.Logger = utils.NopLogger()
	}
	return o
}
