package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/rulecache/rulecache/internal/cache"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Memory     MemoryConfig     `yaml:"memory_cache"`
	Persistent PersistentConfig `yaml:"persistent_cache"`
	Targets    TargetsConfig    `yaml:"performance_targets"`
	SLA        SLAConfig        `yaml:"sla_monitoring"`
	Warmup     WarmupConfig     `yaml:"warmup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
}

// MemoryConfig represents memory tier settings. Sizes are strings so
// operators can write "64MB" instead of byte counts.
type MemoryConfig struct {
	MaxEntries      int           `yaml:"max_entries"`
	MemoryLimit     string        `yaml:"memory_limit"`
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	EvictionBatch   int           `yaml:"eviction_batch"`
}

// PersistentConfig represents persistent tier settings
type PersistentConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Directory       string        `yaml:"directory"`
	MaxSize         string        `yaml:"max_size"`
	TTL             time.Duration `yaml:"ttl"`
	Compression     bool          `yaml:"compression"`
	IndexFile       string        `yaml:"index_file"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	SyncInterval    time.Duration `yaml:"sync_interval"`
}

// TargetsConfig represents SLA performance targets
type TargetsConfig struct {
	MaxMemoryResponseTime     time.Duration `yaml:"max_memory_response_time"`
	MaxPersistentResponseTime time.Duration `yaml:"max_persistent_response_time"`
	MinCacheHitRate           float64       `yaml:"min_cache_hit_rate"`
	MaxMemoryUsage            string        `yaml:"max_memory_usage"`
}

// SLAConfig represents SLA monitoring settings
type SLAConfig struct {
	Enabled            bool          `yaml:"enabled"`
	ViolationThreshold int           `yaml:"violation_threshold"`
	MonitoringWindow   time.Duration `yaml:"monitoring_window"`
}

// WarmupConfig represents critical-key warmup settings
type WarmupConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Budget      time.Duration `yaml:"budget"`
}

// MonitoringConfig represents statistics and metrics settings
type MonitoringConfig struct {
	Statistics StatisticsConfig `yaml:"statistics"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// StatisticsConfig represents statistics engine settings
type StatisticsConfig struct {
	Enabled        bool `yaml:"enabled"`
	RetentionHours int  `yaml:"retention_hours"`
	MaxDataPoints  int  `yaml:"max_data_points"`
}

// MetricsConfig represents Prometheus metrics settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "text",
			LogFile:   "",
		},
		Memory: MemoryConfig{
			MaxEntries:      cache.DefaultMemoryMaxSize,
			MemoryLimit:     "64MB",
			TTL:             cache.DefaultMemoryTTL,
			CleanupInterval: cache.DefaultCleanupInterval,
		},
		Persistent: PersistentConfig{
			Enabled:     false,
			Directory:   filepath.Join(os.TempDir(), "rulecache"),
			MaxSize:     "256MB",
			TTL:         cache.DefaultPersistentTTL,
			Compression: true,
			IndexFile:   "cache-index.json",
		},
		Targets: TargetsConfig{
			MaxMemoryResponseTime:     cache.DefaultMemoryResponseTime,
			MaxPersistentResponseTime: cache.DefaultPersistentRespTime,
			MinCacheHitRate:           cache.DefaultMinCacheHitRate,
			MaxMemoryUsage:            "64MB",
		},
		SLA: SLAConfig{
			Enabled:            true,
			ViolationThreshold: cache.DefaultViolationThreshold,
			MonitoringWindow:   cache.DefaultMonitoringWindow,
		},
		Warmup: WarmupConfig{
			Concurrency: cache.DefaultWarmupConcurrency,
			Budget:      cache.DefaultWarmupBudget,
		},
		Monitoring: MonitoringConfig{
			Statistics: StatisticsConfig{
				Enabled:        true,
				RetentionHours: 24,
				MaxDataPoints:  1000,
			},
			Metrics: MetricsConfig{
				Enabled:   false,
				Port:      9120,
				Path:      "/metrics",
				Namespace: "rulecache",
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	// Global settings
	if val := os.Getenv("RULECACHE_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("RULECACHE_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}
	if val := os.Getenv("RULECACHE_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}

	// Memory tier settings
	if val := os.Getenv("RULECACHE_MAX_ENTRIES"); val != "" {
		if entries, err := strconv.Atoi(val); err == nil {
			c.Memory.MaxEntries = entries
		}
	}
	if val := os.Getenv("RULECACHE_MEMORY_LIMIT"); val != "" {
		c.Memory.MemoryLimit = val
	}
	if val := os.Getenv("RULECACHE_MEMORY_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Memory.TTL = duration
		}
	}

	// Persistent tier settings
	if val := os.Getenv("RULECACHE_PERSISTENT_ENABLED"); val != "" {
		c.Persistent.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("RULECACHE_PERSISTENT_DIR"); val != "" {
		c.Persistent.Directory = val
	}
	if val := os.Getenv("RULECACHE_PERSISTENT_MAX_SIZE"); val != "" {
		c.Persistent.MaxSize = val
	}
	if val := os.Getenv("RULECACHE_COMPRESSION"); val != "" {
		c.Persistent.Compression = strings.ToLower(val) == "true"
	}

	// SLA settings
	if val := os.Getenv("RULECACHE_SLA_ENABLED"); val != "" {
		c.SLA.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("RULECACHE_MIN_HIT_RATE"); val != "" {
		if rate, err := strconv.ParseFloat(val, 64); err == nil {
			c.Targets.MinCacheHitRate = rate
		}
	}

	// Metrics settings
	if val := os.Getenv("RULECACHE_METRICS_ENABLED"); val != "" {
		c.Monitoring.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("RULECACHE_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Monitoring.Metrics.Port = port
		}
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if c.Memory.MaxEntries <= 0 {
		return fmt.Errorf("max_entries must be greater than 0")
	}

	if _, err := ParseSize(c.Memory.MemoryLimit); err != nil {
		return fmt.Errorf("invalid memory_limit: %w", err)
	}

	if c.Persistent.Enabled {
		if c.Persistent.Directory == "" {
			return fmt.Errorf("persistent_cache.directory is required when the tier is enabled")
		}
		if _, err := ParseSize(c.Persistent.MaxSize); err != nil {
			return fmt.Errorf("invalid persistent max_size: %w", err)
		}
	}

	if c.Targets.MinCacheHitRate < 0 || c.Targets.MinCacheHitRate > 1 {
		return fmt.Errorf("min_cache_hit_rate must be in [0,1], got %g", c.Targets.MinCacheHitRate)
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.ToUpper(c.Global.LogLevel) == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}

// CacheOptions converts the file-level configuration into cache
// options. Validate should be called first; size strings that fail to
// parse fall back to the built-in defaults here.
func (c *Configuration) CacheOptions() cache.Options {
	opts := cache.Options{
		MemoryCache: cache.MemoryOptions{
			MaxSize:         c.Memory.MaxEntries,
			TTL:             c.Memory.TTL,
			CleanupInterval: c.Memory.CleanupInterval,
			EvictionBatch:   c.Memory.EvictionBatch,
		},
		PersistentCache: cache.PersistentOptions{
			Enabled:         c.Persistent.Enabled,
			Directory:       c.Persistent.Directory,
			TTL:             c.Persistent.TTL,
			Compression:     c.Persistent.Compression,
			IndexFile:       c.Persistent.IndexFile,
			CleanupInterval: c.Persistent.CleanupInterval,
			SyncInterval:    c.Persistent.SyncInterval,
		},
		PerformanceTargets: cache.PerformanceTargets{
			MaxMemoryResponseTime:     c.Targets.MaxMemoryResponseTime,
			MaxPersistentResponseTime: c.Targets.MaxPersistentResponseTime,
			MinCacheHitRate:           c.Targets.MinCacheHitRate,
		},
		SLAMonitoring: cache.SLAOptions{
			Disabled:           !c.SLA.Enabled,
			ViolationThreshold: c.SLA.ViolationThreshold,
			MonitoringWindow:   c.SLA.MonitoringWindow,
		},
		Warmup: cache.WarmupOptions{
			Concurrency: c.Warmup.Concurrency,
			Budget:      c.Warmup.Budget,
		},
	}

	if limit, err := ParseSize(c.Memory.MemoryLimit); err == nil {
		opts.MemoryCache.MemoryLimit = limit
	}
	if size, err := ParseSize(c.Persistent.MaxSize); err == nil {
		opts.PersistentCache.MaxSize = size
	}
	if usage, err := ParseSize(c.Targets.MaxMemoryUsage); err == nil {
		opts.PerformanceTargets.MaxMemoryUsage = usage
	}

	return opts
}

// ParseSize parses a human-readable size string like "64MB" or "1.5GB"
// into bytes. Plain numbers are taken as bytes.
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(sizeStr)
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	if val, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
		return val, nil
	}

	upper := strings.ToUpper(sizeStr)
	units := []struct {
		suffix     string
		multiplier int64
	}{
		{"KB", 1024},
		{"MB", 1024 * 1024},
		{"GB", 1024 * 1024 * 1024},
		{"TB", 1024 * 1024 * 1024 * 1024},
		{"B", 1},
	}

	for _, unit := range units {
		if strings.HasSuffix(upper, unit.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(upper, unit.suffix))
			if val, err := strconv.ParseFloat(numStr, 64); err == nil {
				return int64(val * float64(unit.multiplier)), nil
			}
		}
	}

	return 0, fmt.Errorf("invalid size format: %s", sizeStr)
}
