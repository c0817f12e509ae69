package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulecache/rulecache/internal/cache"
)

func TestNewDefaultIsValid(t *testing.T) {
	cfg := NewDefault()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "INFO", cfg.Global.LogLevel)
	assert.Equal(t, cache.DefaultMemoryMaxSize, cfg.Memory.MaxEntries)
	assert.False(t, cfg.Persistent.Enabled)
	assert.True(t, cfg.SLA.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	yaml := `
global:
  log_level: DEBUG
  log_format: json
memory_cache:
  max_entries: 500
  memory_limit: 32MB
  ttl: 2m
persistent_cache:
  enabled: true
  directory: /var/cache/rules
  max_size: 1GB
  compression: true
performance_targets:
  max_memory_response_time: 2ms
  min_cache_hit_rate: 0.85
sla_monitoring:
  enabled: false
  violation_threshold: 5
warmup:
  concurrency: 8
  budget: 500ms
`
	path := filepath.Join(t.TempDir(), "rulecache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0600))

	cfg := NewDefault()
	require.NoError(t, cfg.LoadFromFile(path))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "DEBUG", cfg.Global.LogLevel)
	assert.Equal(t, 500, cfg.Memory.MaxEntries)
	assert.Equal(t, "32MB", cfg.Memory.MemoryLimit)
	assert.Equal(t, 2*time.Minute, cfg.Memory.TTL)
	assert.True(t, cfg.Persistent.Enabled)
	assert.Equal(t, "/var/cache/rules", cfg.Persistent.Directory)
	assert.Equal(t, 2*time.Millisecond, cfg.Targets.MaxMemoryResponseTime)
	assert.Equal(t, 0.85, cfg.Targets.MinCacheHitRate)
	assert.False(t, cfg.SLA.Enabled)
	assert.Equal(t, 5, cfg.SLA.ViolationThreshold)
	assert.Equal(t, 8, cfg.Warmup.Concurrency)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := NewDefault()
	assert.Error(t, cfg.LoadFromFile("/nonexistent/rulecache.yaml"))
}

func TestLoadFromFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml: ["), 0600))

	cfg := NewDefault()
	assert.Error(t, cfg.LoadFromFile(path))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RULECACHE_LOG_LEVEL", "ERROR")
	t.Setenv("RULECACHE_MAX_ENTRIES", "2500")
	t.Setenv("RULECACHE_MEMORY_LIMIT", "128MB")
	t.Setenv("RULECACHE_PERSISTENT_ENABLED", "true")
	t.Setenv("RULECACHE_SLA_ENABLED", "false")
	t.Setenv("RULECACHE_MIN_HIT_RATE", "0.9")
	t.Setenv("RULECACHE_METRICS_PORT", "9999")

	cfg := NewDefault()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "ERROR", cfg.Global.LogLevel)
	assert.Equal(t, 2500, cfg.Memory.MaxEntries)
	assert.Equal(t, "128MB", cfg.Memory.MemoryLimit)
	assert.True(t, cfg.Persistent.Enabled)
	assert.False(t, cfg.SLA.Enabled)
	assert.Equal(t, 0.9, cfg.Targets.MinCacheHitRate)
	assert.Equal(t, 9999, cfg.Monitoring.Metrics.Port)
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rulecache.yaml")

	cfg := NewDefault()
	cfg.Memory.MaxEntries = 777
	cfg.Persistent.Enabled = true
	require.NoError(t, cfg.SaveToFile(path))

	reloaded := NewDefault()
	require.NoError(t, reloaded.LoadFromFile(path))
	assert.Equal(t, 777, reloaded.Memory.MaxEntries)
	assert.True(t, reloaded.Persistent.Enabled)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"zero max entries", func(c *Configuration) { c.Memory.MaxEntries = 0 }},
		{"bad memory limit", func(c *Configuration) { c.Memory.MemoryLimit = "lots" }},
		{"hit rate over 1", func(c *Configuration) { c.Targets.MinCacheHitRate = 1.5 }},
		{"bad log level", func(c *Configuration) { c.Global.LogLevel = "LOUD" }},
		{"enabled tier without directory", func(c *Configuration) {
			c.Persistent.Enabled = true
			c.Persistent.Directory = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCacheOptionsMapping(t *testing.T) {
	cfg := NewDefault()
	cfg.Memory.MaxEntries = 200
	cfg.Memory.MemoryLimit = "1MB"
	cfg.Persistent.Enabled = true
	cfg.Persistent.MaxSize = "2MB"
	cfg.Targets.MaxMemoryUsage = "512KB"
	cfg.SLA.Enabled = false

	opts := cfg.CacheOptions()
	assert.Equal(t, 200, opts.MemoryCache.MaxSize)
	assert.Equal(t, int64(1024*1024), opts.MemoryCache.MemoryLimit)
	assert.True(t, opts.PersistentCache.Enabled)
	assert.Equal(t, int64(2*1024*1024), opts.PersistentCache.MaxSize)
	assert.Equal(t, int64(512*1024), opts.PerformanceTargets.MaxMemoryUsage)
	assert.True(t, opts.SLAMonitoring.Disabled)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		wantErr  bool
	}{
		{"1024", 1024, false},
		{"1KB", 1024, false},
		{"64MB", 64 * 1024 * 1024, false},
		{"1GB", 1024 * 1024 * 1024, false},
		{"1TB", 1024 * 1024 * 1024 * 1024, false},
		{"1.5KB", 1536, false},
		{" 256 MB ", 256 * 1024 * 1024, false},
		{"100B", 100, false},
		{"", 0, true},
		{"abc", 0, true},
		{"12XB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
