// Package stats implements the SLA and statistics engine: an
// event-sourced instrumentation layer fed by the cache orchestrator.
// It maintains rolling time series, derives hit-rate, latency, and
// memory trends, raises threshold alerts, and supports linear-trend
// prediction and multi-format export. The engine is purely an
// observer; it never blocks or mutates cache state.
package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/rulecache/rulecache/pkg/types"
	"github.com/rulecache/rulecache/pkg/utils"
)

// realtimeWindow is the trailing window inspected by GetRealtimeStats.
const realtimeWindow = 60 * time.Second

// Config configures the statistics engine.
type Config struct {
	// RetentionHours bounds the event log in time; events older than
	// this are pruned on every insert.
	RetentionHours int

	// MaxDataPoints caps each time series; the oldest points drop first.
	MaxDataPoints int

	// Alert thresholds for GetRealtimeStats.
	HitRateMin      float64
	ResponseTimeMax time.Duration
	MemoryUsageMax  int64

	Logger *utils.StructuredLogger
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		RetentionHours:  24,
		MaxDataPoints:   1000,
		HitRateMin:      0.70,
		ResponseTimeMax: 100 * time.Millisecond,
		MemoryUsageMax:  512 * 1024 * 1024,
	}
}

// DataPoint is one sample in a time series.
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Engine is the statistics engine. It implements types.EventSink.
type Engine struct {
	mu     sync.RWMutex
	config Config
	logger *utils.StructuredLogger

	events      []types.CacheEvent
	series      map[string][]DataPoint
	memoryTrend []DataPoint

	// Derived analytics series fed by UpdateAnalytics, consumed by
	// trend prediction.
	hitRateSeries      []DataPoint
	responseTimeSeries []DataPoint

	lastTierStats types.PerformanceCacheStats
	closed        bool
}

// NewEngine creates a statistics engine. Zero-valued config fields
// merge over DefaultConfig.
func NewEngine(config Config) *Engine {
	defaults := DefaultConfig()
	if config.RetentionHours <= 0 {
		config.RetentionHours = defaults.RetentionHours
	}
	if config.MaxDataPoints <= 0 {
		config.MaxDataPoints = defaults.MaxDataPoints
	}
	if config.HitRateMin <= 0 {
		config.HitRateMin = defaults.HitRateMin
	}
	if config.ResponseTimeMax <= 0 {
		config.ResponseTimeMax = defaults.ResponseTimeMax
	}
	if config.MemoryUsageMax <= 0 {
		config.MemoryUsageMax = defaults.MemoryUsageMax
	}
	if config.Logger == nil {
		config.Logger = utils.NopLogger()
	}

	return &Engine{
		config: config,
		logger: config.Logger.WithField("component", "stats-engine"),
		series: make(map[string][]DataPoint),
	}
}

// RecordEvent appends an event to the log, the per-(type,layer) time
// series, and, for memory pressure samples, the memory trend. The log
// is pruned by retention on every insert.
func (e *Engine) RecordEvent(event types.CacheEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	e.events = append(e.events, event)
	e.pruneEventsLocked(time.Now())

	point := DataPoint{Timestamp: event.Timestamp, Value: event.Value}
	key := seriesKey(event.Type, event.Layer)
	e.series[key] = appendCapped(e.series[key], point, e.config.MaxDataPoints)

	if event.Type == types.EventMemoryPressure {
		e.memoryTrend = appendCapped(e.memoryTrend, point, e.config.MaxDataPoints)
	}
}

// UpdateAnalytics records a tier statistics snapshot and feeds the
// derived hit-rate and response-time series used for trend prediction.
func (e *Engine) UpdateAnalytics(tierStats types.PerformanceCacheStats) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	now := time.Now()
	e.lastTierStats = tierStats
	e.hitRateSeries = appendCapped(e.hitRateSeries,
		DataPoint{Timestamp: now, Value: tierStats.HitRate}, e.config.MaxDataPoints)
	e.responseTimeSeries = appendCapped(e.responseTimeSeries,
		DataPoint{Timestamp: now, Value: e.avgResponseTimeLocked(now.Add(-realtimeWindow))}, e.config.MaxDataPoints)
}

// CacheAnalytics is the derived analytics snapshot. All counters are
// recomputed from the event log, never maintained incrementally.
type CacheAnalytics struct {
	TotalEvents       int                         `json:"total_events"`
	HitCount          int                         `json:"hit_count"`
	MissCount         int                         `json:"miss_count"`
	HitRate           float64                     `json:"hit_rate"`
	AvgResponseTimeMs float64                     `json:"avg_response_time_ms"`
	EvictionSweeps    int                         `json:"eviction_sweeps"`
	Promotions        int                         `json:"promotions"`
	SLAViolations     int                         `json:"sla_violations"`
	MemoryUsage       float64                     `json:"memory_usage"`
	MemoryTrend       []DataPoint                 `json:"memory_trend"`
	TierStats         types.PerformanceCacheStats `json:"tier_stats"`
	GeneratedAt       time.Time                   `json:"generated_at"`
}

// GetAnalytics recomputes analytics from the event log.
func (e *Engine) GetAnalytics() CacheAnalytics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.analyticsLocked()
}

func (e *Engine) analyticsLocked() CacheAnalytics {
	a := CacheAnalytics{
		TotalEvents: len(e.events),
		TierStats:   e.lastTierStats,
		GeneratedAt: time.Now(),
	}

	var latencySum float64
	var latencyCount int
	for _, ev := range e.events {
		switch ev.Type {
		case types.EventHit:
			a.HitCount++
			latencySum += ev.Value
			latencyCount++
		case types.EventMiss:
			a.MissCount++
			latencySum += ev.Value
			latencyCount++
		case types.EventEviction:
			a.EvictionSweeps++
		case types.EventPromotion:
			a.Promotions++
		case types.EventSLAViolation:
			a.SLAViolations++
		}
	}
	if total := a.HitCount + a.MissCount; total > 0 {
		a.HitRate = float64(a.HitCount) / float64(total)
	}
	if latencyCount > 0 {
		a.AvgResponseTimeMs = latencySum / float64(latencyCount)
	}
	if n := len(e.memoryTrend); n > 0 {
		a.MemoryUsage = e.memoryTrend[n-1].Value
	}
	a.MemoryTrend = make([]DataPoint, len(e.memoryTrend))
	copy(a.MemoryTrend, e.memoryTrend)
	return a
}

// RealtimeStats describes the trailing 60 seconds of traffic.
type RealtimeStats struct {
	HitRate        float64            `json:"hit_rate"`
	ResponseTimeMs float64            `json:"response_time_ms"`
	MemoryUsage    float64            `json:"memory_usage"`
	RecentEvents   []types.CacheEvent `json:"recent_events"`
	Alerts         []string           `json:"alerts"`
}

// GetRealtimeStats recomputes hit rate and average response time over
// the trailing 60 seconds and compares them against the configured
// thresholds. With no recent traffic, no alerts are raised.
func (e *Engine) GetRealtimeStats() RealtimeStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cutoff := time.Now().Add(-realtimeWindow)
	var hits, misses int
	var latencySum float64
	var latencyCount int
	var recent []types.CacheEvent
	var pressureSampled bool
	var pressureLatest float64

	for _, ev := range e.events {
		if ev.Timestamp.Before(cutoff) {
			continue
		}
		recent = append(recent, ev)
		switch ev.Type {
		case types.EventHit:
			hits++
			latencySum += ev.Value
			latencyCount++
		case types.EventMiss:
			misses++
			latencySum += ev.Value
			latencyCount++
		case types.EventMemoryPressure:
			pressureSampled = true
			pressureLatest = ev.Value
		}
	}

	stats := RealtimeStats{RecentEvents: recent}
	if n := len(e.memoryTrend); n > 0 {
		stats.MemoryUsage = e.memoryTrend[n-1].Value
	}

	total := hits + misses
	if total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	if latencyCount > 0 {
		stats.ResponseTimeMs = latencySum / float64(latencyCount)
	}

	// Alerts only when there is traffic to judge.
	if total > 0 {
		if stats.HitRate < e.config.HitRateMin {
			stats.Alerts = append(stats.Alerts, fmt.Sprintf(
				"hit rate %.1f%% below threshold %.1f%%", stats.HitRate*100, e.config.HitRateMin*100))
		}
		maxMs := float64(e.config.ResponseTimeMax.Microseconds()) / 1000.0
		if latencyCount > 0 && stats.ResponseTimeMs > maxMs {
			stats.Alerts = append(stats.Alerts, fmt.Sprintf(
				"avg response time %.2fms above threshold %.2fms", stats.ResponseTimeMs, maxMs))
		}
	}
	// The memory alert needs a pressure sample inside the window; a
	// stale trend point from minutes ago is not actionable.
	if pressureSampled && pressureLatest > float64(e.config.MemoryUsageMax) {
		stats.Alerts = append(stats.Alerts, fmt.Sprintf(
			"memory usage %.0f bytes above threshold %d bytes", pressureLatest, e.config.MemoryUsageMax))
	}
	return stats
}

// Snapshot is a compact engine summary.
type Snapshot struct {
	Events       int       `json:"events"`
	Series       int       `json:"series"`
	TrendSamples int       `json:"trend_samples"`
	HitRate      float64   `json:"hit_rate"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// GetSnapshot returns a compact summary of engine state.
func (e *Engine) GetSnapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a := e.analyticsLocked()
	return Snapshot{
		Events:       len(e.events),
		Series:       len(e.series),
		TrendSamples: len(e.memoryTrend),
		HitRate:      a.HitRate,
		GeneratedAt:  time.Now(),
	}
}

// Destroy drops all recorded state. Idempotent; a destroyed engine
// ignores further events.
func (e *Engine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	e.events = nil
	e.series = make(map[string][]DataPoint)
	e.memoryTrend = nil
	e.hitRateSeries = nil
	e.responseTimeSeries = nil
}

// Internal helpers.

func seriesKey(et types.EventType, layer types.CacheLayer) string {
	return string(et) + ":" + string(layer)
}

func appendCapped(points []DataPoint, p DataPoint, max int) []DataPoint {
	points = append(points, p)
	if len(points) > max {
		points = points[len(points)-max:]
	}
	return points
}

func (e *Engine) pruneEventsLocked(now time.Time) {
	cutoff := now.Add(-time.Duration(e.config.RetentionHours) * time.Hour)
	firstLive := 0
	for firstLive < len(e.events) && e.events[firstLive].Timestamp.Before(cutoff) {
		firstLive++
	}
	if firstLive > 0 {
		e.events = append([]types.CacheEvent(nil), e.events[firstLive:]...)
	}
}

func (e *Engine) avgResponseTimeLocked(cutoff time.Time) float64 {
	var sum float64
	var count int
	for _, ev := range e.events {
		if ev.Timestamp.Before(cutoff) {
			continue
		}
		if ev.Type == types.EventHit || ev.Type == types.EventMiss {
			sum += ev.Value
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
