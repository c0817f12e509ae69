package stats

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rulecache/rulecache/pkg/errors"
	"github.com/rulecache/rulecache/pkg/types"
)

// csvExportLimit bounds the CSV export to the most recent events.
const csvExportLimit = 1000

// ExportStatistics serializes the engine's state in the requested
// format: "json" (analytics plus recent events and time series), "csv"
// (timestamp,type,layer,value rows of the last 1000 events), or
// "prometheus" (the three cache gauges in exposition format). An
// unrecognized format is a configuration error.
func (e *Engine) ExportStatistics(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return e.exportJSON()
	case "csv":
		return e.exportCSV(), nil
	case "prometheus":
		return e.exportPrometheus(), nil
	default:
		return "", errors.NewError(errors.ErrCodeInvalidFormat, "unsupported export format").
			WithComponent("stats-engine").WithOperation("export").WithDetail("format", format)
	}
}

func (e *Engine) exportJSON() (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	recent := e.events
	if len(recent) > csvExportLimit {
		recent = recent[len(recent)-csvExportLimit:]
	}
	eventsCopy := make([]types.CacheEvent, len(recent))
	copy(eventsCopy, recent)

	seriesCopy := make(map[string][]DataPoint, len(e.series))
	for key, points := range e.series {
		cp := make([]DataPoint, len(points))
		copy(cp, points)
		seriesCopy[key] = cp
	}

	payload := struct {
		Analytics    CacheAnalytics         `json:"analytics"`
		RecentEvents []types.CacheEvent     `json:"recent_events"`
		TimeSeries   map[string][]DataPoint `json:"time_series"`
	}{
		Analytics:    e.analyticsLocked(),
		RecentEvents: eventsCopy,
		TimeSeries:   seriesCopy,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", errors.WrapError(err, errors.ErrCodeInternalError, "failed to marshal statistics").
			WithComponent("stats-engine")
	}
	return string(data), nil
}

func (e *Engine) exportCSV() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	events := e.events
	if len(events) > csvExportLimit {
		events = events[len(events)-csvExportLimit:]
	}

	var b strings.Builder
	b.WriteString("timestamp,type,layer,value\n")
	for _, ev := range events {
		fmt.Fprintf(&b, "%s,%s,%s,%g\n",
			ev.Timestamp.Format(time.RFC3339Nano), ev.Type, ev.Layer, ev.Value)
	}
	return b.String()
}

func (e *Engine) exportPrometheus() string {
	e.mu.RLock()
	a := e.analyticsLocked()
	e.mu.RUnlock()

	var b strings.Builder
	b.WriteString("# HELP cache_hit_rate Ratio of cache hits to total lookups.\n")
	b.WriteString("# TYPE cache_hit_rate gauge\n")
	fmt.Fprintf(&b, "cache_hit_rate %g\n", a.HitRate)
	b.WriteString("# HELP cache_response_time_ms Average lookup latency in milliseconds.\n")
	b.WriteString("# TYPE cache_response_time_ms gauge\n")
	fmt.Fprintf(&b, "cache_response_time_ms %g\n", a.AvgResponseTimeMs)
	b.WriteString("# HELP cache_memory_bytes Estimated memory tier usage in bytes.\n")
	b.WriteString("# TYPE cache_memory_bytes gauge\n")
	fmt.Fprintf(&b, "cache_memory_bytes %g\n", a.MemoryUsage)
	return b.String()
}

// GeneratePerformanceReport renders a human-readable report over the
// given window; a non-positive window covers the whole retained log.
func (e *Engine) GeneratePerformanceReport(window time.Duration) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cutoff := time.Time{}
	if window > 0 {
		cutoff = time.Now().Add(-window)
	}

	var hits, misses, evictionSweeps, promotions, violations int
	var latencySum float64
	var latencyCount int
	byLayer := make(map[types.CacheLayer]int)

	for _, ev := range e.events {
		if !cutoff.IsZero() && ev.Timestamp.Before(cutoff) {
			continue
		}
		switch ev.Type {
		case types.EventHit:
			hits++
			byLayer[ev.Layer]++
			latencySum += ev.Value
			latencyCount++
		case types.EventMiss:
			misses++
			latencySum += ev.Value
			latencyCount++
		case types.EventEviction:
			evictionSweeps++
		case types.EventPromotion:
			promotions++
		case types.EventSLAViolation:
			violations++
		}
	}

	var b strings.Builder
	b.WriteString("Cache Performance Report\n")
	b.WriteString("========================\n")
	if window > 0 {
		fmt.Fprintf(&b, "Window: last %s\n", window)
	} else {
		b.WriteString("Window: full retention\n")
	}
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().Format(time.RFC3339))

	total := hits + misses
	fmt.Fprintf(&b, "Lookups: %d (hits %d, misses %d)\n", total, hits, misses)
	if total > 0 {
		fmt.Fprintf(&b, "Hit rate: %.1f%%\n", float64(hits)/float64(total)*100)
		fmt.Fprintf(&b, "  memory tier hits: %d\n", byLayer[types.LayerMemory])
		fmt.Fprintf(&b, "  persistent tier hits: %d\n", byLayer[types.LayerPersistent])
	}
	if latencyCount > 0 {
		fmt.Fprintf(&b, "Avg response time: %.2fms\n", latencySum/float64(latencyCount))
	}
	fmt.Fprintf(&b, "Promotions: %d\n", promotions)
	fmt.Fprintf(&b, "Eviction sweeps: %d\n", evictionSweeps)
	fmt.Fprintf(&b, "SLA violations: %d\n", violations)
	if n := len(e.memoryTrend); n > 0 {
		fmt.Fprintf(&b, "Memory usage: %.0f bytes\n", e.memoryTrend[n-1].Value)
	}
	return b.String()
}
