// Package types defines the shared data model for the rulecache tiers,
// the orchestrator, and the statistics engine.
package types

import (
	"time"
)

// CacheLayer identifies which tier satisfied or produced an event.
type CacheLayer string

const (
	LayerMemory     CacheLayer = "memory"
	LayerPersistent CacheLayer = "persistent"
)

// MemoryPressureLevel indicates how close the memory tier is to its
// configured limit. Levels are ordered; comparisons with < and > are valid.
type MemoryPressureLevel int

const (
	PressureNone MemoryPressureLevel = iota
	PressureLow
	PressureMedium
	PressureHigh
	PressureCritical
)

// String returns the string representation of a pressure level.
func (l MemoryPressureLevel) String() string {
	switch l {
	case PressureNone:
		return "none"
	case PressureLow:
		return "low"
	case PressureMedium:
		return "medium"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// PressureLevelForRatio derives the pressure level from usage/limit.
// Band edges are 0.50, 0.65, 0.80 and 0.90.
func PressureLevelForRatio(ratio float64) MemoryPressureLevel {
	switch {
	case ratio < 0.50:
		return PressureNone
	case ratio < 0.65:
		return PressureLow
	case ratio < 0.80:
		return PressureMedium
	case ratio < 0.90:
		return PressureHigh
	default:
		return PressureCritical
	}
}

// CacheOrigin records which tier satisfied the most recent read of a key
// and how long that read took.
type CacheOrigin struct {
	Layer     CacheLayer    `json:"layer"`
	Timestamp time.Time     `json:"timestamp"`
	HitTime   time.Duration `json:"hit_time"`
}

// SLAViolationType classifies a recorded SLA violation.
type SLAViolationType string

const (
	ViolationResponseTime SLAViolationType = "response_time"
	ViolationHitRate      SLAViolationType = "hit_rate"
	ViolationMemoryUsage  SLAViolationType = "memory_usage"
)

// SLASeverity grades a violation by how far the measured value exceeded
// its target.
type SLASeverity string

const (
	SeverityLow      SLASeverity = "low"
	SeverityMedium   SLASeverity = "medium"
	SeverityHigh     SLASeverity = "high"
	SeverityCritical SLASeverity = "critical"
)

// SeverityForRatio computes severity from actual/target.
func SeverityForRatio(ratio float64) SLASeverity {
	switch {
	case ratio < 1.5:
		return SeverityLow
	case ratio < 2:
		return SeverityMedium
	case ratio < 3:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// SLAViolation is an immutable record of an operation exceeding a
// configured performance target.
type SLAViolation struct {
	Type        SLAViolationType `json:"type"`
	Layer       CacheLayer       `json:"layer"`
	ActualValue float64          `json:"actual_value"`
	TargetValue float64          `json:"target_value"`
	Timestamp   time.Time        `json:"timestamp"`
	Severity    SLASeverity      `json:"severity"`
}

// NewSLAViolation builds a violation with severity derived from the
// actual/target ratio.
func NewSLAViolation(vt SLAViolationType, layer CacheLayer, actual, target float64) SLAViolation {
	ratio := actual
	if target > 0 {
		ratio = actual / target
	}
	return SLAViolation{
		Type:        vt,
		Layer:       layer,
		ActualValue: actual,
		TargetValue: target,
		Timestamp:   time.Now(),
		Severity:    SeverityForRatio(ratio),
	}
}

// EventType classifies entries in the statistics engine's event log.
type EventType string

const (
	EventHit            EventType = "hit"
	EventMiss           EventType = "miss"
	EventEviction       EventType = "eviction"
	EventPromotion      EventType = "promotion"
	EventCleanup        EventType = "cleanup"
	EventWarmup         EventType = "warmup"
	EventSLAViolation   EventType = "sla_violation"
	EventMemoryPressure EventType = "memory_pressure"
)

// CacheEvent is one append-only entry in the statistics engine's log.
// Value carries the event's scalar measurement: latency in milliseconds
// for hits and misses, bytes for memory pressure samples, counts for
// cleanup and eviction sweeps.
type CacheEvent struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Layer     CacheLayer             `json:"layer"`
	Key       string                 `json:"key,omitempty"`
	Value     float64                `json:"value"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// TierStats represents performance statistics for a single tier.
type TierStats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Entries     int     `json:"entries"`
	MemoryUsage int64   `json:"memory_usage"`
	Capacity    int64   `json:"capacity"`
	HitRate     float64 `json:"hit_rate"`
	Utilization float64 `json:"utilization"`
}

// PerformanceCacheStats is the orchestrator's combined statistics
// snapshot across both tiers.
type PerformanceCacheStats struct {
	Memory         TierStats           `json:"memory"`
	Persistent     TierStats           `json:"persistent"`
	TotalHits      uint64              `json:"total_hits"`
	TotalMisses    uint64              `json:"total_misses"`
	Promotions     uint64              `json:"promotions"`
	HitRate        float64             `json:"hit_rate"`
	PressureLevel  MemoryPressureLevel `json:"pressure_level"`
	SLACompliance  float64             `json:"sla_compliance"`
	ViolationCount int                 `json:"violation_count"`
}
