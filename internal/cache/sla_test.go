package cache

import (
	"testing"
	"time"

	"github.com/rulecache/rulecache/pkg/types"
)

func newTestTracker(targets PerformanceTargets, config SLAOptions) *slaTracker {
	if targets.MaxMemoryResponseTime <= 0 {
		targets.MaxMemoryResponseTime = 100 * time.Millisecond
	}
	if targets.MaxPersistentResponseTime <= 0 {
		targets.MaxPersistentResponseTime = 100 * time.Millisecond
	}
	if targets.MinCacheHitRate <= 0 {
		targets.MinCacheHitRate = 0.70
	}
	if targets.MaxMemoryUsage <= 0 {
		targets.MaxMemoryUsage = 1024
	}
	if config.ViolationThreshold <= 0 {
		config.ViolationThreshold = 10
	}
	if config.MonitoringWindow <= 0 {
		config.MonitoringWindow = 5 * time.Minute
	}
	return newSLATracker(targets, config)
}

// TestSLATracker_ResponseTimeSeverity tests severity grading against a
// 100ms target
func TestSLATracker_ResponseTimeSeverity(t *testing.T) {
	tests := []struct {
		name     string
		elapsed  time.Duration
		severity types.SLASeverity
	}{
		{"20% over is low", 120 * time.Millisecond, types.SeverityLow},
		{"exactly 1.5x is medium", 150 * time.Millisecond, types.SeverityMedium},
		{"2.5x is high", 250 * time.Millisecond, types.SeverityHigh},
		{"3x is critical", 300 * time.Millisecond, types.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := newTestTracker(PerformanceTargets{}, SLAOptions{})
			v := tracker.checkResponseTime(types.LayerMemory, tt.elapsed)
			if v == nil {
				t.Fatal("expected a violation")
			}
			if v.Severity != tt.severity {
				t.Errorf("expected severity %v, got %v", tt.severity, v.Severity)
			}
			if v.Type != types.ViolationResponseTime {
				t.Errorf("expected response_time type, got %v", v.Type)
			}
		})
	}
}

// TestSLATracker_ResponseTimeWithinTarget tests that meeting the
// target records nothing
func TestSLATracker_ResponseTimeWithinTarget(t *testing.T) {
	tracker := newTestTracker(PerformanceTargets{}, SLAOptions{})

	if v := tracker.checkResponseTime(types.LayerMemory, 50*time.Millisecond); v != nil {
		t.Error("no violation expected within target")
	}
	if v := tracker.checkResponseTime(types.LayerMemory, 100*time.Millisecond); v != nil {
		t.Error("exactly meeting the target should not violate")
	}
	if len(tracker.snapshot()) != 0 {
		t.Error("no violations should be recorded")
	}
}

// TestSLATracker_PerLayerTargets tests that each layer is judged
// against its own target
func TestSLATracker_PerLayerTargets(t *testing.T) {
	tracker := newTestTracker(PerformanceTargets{
		MaxMemoryResponseTime:     5 * time.Millisecond,
		MaxPersistentResponseTime: 50 * time.Millisecond,
	}, SLAOptions{})

	// 20ms violates the memory target but not the persistent one.
	if v := tracker.checkResponseTime(types.LayerMemory, 20*time.Millisecond); v == nil {
		t.Error("20ms should violate the 5ms memory target")
	}
	if v := tracker.checkResponseTime(types.LayerPersistent, 20*time.Millisecond); v != nil {
		t.Error("20ms should not violate the 50ms persistent target")
	}
}

// TestSLATracker_HitRateViolation tests the inverted-ratio severity for
// hit-rate shortfalls
func TestSLATracker_HitRateViolation(t *testing.T) {
	tracker := newTestTracker(PerformanceTargets{MinCacheHitRate: 0.70}, SLAOptions{})

	if v := tracker.checkHitRate(types.LayerMemory, 0.80); v != nil {
		t.Error("hit rate above the minimum should not violate")
	}

	v := tracker.checkHitRate(types.LayerMemory, 0.60)
	if v == nil {
		t.Fatal("expected a violation")
	}
	if v.Severity != types.SeverityLow {
		t.Errorf("0.70/0.60 ratio should be low severity, got %v", v.Severity)
	}

	// A zero hit rate grades as critical.
	v = tracker.checkHitRate(types.LayerMemory, 0)
	if v == nil {
		t.Fatal("expected a violation for zero hit rate")
	}
	if v.Severity != types.SeverityCritical {
		t.Errorf("zero hit rate should be critical, got %v", v.Severity)
	}
}

// TestSLATracker_MemoryUsageViolation tests the memory usage check
func TestSLATracker_MemoryUsageViolation(t *testing.T) {
	tracker := newTestTracker(PerformanceTargets{MaxMemoryUsage: 1000}, SLAOptions{})

	if v := tracker.checkMemoryUsage(1000); v != nil {
		t.Error("usage at the target should not violate")
	}

	v := tracker.checkMemoryUsage(2500)
	if v == nil {
		t.Fatal("expected a violation")
	}
	if v.Type != types.ViolationMemoryUsage {
		t.Errorf("expected memory_usage type, got %v", v.Type)
	}
	if v.Severity != types.SeverityHigh {
		t.Errorf("2.5x usage should be high severity, got %v", v.Severity)
	}
}

// TestSLATracker_Compliance tests the compliance formula
func TestSLATracker_Compliance(t *testing.T) {
	tracker := newTestTracker(PerformanceTargets{}, SLAOptions{ViolationThreshold: 10})

	if got := tracker.compliance(); got != 100 {
		t.Errorf("expected 100%% compliance with no violations, got %f", got)
	}

	for i := 0; i < 5; i++ {
		tracker.checkResponseTime(types.LayerMemory, 200*time.Millisecond)
	}
	if got := tracker.compliance(); got != 50 {
		t.Errorf("expected 50%% compliance at 5/10 violations, got %f", got)
	}

	for i := 0; i < 10; i++ {
		tracker.checkResponseTime(types.LayerMemory, 200*time.Millisecond)
	}
	if got := tracker.compliance(); got != 0 {
		t.Errorf("compliance should clamp at 0, got %f", got)
	}
}

// TestSLATracker_WindowPruning tests that violations age out of the
// monitoring window
func TestSLATracker_WindowPruning(t *testing.T) {
	tracker := newTestTracker(PerformanceTargets{}, SLAOptions{
		ViolationThreshold: 10,
		MonitoringWindow:   50 * time.Millisecond,
	})

	tracker.checkResponseTime(types.LayerMemory, 200*time.Millisecond)
	if len(tracker.snapshot()) != 1 {
		t.Fatal("expected 1 in-window violation")
	}

	time.Sleep(80 * time.Millisecond)

	if len(tracker.snapshot()) != 0 {
		t.Error("violation should have aged out of the window")
	}
	if got := tracker.compliance(); got != 100 {
		t.Errorf("compliance should recover to 100%%, got %f", got)
	}
}

// TestSLATracker_Disabled tests that a disabled tracker records nothing
func TestSLATracker_Disabled(t *testing.T) {
	tracker := newTestTracker(PerformanceTargets{}, SLAOptions{Disabled: true})

	if v := tracker.checkResponseTime(types.LayerMemory, time.Second); v != nil {
		t.Error("disabled tracker should not report response time violations")
	}
	if v := tracker.checkHitRate(types.LayerMemory, 0.1); v != nil {
		t.Error("disabled tracker should not report hit rate violations")
	}
	if v := tracker.checkMemoryUsage(1 << 40); v != nil {
		t.Error("disabled tracker should not report memory violations")
	}
	tracker.recordViolation(types.SLAViolation{Type: types.ViolationResponseTime})
	if len(tracker.snapshot()) != 0 {
		t.Error("disabled tracker should record nothing")
	}
	if got := tracker.compliance(); got != 100 {
		t.Errorf("disabled tracker compliance should be 100%%, got %f", got)
	}
}
