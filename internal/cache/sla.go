package cache

import (
	"sync"
	"time"

	"github.com/rulecache/rulecache/pkg/types"
)

// slaTracker records SLA violations against the configured performance
// targets and derives the compliance rate on demand. Violations are
// immutable once recorded and pruned to the monitoring window.
type slaTracker struct {
	mu         sync.Mutex
	targets    PerformanceTargets
	config     SLAOptions
	violations []types.SLAViolation
}

func newSLATracker(targets PerformanceTargets, config SLAOptions) *slaTracker {
	return &slaTracker{
		targets: targets,
		config:  config,
	}
}

// checkResponseTime records a response_time violation when elapsed
// exceeds the target for the given layer. Returns the violation, if any.
func (s *slaTracker) checkResponseTime(layer types.CacheLayer, elapsed time.Duration) *types.SLAViolation {
	if s.config.Disabled {
		return nil
	}

	target := s.targets.MaxMemoryResponseTime
	if layer == types.LayerPersistent {
		target = s.targets.MaxPersistentResponseTime
	}
	if elapsed <= target {
		return nil
	}

	v := types.NewSLAViolation(types.ViolationResponseTime, layer,
		float64(elapsed.Microseconds())/1000.0, float64(target.Microseconds())/1000.0)
	s.record(v)
	return &v
}

// checkHitRate records a hit_rate violation when the measured rate is
// below the minimum target. Severity uses the inverted ratio since
// lower is worse here.
func (s *slaTracker) checkHitRate(layer types.CacheLayer, actual float64) *types.SLAViolation {
	if s.config.Disabled || actual >= s.targets.MinCacheHitRate {
		return nil
	}

	ratio := 3.0
	if actual > 0 {
		ratio = s.targets.MinCacheHitRate / actual
	}
	v := types.SLAViolation{
		Type:        types.ViolationHitRate,
		Layer:       layer,
		ActualValue: actual,
		TargetValue: s.targets.MinCacheHitRate,
		Timestamp:   time.Now(),
		Severity:    types.SeverityForRatio(ratio),
	}
	s.record(v)
	return &v
}

// checkMemoryUsage records a memory_usage violation when usage exceeds
// the configured target.
func (s *slaTracker) checkMemoryUsage(usage int64) *types.SLAViolation {
	if s.config.Disabled || usage <= s.targets.MaxMemoryUsage {
		return nil
	}

	v := types.NewSLAViolation(types.ViolationMemoryUsage, types.LayerMemory,
		float64(usage), float64(s.targets.MaxMemoryUsage))
	s.record(v)
	return &v
}

// recordViolation appends a pre-built violation, for cases where the
// severity is fixed by policy rather than derived (warmup overruns).
func (s *slaTracker) recordViolation(v types.SLAViolation) {
	if s.config.Disabled {
		return
	}
	s.record(v)
}

func (s *slaTracker) record(v types.SLAViolation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations = append(s.violations, v)
	s.pruneLocked(time.Now())
}

// compliance computes the compliance rate from in-window violations:
// max(0, 100 - violations/threshold * 100). Recomputed from the list on
// every call, never cached.
func (s *slaTracker) compliance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(time.Now())
	rate := 100.0 - float64(len(s.violations))/float64(s.config.ViolationThreshold)*100.0
	if rate < 0 {
		return 0
	}
	return rate
}

// snapshot returns a copy of the in-window violations.
func (s *slaTracker) snapshot() []types.SLAViolation {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(time.Now())
	out := make([]types.SLAViolation, len(s.violations))
	copy(out, s.violations)
	return out
}

func (s *slaTracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.config.MonitoringWindow)
	kept := s.violations[:0]
	for _, v := range s.violations {
		if v.Timestamp.After(cutoff) {
			kept = append(kept, v)
		}
	}
	s.violations = kept
}
