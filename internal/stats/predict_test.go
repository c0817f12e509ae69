package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulecache/rulecache/pkg/types"
)

// seedTrend installs evenly spaced samples directly into a series so
// the regression input is deterministic.
func seedTrend(start time.Time, step time.Duration, values []float64) []DataPoint {
	points := make([]DataPoint, len(values))
	for i, v := range values {
		points[i] = DataPoint{Timestamp: start.Add(time.Duration(i) * step), Value: v}
	}
	return points
}

func TestExtrapolateEmptySeries(t *testing.T) {
	assert.Equal(t, 0.0, extrapolate(nil, 1))
}

func TestExtrapolateSinglePoint(t *testing.T) {
	series := []DataPoint{{Timestamp: time.Now(), Value: 0.8}}
	assert.Equal(t, 0.8, extrapolate(series, 5), "one sample projects flat")
}

func TestExtrapolateLinearTrend(t *testing.T) {
	// Memory usage growing 100 bytes per hour; one hour ahead should
	// land 100 above the last sample.
	start := time.Now().Add(-4 * time.Hour)
	series := seedTrend(start, time.Hour, []float64{1000, 1100, 1200, 1300, 1400})

	got := extrapolate(series, 1)
	assert.InDelta(t, 1500, got, 1e-6)

	got = extrapolate(series, 3)
	assert.InDelta(t, 1700, got, 1e-6)
}

func TestExtrapolateUsesRecentWindowOnly(t *testing.T) {
	// Eight samples where the early ones trend down but the last five
	// are flat; only the recent window should matter.
	start := time.Now().Add(-8 * time.Hour)
	series := seedTrend(start, time.Hour, []float64{900, 700, 500, 400, 400, 400, 400, 400})

	got := extrapolate(series, 2)
	assert.InDelta(t, 400, got, 1e-6)
}

func TestExtrapolateFlatSeries(t *testing.T) {
	start := time.Now().Add(-2 * time.Hour)
	series := seedTrend(start, time.Hour, []float64{0.75, 0.75, 0.75})
	assert.InDelta(t, 0.75, extrapolate(series, 10), 1e-9)
}

func TestConfidenceSteps(t *testing.T) {
	assert.Equal(t, 0.9, confidenceForSamples(12))
	assert.Equal(t, 0.9, confidenceForSamples(10))
	assert.Equal(t, 0.7, confidenceForSamples(5))
	assert.Equal(t, 0.5, confidenceForSamples(3))
	assert.Equal(t, 0.3, confidenceForSamples(2))
	assert.Equal(t, 0.3, confidenceForSamples(0))
}

func TestPredictPerformanceClampsHitRate(t *testing.T) {
	engine := NewEngine(Config{})
	defer engine.Destroy()

	// A steeply rising hit-rate trend must clamp to 1.
	start := time.Now().Add(-2 * time.Hour)
	engine.mu.Lock()
	engine.hitRateSeries = seedTrend(start, time.Hour, []float64{0.5, 0.7, 0.9})
	engine.mu.Unlock()

	p := engine.PredictPerformance(5)
	assert.Equal(t, 1.0, p.PredictedHitRate)
}

func TestPredictPerformanceClampsNegatives(t *testing.T) {
	engine := NewEngine(Config{})
	defer engine.Destroy()

	start := time.Now().Add(-2 * time.Hour)
	engine.mu.Lock()
	engine.memoryTrend = seedTrend(start, time.Hour, []float64{3000, 2000, 1000})
	engine.mu.Unlock()

	p := engine.PredictPerformance(5)
	assert.Equal(t, 0.0, p.PredictedMemoryUsage, "projected usage clamps at zero")
}

func TestPredictPerformanceConfidenceFromSparsestSeries(t *testing.T) {
	engine := NewEngine(Config{})
	defer engine.Destroy()

	start := time.Now().Add(-10 * time.Hour)
	engine.mu.Lock()
	engine.hitRateSeries = seedTrend(start, time.Hour, make([]float64, 10))
	engine.memoryTrend = seedTrend(start, time.Hour, make([]float64, 3))
	engine.responseTimeSeries = seedTrend(start, time.Hour, make([]float64, 10))
	engine.mu.Unlock()

	p := engine.PredictPerformance(1)
	assert.Equal(t, 0.5, p.Confidence, "confidence follows the sparsest input")
}

func TestPredictPerformanceRecommendations(t *testing.T) {
	engine := NewEngine(Config{
		HitRateMin:      0.70,
		ResponseTimeMax: 10 * time.Millisecond,
		MemoryUsageMax:  1000,
	})
	defer engine.Destroy()

	start := time.Now().Add(-2 * time.Hour)
	engine.mu.Lock()
	engine.hitRateSeries = seedTrend(start, time.Hour, []float64{0.5, 0.5, 0.5})
	engine.memoryTrend = seedTrend(start, time.Hour, []float64{5000, 5000, 5000})
	engine.responseTimeSeries = seedTrend(start, time.Hour, []float64{50, 50, 50})
	engine.mu.Unlock()

	p := engine.PredictPerformance(1)
	require.Len(t, p.Recommendations, 3)
	assert.Contains(t, p.Recommendations[0], "hit rate")
	assert.Contains(t, p.Recommendations[1], "memory usage")
	assert.Contains(t, p.Recommendations[2], "response time")
}

func TestPredictPerformanceHealthySystemNoRecommendations(t *testing.T) {
	engine := NewEngine(Config{})
	defer engine.Destroy()

	for i := 0; i < 5; i++ {
		engine.RecordEvent(types.CacheEvent{
			Type:      types.EventMemoryPressure,
			Timestamp: time.Now(),
			Layer:     types.LayerMemory,
			Value:     1000,
		})
		engine.UpdateAnalytics(types.PerformanceCacheStats{HitRate: 0.95})
	}

	p := engine.PredictPerformance(1)
	assert.Empty(t, p.Recommendations)
}
