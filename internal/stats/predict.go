package stats

import (
	"fmt"
)

// trendSamples bounds how many recent points feed the regression.
const trendSamples = 5

// Prediction extrapolates cache performance a number of hours ahead.
// Confidence is a step function of sample count and is a heuristic,
// not a statistical guarantee.
type Prediction struct {
	PredictedHitRate      float64  `json:"predicted_hit_rate"`
	PredictedMemoryUsage  float64  `json:"predicted_memory_usage"`
	PredictedResponseTime float64  `json:"predicted_response_time_ms"`
	Confidence            float64  `json:"confidence"`
	Recommendations       []string `json:"recommendations"`
}

// PredictPerformance estimates hit rate, memory usage, and response
// time after the given number of hours by ordinary least-squares linear
// regression over the most recent points of each trend series.
func (e *Engine) PredictPerformance(hours float64) Prediction {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p := Prediction{
		PredictedHitRate:      extrapolate(e.hitRateSeries, hours),
		PredictedMemoryUsage:  extrapolate(e.memoryTrend, hours),
		PredictedResponseTime: extrapolate(e.responseTimeSeries, hours),
		Confidence:            confidenceForSamples(minSamples(len(e.hitRateSeries), len(e.memoryTrend), len(e.responseTimeSeries))),
	}
	if p.PredictedHitRate < 0 {
		p.PredictedHitRate = 0
	}
	if p.PredictedHitRate > 1 {
		p.PredictedHitRate = 1
	}
	if p.PredictedMemoryUsage < 0 {
		p.PredictedMemoryUsage = 0
	}
	if p.PredictedResponseTime < 0 {
		p.PredictedResponseTime = 0
	}

	p.Recommendations = e.recommendationsLocked(p)
	return p
}

// recommendationsLocked produces threshold-triggered advisory strings.
// They are informational only and never auto-applied.
func (e *Engine) recommendationsLocked(p Prediction) []string {
	var recs []string
	if p.PredictedHitRate > 0 && p.PredictedHitRate < e.config.HitRateMin {
		recs = append(recs, fmt.Sprintf(
			"predicted hit rate %.1f%% is below %.1f%%: consider a larger memory tier or longer TTLs",
			p.PredictedHitRate*100, e.config.HitRateMin*100))
	}
	if p.PredictedMemoryUsage > float64(e.config.MemoryUsageMax) {
		recs = append(recs, "predicted memory usage exceeds the configured limit: consider shorter TTLs or enabling the persistent tier")
	}
	maxMs := float64(e.config.ResponseTimeMax.Microseconds()) / 1000.0
	if p.PredictedResponseTime > maxMs {
		recs = append(recs, fmt.Sprintf(
			"predicted response time %.2fms exceeds %.2fms: consider warming critical keys", p.PredictedResponseTime, maxMs))
	}
	return recs
}

// extrapolate fits a least-squares line through the most recent points
// of the series (at most trendSamples) and projects lastValue plus
// slope times hours.
func extrapolate(series []DataPoint, hours float64) float64 {
	n := len(series)
	if n == 0 {
		return 0
	}
	last := series[n-1].Value
	if n < 2 {
		return last
	}

	points := series
	if n > trendSamples {
		points = series[n-trendSamples:]
	}

	// x in hours relative to the first sample of the window.
	base := points[0].Timestamp
	var sumX, sumY, sumXY, sumXX float64
	for _, pt := range points {
		x := pt.Timestamp.Sub(base).Hours()
		sumX += x
		sumY += pt.Value
		sumXY += x * pt.Value
		sumXX += x * x
	}
	count := float64(len(points))
	denom := count*sumXX - sumX*sumX
	if denom == 0 {
		return last
	}
	slope := (count*sumXY - sumX*sumY) / denom

	return last + slope*hours
}

// confidenceForSamples maps sample count to a heuristic confidence.
func confidenceForSamples(n int) float64 {
	switch {
	case n >= 10:
		return 0.9
	case n >= 5:
		return 0.7
	case n >= 3:
		return 0.5
	default:
		return 0.3
	}
}

func minSamples(counts ...int) int {
	min := counts[0]
	for _, c := range counts[1:] {
		if c < min {
			min = c
		}
	}
	return min
}
