package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulecache/rulecache/pkg/types"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	collector, err := NewCollector(&Config{
		Enabled:   true,
		Namespace: "rulecache",
	})
	require.NoError(t, err)
	return collector
}

func TestNewCollectorDefaults(t *testing.T) {
	collector, err := NewCollector(nil)
	require.NoError(t, err)
	assert.True(t, collector.config.Enabled)
	assert.Equal(t, 9120, collector.config.Port)
	assert.Equal(t, "/metrics", collector.config.Path)
	assert.NotNil(t, collector.Registry())
}

func TestDisabledCollectorIsInert(t *testing.T) {
	collector, err := NewCollector(&Config{Enabled: false})
	require.NoError(t, err)

	// Must not panic despite nil metric vectors.
	collector.RecordEvent(types.CacheEvent{Type: types.EventHit, Layer: types.LayerMemory})
	collector.UpdateTierSize(types.LayerMemory, 1024)
}

func TestRecordEventHitsAndMisses(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordEvent(types.CacheEvent{
		Type:      types.EventHit,
		Timestamp: time.Now(),
		Layer:     types.LayerMemory,
		Value:     1.5,
	})
	collector.RecordEvent(types.CacheEvent{
		Type:      types.EventHit,
		Timestamp: time.Now(),
		Layer:     types.LayerPersistent,
		Value:     20,
	})
	collector.RecordEvent(types.CacheEvent{
		Type:      types.EventMiss,
		Timestamp: time.Now(),
		Layer:     types.LayerMemory,
		Value:     0.5,
	})

	memHits := collector.hitCounter.With(prometheus.Labels{"tier": "memory"})
	assert.Equal(t, 1.0, testutil.ToFloat64(memHits))
	persHits := collector.hitCounter.With(prometheus.Labels{"tier": "persistent"})
	assert.Equal(t, 1.0, testutil.ToFloat64(persHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.missCounter))

	counts := collector.EventCounts()
	assert.Equal(t, int64(2), counts[types.EventHit])
	assert.Equal(t, int64(1), counts[types.EventMiss])
}

func TestRecordEventEvictionsAndPromotions(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordEvent(types.CacheEvent{
		Type:  types.EventEviction,
		Layer: types.LayerMemory,
		Value: 5,
	})
	collector.RecordEvent(types.CacheEvent{Type: types.EventPromotion, Layer: types.LayerMemory})

	evictions := collector.evictionCounter.With(prometheus.Labels{"tier": "memory"})
	assert.Equal(t, 5.0, testutil.ToFloat64(evictions), "eviction events carry counts")
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.promotionCounter))
}

func TestRecordEventSLAViolations(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordEvent(types.CacheEvent{
		Type:  types.EventSLAViolation,
		Layer: types.LayerMemory,
		Value: 250,
		Metadata: map[string]interface{}{
			"violation_type": "response_time",
			"severity":       "high",
		},
	})
	collector.RecordEvent(types.CacheEvent{
		Type:  types.EventSLAViolation,
		Layer: types.LayerMemory,
		Value: 0.4,
	})

	byType := collector.violationCounter.With(prometheus.Labels{"type": "response_time"})
	assert.Equal(t, 1.0, testutil.ToFloat64(byType))
	unknown := collector.violationCounter.With(prometheus.Labels{"type": "unknown"})
	assert.Equal(t, 1.0, testutil.ToFloat64(unknown))
}

func TestRecordEventMemoryPressure(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordEvent(types.CacheEvent{
		Type:  types.EventMemoryPressure,
		Layer: types.LayerMemory,
		Value: 4096,
		Metadata: map[string]interface{}{
			"pressure": "high",
		},
	})

	size := collector.sizeGauge.With(prometheus.Labels{"tier": "memory"})
	assert.Equal(t, 4096.0, testutil.ToFloat64(size))
	assert.Equal(t, float64(types.PressureHigh), testutil.ToFloat64(collector.pressureGauge))
}

func TestUpdateTierSize(t *testing.T) {
	collector := newTestCollector(t)

	collector.UpdateTierSize(types.LayerPersistent, 1<<20)
	size := collector.sizeGauge.With(prometheus.Labels{"tier": "persistent"})
	assert.Equal(t, float64(1<<20), testutil.ToFloat64(size))
}

func TestResetCounts(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordEvent(types.CacheEvent{Type: types.EventHit, Layer: types.LayerMemory})
	require.NotEmpty(t, collector.EventCounts())

	collector.ResetCounts()
	assert.Empty(t, collector.EventCounts())
}

func TestPressureOrdinal(t *testing.T) {
	assert.Equal(t, 0.0, pressureOrdinal("none"))
	assert.Equal(t, 4.0, pressureOrdinal("critical"))
	assert.Equal(t, -1.0, pressureOrdinal("bogus"))
}
