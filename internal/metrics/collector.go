package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rulecache/rulecache/pkg/types"
)

// Collector exposes cache activity as Prometheus metrics. It consumes
// the same event stream as the statistics engine and can optionally
// serve a scrape endpoint over HTTP.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry

	// Prometheus metrics
	hitCounter       *prometheus.CounterVec
	missCounter      prometheus.Counter
	evictionCounter  *prometheus.CounterVec
	promotionCounter prometheus.Counter
	violationCounter *prometheus.CounterVec
	lookupDuration   *prometheus.HistogramVec
	sizeGauge        *prometheus.GaugeVec
	pressureGauge    prometheus.Gauge

	// Internal tracking
	eventCounts map[types.EventType]int64
	lastReset   time.Time

	// HTTP server for the scrape endpoint
	server *http.Server
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Port      int               `yaml:"port"`
	Path      string            `yaml:"path"`
	Labels    map[string]string `yaml:"labels"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
}

// NewCollector creates a new metrics collector
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Port:      9120,
			Path:      "/metrics",
			Namespace: "rulecache",
			Subsystem: "",
			Labels:    make(map[string]string),
		}
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	collector := &Collector{
		config:      config,
		registry:    prometheus.NewRegistry(),
		eventCounts: make(map[types.EventType]int64),
		lastReset:   time.Now(),
	}

	collector.initMetrics()

	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return collector, nil
}

// Start starts the metrics scrape server
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", c.healthHandler)

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Metrics server error: %v\n", err)
		}
	}()

	return nil
}

// Stop stops the metrics scrape server
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// RecordEvent maps a cache event onto the Prometheus metrics. It
// satisfies the event sink interface used by the tiered cache.
func (c *Collector) RecordEvent(event types.CacheEvent) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	c.eventCounts[event.Type]++
	c.mu.Unlock()

	switch event.Type {
	case types.EventHit:
		c.hitCounter.With(prometheus.Labels{"tier": string(event.Layer)}).Inc()
		c.lookupDuration.With(prometheus.Labels{"result": "hit"}).Observe(event.Value / 1000)
	case types.EventMiss:
		c.missCounter.Inc()
		c.lookupDuration.With(prometheus.Labels{"result": "miss"}).Observe(event.Value / 1000)
	case types.EventEviction:
		c.evictionCounter.With(prometheus.Labels{"tier": string(event.Layer)}).Add(event.Value)
	case types.EventPromotion:
		c.promotionCounter.Inc()
	case types.EventSLAViolation:
		violation := "unknown"
		if v, ok := event.Metadata["violation_type"].(string); ok {
			violation = v
		}
		c.violationCounter.With(prometheus.Labels{"type": violation}).Inc()
	case types.EventMemoryPressure:
		c.sizeGauge.With(prometheus.Labels{"tier": string(types.LayerMemory)}).Set(event.Value)
		if level, ok := event.Metadata["pressure"].(string); ok {
			c.pressureGauge.Set(pressureOrdinal(level))
		}
	}
}

// UpdateTierSize updates the size gauge for a cache tier
func (c *Collector) UpdateTierSize(layer types.CacheLayer, bytes int64) {
	if !c.config.Enabled {
		return
	}

	c.sizeGauge.With(prometheus.Labels{"tier": string(layer)}).Set(float64(bytes))
}

// EventCounts returns the number of events seen per type since the
// collector was created or last reset.
func (c *Collector) EventCounts() map[types.EventType]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counts := make(map[types.EventType]int64, len(c.eventCounts))
	for k, v := range c.eventCounts {
		counts[k] = v
	}
	return counts
}

// ResetCounts resets the internal event counters
func (c *Collector) ResetCounts() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.eventCounts = make(map[types.EventType]int64)
	c.lastReset = time.Now()
}

// Registry exposes the private registry for embedding in an existing
// HTTP server instead of running Start.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Helper methods

func (c *Collector) initMetrics() {
	c.hitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"tier"},
	)

	c.missCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		},
	)

	c.evictionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "evictions_total",
			Help:      "Total number of evicted entries",
		},
		[]string{"tier"},
	)

	c.promotionCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "promotions_total",
			Help:      "Total number of entries promoted from the persistent tier",
		},
	)

	c.violationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "sla_violations_total",
			Help:      "Total number of SLA violations",
		},
		[]string{"type"},
	)

	c.lookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "lookup_duration_seconds",
			Help:      "Duration of cache lookups in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15), // 100us to ~1.6s
		},
		[]string{"result"},
	)

	c.sizeGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "size_bytes",
			Help:      "Current cache tier size in bytes",
		},
		[]string{"tier"},
	)

	c.pressureGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "memory_pressure",
			Help:      "Memory tier usage as a fraction of its limit",
		},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.hitCounter,
		c.missCounter,
		c.evictionCounter,
		c.promotionCounter,
		c.violationCounter,
		c.lookupDuration,
		c.sizeGauge,
		c.pressureGauge,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

// pressureOrdinal maps a pressure level name to its ordinal so the
// gauge stays comparable across scrapes.
func pressureOrdinal(level string) float64 {
	for i := types.PressureNone; i <= types.PressureCritical; i++ {
		if i.String() == level {
			return float64(i)
		}
	}
	return -1
}

// HTTP handlers

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"rulecache-metrics"}`))
}
