package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/examslot-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	cacheLatency       prometheus.Observer
	cacheWrite         prometheus.Observer
	cacheHitRatio      prometheus.Gauge
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	generationDuration *prometheus.HistogramVec
	generatedSlots     *prometheus.CounterVec
	mutations          *prometheus.CounterVec

	cacheHitCount           uint64
	cacheMissCount          uint64
	requestCount            uint64
	requestDurationTotal    uint64
	generationCount         uint64
	generationDurationTotal uint64
	scheduledCount          uint64
	unscheduledCount        uint64
	mutationCount           uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	generationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "examslot_generation_duration_seconds",
		Help:    "Duration of exam schedule generation runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	generatedSlots := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "examslot_generated_slots_total",
		Help: "Exam slots produced by generation runs",
	}, []string{"status"})

	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "examslot_mutations_total",
		Help: "Manual exam slot mutations",
	}, []string{"operation", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		generationDuration, generatedSlots, mutations, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		generationDuration: generationDuration,
		generatedSlots:     generatedSlots,
		mutations:          mutations,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveGeneration records one generation run. A nil result counts as a failed run.
func (m *MetricsService) ObserveGeneration(result *models.ScheduleResult, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "failed"
	if result != nil {
		outcome = "succeeded"
		if result.HasUnscheduled() {
			outcome = "partial"
		}
		m.generatedSlots.WithLabelValues("scheduled").Add(float64(result.ScheduledCount))
		m.generatedSlots.WithLabelValues("unscheduled").Add(float64(result.UnscheduledCount))
		m.generatedSlots.WithLabelValues("locked").Add(float64(result.LockedCount))
		atomic.AddUint64(&m.scheduledCount, uint64(result.ScheduledCount))
		atomic.AddUint64(&m.unscheduledCount, uint64(result.UnscheduledCount))
	}
	m.generationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	atomic.AddUint64(&m.generationCount, 1)
	atomic.AddUint64(&m.generationDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordMutation counts a manual slot operation.
func (m *MetricsService) RecordMutation(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.mutations.WithLabelValues(operation, result).Inc()
	atomic.AddUint64(&m.mutationCount, 1)
}

// Snapshot returns aggregated metrics suitable for the summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	runs := atomic.LoadUint64(&m.generationCount)
	runDuration := atomic.LoadUint64(&m.generationDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgGenerationMs float64
	if runs > 0 {
		avgGenerationMs = float64(runDuration) / float64(runs) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		GenerationRuns:           runs,
		AverageGenerationMs:      avgGenerationMs,
		SlotsScheduled:           atomic.LoadUint64(&m.scheduledCount),
		SlotsUnscheduled:         atomic.LoadUint64(&m.unscheduledCount),
		SlotMutations:            atomic.LoadUint64(&m.mutationCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
