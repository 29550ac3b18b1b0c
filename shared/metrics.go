package shared

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// ServiceMetrics tracks request, cache and upstream counters for the dorm mail service.
// Every update is mirrored into a private prometheus registry.
type ServiceMetrics struct {
	ServiceName           string              `json:"service_name"`
	TotalRequests         int64               `json:"total_requests"`
	CacheHits             int64               `json:"cache_hits"`
	CacheMisses           int64               `json:"cache_misses"`
	UpstreamFetches       int64               `json:"upstream_fetches"`
	UpstreamFailures      int64               `json:"upstream_failures"`
	CacheWriteFailures    int64               `json:"cache_write_failures"`
	LastRecordCount       int                 `json:"last_record_count"`
	TotalProcessingTime   time.Duration       `json:"total_processing_time"`
	AverageProcessingTime time.Duration       `json:"average_processing_time"`
	LastUpdated           time.Time           `json:"last_updated"`
	PerformanceMetrics    *PerformanceMetrics `json:"performance_metrics"`
	mutex                 sync.RWMutex

	registry         *prometheus.Registry
	cacheLookups     *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	recordGauge      prometheus.Gauge
	cacheWriteErrors prometheus.Counter
}

// NewServiceMetrics creates a new metrics tracker for a service
func NewServiceMetrics(serviceName string) *ServiceMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &ServiceMetrics{
		ServiceName:        serviceName,
		LastUpdated:        time.Now(),
		PerformanceMetrics: NewPerformanceMetrics(),
		registry:           registry,
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dormmail_cache_lookups_total",
				Help: "Response cache lookups by result",
			},
			[]string{"result"}, // hit, miss
		),
		upstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dormmail_upstream_fetch_duration_seconds",
				Help:    "Duration of fetch, decode and extraction against the legacy page",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"status"}, // success, failed
		),
		recordGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dormmail_records_extracted",
			Help: "Number of mail records extracted on the last successful fetch",
		}),
		cacheWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "dormmail_cache_write_errors_total",
			Help: "Background cache writes that failed",
		}),
	}
}

// Registry exposes the prometheus registry backing these metrics
func (m *ServiceMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest records a served request and whether it came from cache
func (m *ServiceMetrics) RecordRequest(cacheHit bool, processingTime time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalRequests++
	m.TotalProcessingTime += processingTime
	m.AverageProcessingTime = time.Duration(int64(m.TotalProcessingTime) / m.TotalRequests)

	if cacheHit {
		m.CacheHits++
		m.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		m.CacheMisses++
		m.cacheLookups.WithLabelValues("miss").Inc()
	}

	m.LastUpdated = time.Now()

	if m.PerformanceMetrics != nil {
		m.PerformanceMetrics.RecordProcessingTime(processingTime)
	}
}

// RecordUpstreamFetch records one trip to the legacy page
func (m *ServiceMetrics) RecordUpstreamFetch(success bool, recordCount int, duration time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.UpstreamFetches++
	status := "success"
	if success {
		m.LastRecordCount = recordCount
		m.recordGauge.Set(float64(recordCount))
	} else {
		m.UpstreamFailures++
		status = "failed"
	}
	m.upstreamDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.LastUpdated = time.Now()
}

// RecordCacheWriteFailure records a background cache write that did not land
func (m *ServiceMetrics) RecordCacheWriteFailure() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.CacheWriteFailures++
	m.cacheWriteErrors.Inc()
	m.LastUpdated = time.Now()
}

// GetHitRate returns the cache hit rate as a percentage
func (m *ServiceMetrics) GetHitRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.TotalRequests == 0 {
		return 0.0
	}

	return float64(m.CacheHits) / float64(m.TotalRequests) * 100.0
}

// GetSnapshot returns a thread-safe copy of the current counters
func (m *ServiceMetrics) GetSnapshot() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snapshot := map[string]interface{}{
		"service_name":            m.ServiceName,
		"total_requests":          m.TotalRequests,
		"cache_hits":              m.CacheHits,
		"cache_misses":            m.CacheMisses,
		"upstream_fetches":        m.UpstreamFetches,
		"upstream_failures":       m.UpstreamFailures,
		"cache_write_failures":    m.CacheWriteFailures,
		"last_record_count":       m.LastRecordCount,
		"average_processing_time": m.AverageProcessingTime.String(),
		"last_updated":            m.LastUpdated,
	}

	if m.PerformanceMetrics != nil {
		perf := m.PerformanceMetrics.GetPerformanceSnapshot()
		snapshot["min_processing_time"] = perf.MinProcessingTime.String()
		snapshot["max_processing_time"] = perf.MaxProcessingTime.String()
		snapshot["p95_processing_time"] = perf.P95ProcessingTime.String()
		snapshot["p99_processing_time"] = perf.P99ProcessingTime.String()
	}

	return snapshot
}

// LogSummary logs a metrics summary
func (m *ServiceMetrics) LogSummary() {
	logrus.WithFields(logrus.Fields(m.GetSnapshot())).Info("Service metrics summary")
}

// PerformanceMetrics tracks detailed performance measurements
type PerformanceMetrics struct {
	MinProcessingTime time.Duration `json:"min_processing_time"`
	MaxProcessingTime time.Duration `json:"max_processing_time"`
	P95ProcessingTime time.Duration `json:"p95_processing_time"`
	P99ProcessingTime time.Duration `json:"p99_processing_time"`
	mutex             sync.RWMutex
	processingTimes   []time.Duration
}

// NewPerformanceMetrics creates a new performance metrics tracker
func NewPerformanceMetrics() *PerformanceMetrics {
	return &PerformanceMetrics{
		processingTimes: make([]time.Duration, 0, 1000), // Pre-allocate for 1000 samples
	}
}

// RecordProcessingTime records a processing time and updates performance metrics
func (pm *PerformanceMetrics) RecordProcessingTime(duration time.Duration) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	if pm.MinProcessingTime == 0 || duration < pm.MinProcessingTime {
		pm.MinProcessingTime = duration
	}
	if duration > pm.MaxProcessingTime {
		pm.MaxProcessingTime = duration
	}

	// keep last 1000 samples
	if len(pm.processingTimes) >= 1000 {
		pm.processingTimes = pm.processingTimes[1:]
	}
	pm.processingTimes = append(pm.processingTimes, duration)

	pm.calculatePercentiles()
}

// calculatePercentiles calculates P95 and P99 processing times
func (pm *PerformanceMetrics) calculatePercentiles() {
	if len(pm.processingTimes) == 0 {
		return
	}

	times := make([]time.Duration, len(pm.processingTimes))
	copy(times, pm.processingTimes)
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	p95Index := int(float64(len(times)) * 0.95)
	p99Index := int(float64(len(times)) * 0.99)

	if p95Index < len(times) {
		pm.P95ProcessingTime = times[p95Index]
	}
	if p99Index < len(times) {
		pm.P99ProcessingTime = times[p99Index]
	}
}

// GetPerformanceSnapshot returns a thread-safe snapshot of performance metrics
func (pm *PerformanceMetrics) GetPerformanceSnapshot() PerformanceMetrics {
	pm.mutex.RLock()
	defer pm.mutex.RUnlock()

	return PerformanceMetrics{
		MinProcessingTime: pm.MinProcessingTime,
		MaxProcessingTime: pm.MaxProcessingTime,
		P95ProcessingTime: pm.P95ProcessingTime,
		P99ProcessingTime: pm.P99ProcessingTime,
	}
}
