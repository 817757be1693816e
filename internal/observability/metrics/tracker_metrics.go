package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TrackerMetrics captures ingestion health signals.
type TrackerMetrics struct {
	ingestOutcomes   *prometheus.CounterVec
	conflictRetries  prometheus.Counter
	batchDuration    prometheus.Histogram
	batchRecords     prometheus.Histogram
	fingerprintLocks prometheus.Histogram
}

var (
	trackerMetricsOnce sync.Once
	trackerMetrics     *TrackerMetrics
)

// Tracker returns the singleton tracker metrics registry.
func Tracker() *TrackerMetrics {
	trackerMetricsOnce.Do(func() {
		m := &TrackerMetrics{
			ingestOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "jobsift_ingest_outcomes_total",
				Help: "Ingest results by outcome (created, merged, rejected).",
			}, []string{"outcome", "reason"}),
			conflictRetries: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "jobsift_ingest_conflict_retries_total",
				Help: "Create races retried after a fingerprint unique violation.",
			}),
			batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "jobsift_batch_duration_seconds",
				Help:    "Wall time to process one scrape batch.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			}),
			batchRecords: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "jobsift_batch_records",
				Help:    "Records per scrape batch.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			}),
			fingerprintLocks: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "jobsift_fingerprint_lock_wait_seconds",
				Help:    "Time spent acquiring the per-fingerprint row lock.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			}),
		}
		prometheus.MustRegister(
			m.ingestOutcomes,
			m.conflictRetries,
			m.batchDuration,
			m.batchRecords,
			m.fingerprintLocks,
		)
		trackerMetrics = m
	})
	return trackerMetrics
}

func (m *TrackerMetrics) IncIngestOutcome(outcome, reason string) {
	if m == nil {
		return
	}
	m.ingestOutcomes.WithLabelValues(outcome, reason).Inc()
}

func (m *TrackerMetrics) IncConflictRetry() {
	if m == nil {
		return
	}
	m.conflictRetries.Inc()
}

func (m *TrackerMetrics) ObserveBatch(records int, d time.Duration) {
	if m == nil {
		return
	}
	m.batchRecords.Observe(float64(records))
	m.batchDuration.Observe(d.Seconds())
}

func (m *TrackerMetrics) ObserveFingerprintLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.fingerprintLocks.Observe(d.Seconds())
}
