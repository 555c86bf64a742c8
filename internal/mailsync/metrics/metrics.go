// Package metrics exposes prometheus instrumentation for the mailbox
// synchronization core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SynchronizeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailsync_synchronize_total",
		Help: "Total calls to Synchronize by outcome",
	}, []string{"outcome"})

	SynchronizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mailsync_synchronize_duration_seconds",
		Help:    "Time taken to synchronize a selected mailbox",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	MaterializeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mailsync_materialize_duration_seconds",
		Help:    "Time taken to materialize a mailbox snapshot from the store",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	MaterializeRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailsync_materialize_retries_total",
		Help: "Total retries due to transient read-version conflicts",
	})

	ExpungeTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailsync_expunge_total",
		Help: "Total messages reported expunged across all mailboxes",
	})

	ExistsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailsync_exists_emitted_total",
		Help: "Total EXISTS responses emitted",
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailsync_cache_hits_total",
		Help: "Snapshot cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailsync_cache_misses_total",
		Help: "Snapshot cache misses",
	})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailsync_cache_evictions_total",
		Help: "Snapshot cache evictions due to capacity",
	})
)

// RecordSynchronize records a Synchronize call's outcome and duration.
func RecordSynchronize(outcome string, durationSeconds float64) {
	SynchronizeTotal.WithLabelValues(outcome).Inc()
	SynchronizeDuration.Observe(durationSeconds)
}

// RecordMaterialize records the duration of one FetchMessages call,
// across all of its attempts, regardless of whether it succeeded.
func RecordMaterialize(durationSeconds float64) {
	MaterializeDuration.Observe(durationSeconds)
}

// RecordMaterializeRetry records one retry of a materialization attempt
// after a transient read-version conflict.
func RecordMaterializeRetry() {
	MaterializeRetries.Inc()
}

// RecordExpunge records count EXPUNGE entries rendered by a single
// WriteMailboxChanges call.
func RecordExpunge(count int) {
	ExpungeTotal.Add(float64(count))
}

// RecordExists records one EXISTS response emitted by WriteMailboxChanges.
func RecordExists() {
	ExistsEmitted.Inc()
}
