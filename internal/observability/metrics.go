// Package observability registers the Prometheus metrics of the sync engine.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	intentsDrained = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coach_sync",
		Subsystem: "runner",
		Name:      "intents_drained_total",
		Help:      "Number of sync intents claimed for processing.",
	})

	intentsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coach_sync",
		Subsystem: "runner",
		Name:      "intents_completed_total",
		Help:      "Number of sync intents resolved successfully.",
	})

	intentsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coach_sync",
		Subsystem: "runner",
		Name:      "intents_failed_total",
		Help:      "Number of sync intent processing failures (retried or terminal).",
	})

	activitiesUpserted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coach_sync",
		Subsystem: "ingest",
		Name:      "activities_upserted_total",
		Help:      "Number of activity records created or materially updated.",
	})

	calendarMatched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coach_sync",
		Subsystem: "match",
		Name:      "entries_matched_total",
		Help:      "Number of activities linked to an existing planned entry.",
	})

	calendarCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coach_sync",
		Subsystem: "match",
		Name:      "entries_materialized_total",
		Help:      "Number of calendar entries synthesized from unmatched activities.",
	})

	rateLimitHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coach_sync",
		Subsystem: "provider",
		Name:      "rate_limit_hits_total",
		Help:      "Number of runs aborted early by a provider rate-limit response.",
	})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "coach_sync",
		Subsystem: "runner",
		Name:      "run_duration_seconds",
		Help:      "Wall time of one queue-runner pass.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	lastRunGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coach_sync",
		Subsystem: "runner",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed runner pass.",
	})

	signalsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coach_sync",
		Subsystem: "signal",
		Name:      "intents_enqueued_total",
		Help:      "Number of sync intents enqueued from upstream signals.",
	})

	signalDecodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coach_sync",
		Subsystem: "signal",
		Name:      "decode_errors_total",
		Help:      "Number of malformed upstream signal messages, labeled by topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(
		intentsDrained,
		intentsCompleted,
		intentsFailed,
		activitiesUpserted,
		calendarMatched,
		calendarCreated,
		rateLimitHits,
		runDuration,
		lastRunGauge,
		signalsEnqueued,
		signalDecodeErrors,
	)
}

// RecordRun publishes the counters for one finished runner pass.
func RecordRun(drained, completed, failed, upserted, matched, created int, elapsed time.Duration) {
	intentsDrained.Add(float64(drained))
	intentsCompleted.Add(float64(completed))
	intentsFailed.Add(float64(failed))
	activitiesUpserted.Add(float64(upserted))
	calendarMatched.Add(float64(matched))
	calendarCreated.Add(float64(created))
	runDuration.Observe(elapsed.Seconds())
	lastRunGauge.SetToCurrentTime()
}

// RecordRateLimit counts a provider throttle that aborted a batch.
func RecordRateLimit() {
	rateLimitHits.Inc()
}

// RecordSignalEnqueued counts an intent created from an upstream signal.
func RecordSignalEnqueued() {
	signalsEnqueued.Inc()
}

// RecordSignalDecodeError counts a malformed upstream message.
func RecordSignalDecodeError(topic string) {
	signalDecodeErrors.WithLabelValues(topic).Inc()
}
