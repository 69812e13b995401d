// Package metrics provides Prometheus metrics for feedq.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSent    = "sent"
	ResultFailed  = "failed"
	ResultMissing = "missing"
)

var (
	// PublishTotal counts fire outcomes.
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedq",
			Name:      "publish_total",
			Help:      "Total number of publish attempts by result",
		},
		[]string{"result"},
	)

	// PublishDuration measures delivery time including retries.
	PublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "feedq",
			Name:      "publish_duration_seconds",
			Help:      "Duration of publish operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// IngestedTotal counts feed items by ingestion outcome.
	IngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedq",
			Name:      "ingested_total",
			Help:      "Total number of feed items seen by ingestion outcome",
		},
		[]string{"outcome"},
	)

	// PollErrorsTotal counts failed feed polls.
	PollErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "feedq",
			Name:      "poll_errors_total",
			Help:      "Total number of failed feed polls",
		},
	)

	// QueueLength tracks records in the queue, including ones whose
	// delivery failed and that wait for a reschedule or restart.
	QueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "feedq",
			Name:      "queue_length",
			Help:      "Number of records waiting to be published",
		},
	)
)

// RecordPublish records one fire outcome.
func RecordPublish(result string, duration float64) {
	PublishTotal.WithLabelValues(result).Inc()
	if result != ResultMissing {
		PublishDuration.Observe(duration)
	}
}

// RecordIngest records the totals of one ingestion run.
func RecordIngest(queued, skipped int) {
	IngestedTotal.WithLabelValues("queued").Add(float64(queued))
	IngestedTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordPollError records a failed poll.
func RecordPollError() {
	PollErrorsTotal.Inc()
}

// SetQueueLength publishes the current number of queued records.
func SetQueueLength(n int) {
	QueueLength.Set(float64(n))
}
