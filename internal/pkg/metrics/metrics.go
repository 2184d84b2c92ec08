package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeReserved         = "reserved"
	OutcomeAlreadyReserved  = "already_reserved"
	OutcomeNothingToReserve = "nothing_to_reserve"
	OutcomeFailed           = "failed"

	OutcomeIngested  = "ingested"
	OutcomeDuplicate = "duplicate"
	OutcomeProcessed = "processed"
	OutcomeRetry     = "retry"
	OutcomeTerminal  = "terminal_failure"
	OutcomeReplayed  = "replayed"
)

// Prometheus metrics for stock reservation and payment webhook handling
var (
	ReservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "easybudget_reservations_total",
			Help: "Total number of stock reservation calls by outcome",
		},
		[]string{"outcome"},
	)

	WebhookRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "easybudget_webhook_requests_total",
			Help: "Total number of payment webhook events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	WebhookProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "easybudget_webhook_processing_seconds",
			Help:    "Duration of a single webhook processing attempt",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	JobQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "easybudget_jobqueue_depth",
			Help: "Number of jobs in the background queue by state",
		},
		[]string{"state"},
	)
)

var registerOnce sync.Once

// Register registers all Prometheus metrics with the default registry.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ReservationsTotal)
		prometheus.MustRegister(WebhookRequestsTotal)
		prometheus.MustRegister(WebhookProcessingDuration)
		prometheus.MustRegister(JobQueueDepth)
	})
}

func ObserveReservation(outcome string) {
	ReservationsTotal.WithLabelValues(outcome).Inc()
}

func ObserveWebhook(webhookType, outcome string) {
	WebhookRequestsTotal.WithLabelValues(webhookType, outcome).Inc()
}

func ObserveWebhookDuration(webhookType string, started time.Time) {
	WebhookProcessingDuration.WithLabelValues(webhookType).Observe(time.Since(started).Seconds())
}

func SetJobQueueDepth(state string, n int64) {
	JobQueueDepth.WithLabelValues(state).Set(float64(n))
}
