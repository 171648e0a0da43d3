package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus observability primitives for the platform.
type Metrics struct {
	apiRequests    *prometheus.CounterVec
	apiDuration    *prometheus.HistogramVec
	webhookEvents  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
	ledgerEntries  *prometheus.CounterVec
	refundIssued   *prometheus.CounterVec
	payoutReleases prometheus.Counter
	payoutSweeps   *prometheus.CounterVec
}

// NewMetrics registers and returns Prometheus metrics.
func NewMetrics() *Metrics {
	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "craftora_api_requests_total",
		Help: "Counts API requests by method, route, and status.",
	}, []string{"method", "route", "status"})

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "craftora_api_duration_seconds",
		Help:    "API request latency per method/route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "craftora_webhook_events_total",
		Help: "Webhook events by type and outcome.",
	}, []string{"type", "outcome"})

	webhookLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "craftora_webhook_handler_duration_seconds",
		Help:    "Webhook handler durations by event type.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	ledgerEntries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "craftora_ledger_entries_total",
		Help: "Platform ledger writes by type and outcome.",
	}, []string{"type", "outcome"})

	refundIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "craftora_refunds_issued_total",
		Help: "Provider refund issuance outcomes.",
	}, []string{"outcome"})

	payoutReleases := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "craftora_payout_releases_total",
		Help: "Orders released from escrow hold.",
	})

	payoutSweeps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "craftora_payout_sweeps_total",
		Help: "Payout sweep runs by status.",
	}, []string{"status"})

	prometheus.MustRegister(
		apiRequests,
		apiDuration,
		webhookEvents,
		webhookLatency,
		ledgerEntries,
		refundIssued,
		payoutReleases,
		payoutSweeps,
	)

	return &Metrics{
		apiRequests:    apiRequests,
		apiDuration:    apiDuration,
		webhookEvents:  webhookEvents,
		webhookLatency: webhookLatency,
		ledgerEntries:  ledgerEntries,
		refundIssued:   refundIssued,
		payoutReleases: payoutReleases,
		payoutSweeps:   payoutSweeps,
	}
}

// ObserveAPIRequest records an API request and latency.
func (m *Metrics) ObserveAPIRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	routeLabel := sanitizeLabel(route)
	m.apiRequests.WithLabelValues(method, routeLabel, status).Inc()
	m.apiDuration.WithLabelValues(method, routeLabel).Observe(duration.Seconds())
}

// ObserveWebhookEvent records one webhook event outcome
// (processed, duplicate, ignored, error, invalid_signature).
func (m *Metrics) ObserveWebhookEvent(eventType, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	typeLabel := sanitizeLabel(eventType)
	m.webhookEvents.WithLabelValues(typeLabel, outcome).Inc()
	m.webhookLatency.WithLabelValues(typeLabel).Observe(duration.Seconds())
}

// ObserveLedgerEntry records a ledger write attempt.
func (m *Metrics) ObserveLedgerEntry(entryType, outcome string) {
	if m == nil {
		return
	}
	m.ledgerEntries.WithLabelValues(sanitizeLabel(entryType), outcome).Inc()
}

// ObserveRefund records a provider refund issuance outcome.
func (m *Metrics) ObserveRefund(outcome string) {
	if m == nil {
		return
	}
	m.refundIssued.WithLabelValues(outcome).Inc()
}

// ObservePayoutRelease counts orders released from escrow.
func (m *Metrics) ObservePayoutRelease(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.payoutReleases.Add(float64(count))
}

// ObservePayoutSweep records one sweep run.
func (m *Metrics) ObservePayoutSweep(status string) {
	if m == nil {
		return
	}
	m.payoutSweeps.WithLabelValues(status).Inc()
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
