package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EntitlementMetrics tracks the outcomes of the entitlement engine.
type EntitlementMetrics struct {
	verifications   *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	transfers       prometheus.Counter
	providerLatency *prometheus.HistogramVec
}

// NewEntitlementMetrics registers the entitlement metrics on the provided registerer.
func NewEntitlementMetrics(reg prometheus.Registerer) *EntitlementMetrics {
	if reg == nil {
		return &EntitlementMetrics{}
	}
	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_verifications_total",
		Help: "Purchase verifications processed, by provider and outcome.",
	}, []string{"provider", "outcome"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_webhook_events_total",
		Help: "Provider notifications processed, by provider and kind.",
	}, []string{"provider", "kind"})
	transfers := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "entitlement_transfers_total",
		Help: "Entitlement lineages reassigned to a different account.",
	})
	providerLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "entitlement_provider_call_seconds",
		Help:    "Duration of outbound provider verification calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
	reg.MustRegister(verifications, webhookEvents, transfers, providerLatency)
	return &EntitlementMetrics{
		verifications:   verifications,
		webhookEvents:   webhookEvents,
		transfers:       transfers,
		providerLatency: providerLatency,
	}
}

// IncVerification counts one processed purchase verification.
func (m *EntitlementMetrics) IncVerification(provider, outcome string) {
	if m == nil || m.verifications == nil {
		return
	}
	m.verifications.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// IncWebhookEvent counts one processed provider notification.
func (m *EntitlementMetrics) IncWebhookEvent(provider, kind string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(provider), normalizeLabel(kind)).Inc()
}

// IncTransfer counts one completed entitlement transfer.
func (m *EntitlementMetrics) IncTransfer() {
	if m == nil || m.transfers == nil {
		return
	}
	m.transfers.Inc()
}

// ObserveProviderCall records the duration of an outbound provider call.
func (m *EntitlementMetrics) ObserveProviderCall(provider string, duration time.Duration) {
	if m == nil || m.providerLatency == nil {
		return
	}
	m.providerLatency.WithLabelValues(normalizeLabel(provider)).Observe(duration.Seconds())
}
