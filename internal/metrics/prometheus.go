package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector is a Recorder backed by Prometheus.
type Collector struct {
	signUps              *prometheus.CounterVec
	signIns              *prometheus.CounterVec
	webhookEvents        *prometheus.CounterVec
	subscriptionsCreated prometheus.Counter
	reconciliations      *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with the
// given registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearthside_signups_total",
			Help: "Sign-up attempts by outcome.",
		}, []string{"outcome"}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearthside_signins_total",
			Help: "Sign-in attempts by outcome.",
		}, []string{"outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearthside_billing_webhook_events_total",
			Help: "Inbound billing webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		subscriptionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearthside_subscriptions_created_total",
			Help: "Subscriptions created through the checkout flow.",
		}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hearthside_billing_reconciliations_total",
			Help: "Read-path subscription reconciliations by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.signUps,
		c.signIns,
		c.webhookEvents,
		c.subscriptionsCreated,
		c.reconciliations,
	)

	return c
}

func (c *Collector) IncSignUp(outcome string) {
	c.signUps.WithLabelValues(outcome).Inc()
}

func (c *Collector) IncSignIn(outcome string) {
	c.signIns.WithLabelValues(outcome).Inc()
}

func (c *Collector) IncWebhookEvent(eventType, outcome string) {
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (c *Collector) IncSubscriptionCreated() {
	c.subscriptionsCreated.Inc()
}

func (c *Collector) IncReconciliation(outcome string) {
	c.reconciliations.WithLabelValues(outcome).Inc()
}
