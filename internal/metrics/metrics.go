// Package metrics provides lightweight hooks for instrumentation.
package metrics

// Outcome labels shared by recorders.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"

	// Webhook outcomes
	OutcomeApplied   = "applied"
	OutcomeUnmatched = "unmatched"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"

	// Reconciliation outcomes
	OutcomeClean = "clean"
	OutcomeDrift = "drift"
	OutcomeError = "error"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Account metrics
	IncSignUp(outcome string)
	IncSignIn(outcome string)

	// Billing metrics
	IncWebhookEvent(eventType, outcome string)
	IncSubscriptionCreated()
	IncReconciliation(outcome string)
}
