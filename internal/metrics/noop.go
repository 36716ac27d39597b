package metrics

// Noop is a Recorder that discards all events. Useful for tests and for
// running without a metrics backend.
type Noop struct{}

// NewNoop creates a no-op Recorder.
func NewNoop() *Noop {
	return &Noop{}
}

func (Noop) IncSignUp(string)            {}
func (Noop) IncSignIn(string)            {}
func (Noop) IncWebhookEvent(_, _ string) {}
func (Noop) IncSubscriptionCreated()     {}
func (Noop) IncReconciliation(string)    {}
