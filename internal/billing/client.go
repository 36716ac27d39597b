// Package billing abstracts the external billing provider. The rest of
// the application talks to the Client interface; the Stripe implementation
// lives in stripe.go and tests use a fake.
package billing

import (
	"context"
	"errors"
	"time"
)

// Subscription lifecycle event kinds. Only these mutate local state.
const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// ErrInvalidSignature indicates a webhook payload whose signature did not
// verify against the shared secret.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Subscription is the provider's view of a subscription, reduced to the
// fields this application caches.
type Subscription struct {
	ID         string
	CustomerID string
	Status     string
	PriceID    string

	// ClientSecret is only populated by CreateSubscription. It is handed
	// to the browser to confirm the initial payment.
	ClientSecret string
}

// Invoice is a summary of a provider invoice for the billing page.
type Invoice struct {
	ID               string    `json:"id"`
	Number           string    `json:"number,omitempty"`
	Status           string    `json:"status,omitempty"`
	AmountPaid       int64     `json:"amount_paid"`
	AmountDue        int64     `json:"amount_due"`
	Currency         string    `json:"currency,omitempty"`
	HostedInvoiceURL string    `json:"hosted_invoice_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Event is a verified inbound webhook event. Subscription is non-nil only
// for the subscription lifecycle kinds above, and carries the state as
// reported in the event payload, never re-fetched.
type Event struct {
	Type         string
	Subscription *Subscription
}

// IsSubscriptionLifecycle reports whether the event kind may mutate the
// local subscription cache.
func (e *Event) IsSubscriptionLifecycle() bool {
	switch e.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		return true
	}
	return false
}

// Client is the outbound interface to the billing provider.
type Client interface {
	// CreateCustomer registers a customer record and returns its id.
	CreateCustomer(ctx context.Context, email, userID string) (string, error)

	// CreateSubscription creates a subscription in an incomplete payment
	// state and returns it with the payment confirmation ClientSecret.
	CreateSubscription(ctx context.Context, customerID, priceID string) (*Subscription, error)

	// GetSubscription fetches the live subscription state.
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// PortalSessionURL creates a hosted billing portal session.
	PortalSessionURL(ctx context.Context, customerID, returnURL string) (string, error)

	// ListInvoices returns the most recent invoices for a customer.
	ListInvoices(ctx context.Context, customerID string, limit int) ([]Invoice, error)

	// VerifyEvent authenticates a raw webhook body against its signature
	// header and parses it. Returns ErrInvalidSignature on failure.
	// Verification runs over the exact raw bytes; reserialization would
	// invalidate the signature.
	VerifyEvent(payload []byte, signatureHeader string) (*Event, error)
}
