package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeClient implements Client against the Stripe API. One instance is
// constructed from configuration at startup and shared; there is no
// process-wide key-to-client registry.
type StripeClient struct {
	api           *client.API
	webhookSecret string
}

// NewStripeClient builds a StripeClient for the given API key and webhook
// signing secret.
func NewStripeClient(secretKey, webhookSecret string) *StripeClient {
	api := &client.API{}
	api.Init(secretKey, nil)

	return &StripeClient{
		api:           api,
		webhookSecret: webhookSecret,
	}
}

// CreateCustomer registers a Stripe customer tagged with our user id.
func (c *StripeClient) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.AddMetadata("hearthside_user_id", userID)

	customer, err := c.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}

	return customer.ID, nil
}

// CreateSubscription creates an incomplete subscription with the initial
// invoice expanded so the payment confirmation secret can be extracted
// without a second round trip.
func (c *StripeClient) CreateSubscription(ctx context.Context, customerID, priceID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	params.Context = ctx
	params.AddExpand("latest_invoice.confirmation_secret")
	params.AddExpand("latest_invoice.payments.data.payment.payment_intent")

	sub, err := c.api.Subscriptions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	mapped := subscriptionFromStripe(sub)
	mapped.ClientSecret = extractClientSecret(sub)

	return mapped, nil
}

// GetSubscription fetches the live subscription state.
func (c *StripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	return subscriptionFromStripe(sub), nil
}

// PortalSessionURL creates a hosted billing portal session.
func (c *StripeClient) PortalSessionURL(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	session, err := c.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}

	return session.URL, nil
}

// ListInvoices returns the most recent invoices for a customer.
func (c *StripeClient) ListInvoices(ctx context.Context, customerID string, limit int) ([]Invoice, error) {
	params := &stripe.InvoiceListParams{
		Customer: stripe.String(customerID),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))

	var invoices []Invoice
	iter := c.api.Invoices.List(params)
	for iter.Next() {
		inv := iter.Invoice()
		invoices = append(invoices, Invoice{
			ID:               inv.ID,
			Number:           inv.Number,
			Status:           string(inv.Status),
			AmountPaid:       inv.AmountPaid,
			AmountDue:        inv.AmountDue,
			Currency:         string(inv.Currency),
			HostedInvoiceURL: inv.HostedInvoiceURL,
			CreatedAt:        time.Unix(inv.Created, 0).UTC(),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}

	return invoices, nil
}

// VerifyEvent authenticates the raw webhook body against the
// stripe-signature header and parses the event. Version skew between the
// account's webhook API version and the pinned SDK version is tolerated;
// the fields read below are stable across them.
func (c *StripeClient) VerifyEvent(payload []byte, signatureHeader string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	parsed := &Event{Type: string(event.Type)}
	if !parsed.IsSubscriptionLifecycle() {
		return parsed, nil
	}

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("parse subscription event: %w", err)
	}
	parsed.Subscription = subscriptionFromStripe(&sub)

	return parsed, nil
}

// subscriptionFromStripe reduces a Stripe subscription to the cached
// fields. Nested objects may be absent depending on expansion.
func subscriptionFromStripe(sub *stripe.Subscription) *Subscription {
	mapped := &Subscription{
		ID:     sub.ID,
		Status: string(sub.Status),
	}

	if sub.Customer != nil {
		mapped.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		if price := sub.Items.Data[0].Price; price != nil {
			mapped.PriceID = price.ID
		}
	}

	return mapped
}

// secretExtractor pulls a payment confirmation secret out of a freshly
// created subscription. Extractors are tried in order; first non-empty
// result wins.
type secretExtractor func(*stripe.Subscription) string

// The response shape holding the secret depends on the account's API
// version; the expanded invoice's confirmation secret is canonical for
// the version this SDK pins, with the invoice payment's payment intent as
// the fallback shape.
var secretExtractors = []secretExtractor{
	invoiceConfirmationSecret,
	invoicePaymentIntentSecret,
}

func extractClientSecret(sub *stripe.Subscription) string {
	for _, extract := range secretExtractors {
		if secret := extract(sub); secret != "" {
			return secret
		}
	}
	return ""
}

func invoiceConfirmationSecret(sub *stripe.Subscription) string {
	if sub.LatestInvoice == nil || sub.LatestInvoice.ConfirmationSecret == nil {
		return ""
	}
	return sub.LatestInvoice.ConfirmationSecret.ClientSecret
}

func invoicePaymentIntentSecret(sub *stripe.Subscription) string {
	inv := sub.LatestInvoice
	if inv == nil || inv.Payments == nil || len(inv.Payments.Data) == 0 {
		return ""
	}
	payment := inv.Payments.Data[0].Payment
	if payment == nil || payment.PaymentIntent == nil {
		return ""
	}
	return payment.PaymentIntent.ClientSecret
}
