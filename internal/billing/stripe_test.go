package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82"
)

// mustSubscription builds a stripe.Subscription from raw API-shaped JSON so
// tests exercise the same decode path as live responses.
func mustSubscription(t *testing.T, raw string) *stripe.Subscription {
	t.Helper()
	var sub stripe.Subscription
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		t.Fatalf("unmarshal subscription: %v", err)
	}
	return &sub
}

func TestExtractClientSecretPrefersConfirmationSecret(t *testing.T) {
	sub := mustSubscription(t, `{
		"id": "sub_1",
		"latest_invoice": {
			"id": "in_1",
			"confirmation_secret": {"client_secret": "cs_primary"},
			"payments": {
				"data": [
					{"payment": {"payment_intent": {"id": "pi_1", "client_secret": "cs_fallback"}}}
				]
			}
		}
	}`)

	if got := extractClientSecret(sub); got != "cs_primary" {
		t.Errorf("extractClientSecret = %q, want cs_primary", got)
	}
}

func TestExtractClientSecretFallsBackToPaymentIntent(t *testing.T) {
	sub := mustSubscription(t, `{
		"id": "sub_1",
		"latest_invoice": {
			"id": "in_1",
			"payments": {
				"data": [
					{"payment": {"payment_intent": {"id": "pi_1", "client_secret": "cs_fallback"}}}
				]
			}
		}
	}`)

	if got := extractClientSecret(sub); got != "cs_fallback" {
		t.Errorf("extractClientSecret = %q, want cs_fallback", got)
	}
}

func TestExtractClientSecretAbsent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no_invoice", `{"id": "sub_1"}`},
		{"bare_invoice", `{"id": "sub_1", "latest_invoice": {"id": "in_1"}}`},
		{"empty_payments", `{"id": "sub_1", "latest_invoice": {"id": "in_1", "payments": {"data": []}}}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := extractClientSecret(mustSubscription(t, test.raw)); got != "" {
				t.Errorf("extractClientSecret = %q, want empty", got)
			}
		})
	}
}

func TestSubscriptionFromStripe(t *testing.T) {
	sub := mustSubscription(t, `{
		"id": "sub_1",
		"status": "active",
		"customer": "cus_1",
		"items": {"data": [{"price": {"id": "price_pro"}}]}
	}`)

	mapped := subscriptionFromStripe(sub)
	if mapped.ID != "sub_1" || mapped.Status != "active" {
		t.Errorf("mapped = %+v", mapped)
	}
	if mapped.CustomerID != "cus_1" {
		t.Errorf("customer id = %q", mapped.CustomerID)
	}
	if mapped.PriceID != "price_pro" {
		t.Errorf("price id = %q", mapped.PriceID)
	}
}

const testWebhookSecret = "whsec_test_secret"

// signPayload produces a stripe-signature header for the raw body, the
// same scheme the provider uses: HMAC-SHA256 over "<timestamp>.<body>".
func signPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func subscriptionEventPayload(eventType string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"api_version": "2020-08-27",
		"type": %q,
		"data": {
			"object": {
				"id": "sub_1",
				"object": "subscription",
				"status": "active",
				"customer": "cus_1",
				"items": {"data": [{"price": {"id": "price_pro"}}]}
			}
		}
	}`, eventType))
}

func TestVerifyEventAcceptsSignedPayload(t *testing.T) {
	c := NewStripeClient("sk_test_key", testWebhookSecret)
	payload := subscriptionEventPayload(EventSubscriptionUpdated)

	event, err := c.VerifyEvent(payload, signPayload(payload, testWebhookSecret, time.Now()))
	if err != nil {
		t.Fatalf("VerifyEvent failed: %v", err)
	}

	if event.Type != EventSubscriptionUpdated {
		t.Errorf("event type = %q", event.Type)
	}
	if event.Subscription == nil {
		t.Fatal("subscription not parsed from lifecycle event")
	}
	if event.Subscription.CustomerID != "cus_1" || event.Subscription.Status != "active" {
		t.Errorf("subscription = %+v", event.Subscription)
	}
	if event.Subscription.PriceID != "price_pro" {
		t.Errorf("price id = %q", event.Subscription.PriceID)
	}
}

func TestVerifyEventRejectsTamperedPayload(t *testing.T) {
	c := NewStripeClient("sk_test_key", testWebhookSecret)
	payload := subscriptionEventPayload(EventSubscriptionUpdated)
	header := signPayload(payload, testWebhookSecret, time.Now())

	tampered := []byte(string(payload[:len(payload)-1]) + " ")

	_, err := c.VerifyEvent(tampered, header)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyEventRejectsWrongSecret(t *testing.T) {
	c := NewStripeClient("sk_test_key", testWebhookSecret)
	payload := subscriptionEventPayload(EventSubscriptionDeleted)

	_, err := c.VerifyEvent(payload, signPayload(payload, "whsec_other", time.Now()))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyEventRejectsStaleTimestamp(t *testing.T) {
	c := NewStripeClient("sk_test_key", testWebhookSecret)
	payload := subscriptionEventPayload(EventSubscriptionCreated)

	_, err := c.VerifyEvent(payload, signPayload(payload, testWebhookSecret, time.Now().Add(-time.Hour)))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyEventNonLifecycleSkipsSubscriptionParse(t *testing.T) {
	c := NewStripeClient("sk_test_key", testWebhookSecret)
	payload := []byte(`{
		"id": "evt_2",
		"object": "event",
		"type": "invoice.paid",
		"data": {"object": {"id": "in_1", "object": "invoice"}}
	}`)

	event, err := c.VerifyEvent(payload, signPayload(payload, testWebhookSecret, time.Now()))
	if err != nil {
		t.Fatalf("VerifyEvent failed: %v", err)
	}
	if event.Subscription != nil {
		t.Error("non-lifecycle event carries a subscription")
	}
}
