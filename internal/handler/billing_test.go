package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hearthside/hearthside/internal/auth"
	"github.com/hearthside/hearthside/internal/billing"
	"github.com/hearthside/hearthside/internal/model"
	"github.com/hearthside/hearthside/internal/service"
)

// stubBillingClient scripts provider behavior for handler tests.
type stubBillingClient struct {
	verifyEvent  *billing.Event
	verifyErr    error
	subscription *billing.Subscription
	customerID   string
	portalURL    string
}

func (s *stubBillingClient) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	return s.customerID, nil
}

func (s *stubBillingClient) CreateSubscription(ctx context.Context, customerID, priceID string) (*billing.Subscription, error) {
	return s.subscription, nil
}

func (s *stubBillingClient) GetSubscription(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
	return &billing.Subscription{ID: subscriptionID, Status: "active", PriceID: "price_pro"}, nil
}

func (s *stubBillingClient) PortalSessionURL(ctx context.Context, customerID, returnURL string) (string, error) {
	return s.portalURL, nil
}

func (s *stubBillingClient) ListInvoices(ctx context.Context, customerID string, limit int) ([]billing.Invoice, error) {
	return nil, nil
}

func (s *stubBillingClient) VerifyEvent(payload []byte, signatureHeader string) (*billing.Event, error) {
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return s.verifyEvent, nil
}

func newBillingHandlerEnv(t *testing.T, client *stubBillingClient) (*memStore, *BillingHandler) {
	t.Helper()
	store := newMemStore()
	svc := service.NewBillingService(store, client, "price_pro", discardLogger(), nil)
	h := NewBillingHandler(svc, "https://app.example.com", discardLogger())
	return store, h
}

// asUser attaches an authenticated session to the request context, the way
// the session middleware does for routes behind RequireSession.
func asUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(auth.ContextWithUser(req.Context(), userID, "sess-1"))
}

func TestWebhookMissingSignatureHeader(t *testing.T) {
	store, h := newBillingHandlerEnv(t, &stubBillingClient{})
	seedStoreUser(store, "u1", "cus_1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stripe/webhook", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "MISSING_SIGNATURE") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestWebhookInvalidSignature(t *testing.T) {
	store, h := newBillingHandlerEnv(t, &stubBillingClient{verifyErr: billing.ErrInvalidSignature})
	seedStoreUser(store, "u1", "cus_1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stripe/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if store.users["u1"].StripeSubscriptionStatus != "" {
		t.Error("rejected webhook mutated subscription state")
	}
}

func TestWebhookAppliesEvent(t *testing.T) {
	client := &stubBillingClient{verifyEvent: &billing.Event{
		Type: billing.EventSubscriptionUpdated,
		Subscription: &billing.Subscription{
			ID: "sub_1", CustomerID: "cus_1", Status: "past_due", PriceID: "price_pro",
		},
	}}
	store, h := newBillingHandlerEnv(t, client)
	seedStoreUser(store, "u1", "cus_1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stripe/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=valid")
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"received":true`) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if store.users["u1"].StripeSubscriptionStatus != "past_due" {
		t.Error("event not applied to the store")
	}
}

func TestCreateSubscriptionEndpoint(t *testing.T) {
	client := &stubBillingClient{
		customerID: "cus_new",
		subscription: &billing.Subscription{
			ID: "sub_new", Status: "incomplete", PriceID: "price_pro", ClientSecret: "pi_secret",
		},
	}
	store, h := newBillingHandlerEnv(t, client)
	seedStoreUser(store, "u1", "")

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/stripe/subscriptions", strings.NewReader(`{}`)), "u1")
	rec := httptest.NewRecorder()
	h.CreateSubscription(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"clientSecret":"pi_secret"`) {
		t.Errorf("body = %s", body)
	}
	if !strings.Contains(body, `"subscriptionId":"sub_new"`) {
		t.Errorf("body = %s", body)
	}
}

func TestCreateSubscriptionEmptyBody(t *testing.T) {
	client := &stubBillingClient{
		customerID: "cus_new",
		subscription: &billing.Subscription{
			ID: "sub_new", Status: "incomplete", PriceID: "price_pro", ClientSecret: "pi_secret",
		},
	}
	store, h := newBillingHandlerEnv(t, client)
	seedStoreUser(store, "u1", "")

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/stripe/subscriptions", nil), "u1")
	rec := httptest.NewRecorder()
	h.CreateSubscription(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("empty body should default to the configured plan: status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestCreateSubscriptionConflict(t *testing.T) {
	store, h := newBillingHandlerEnv(t, &stubBillingClient{})
	store.users["u1"] = &model.User{
		ID: "u1", Email: "a@example.com",
		StripeCustomerID: "cus_1", StripeSubscriptionID: "sub_1",
		StripeSubscriptionStatus: "active", StripePriceID: "price_pro",
	}

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/stripe/subscriptions", strings.NewReader(`{}`)), "u1")
	rec := httptest.NewRecorder()
	h.CreateSubscription(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCreateSubscriptionUnknownUser(t *testing.T) {
	_, h := newBillingHandlerEnv(t, &stubBillingClient{})

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/stripe/subscriptions", strings.NewReader(`{}`)), "ghost")
	rec := httptest.NewRecorder()
	h.CreateSubscription(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestPortalRedirects(t *testing.T) {
	client := &stubBillingClient{customerID: "cus_new", portalURL: "https://billing.stripe.com/session/xyz"}
	store, h := newBillingHandlerEnv(t, client)
	seedStoreUser(store, "u1", "cus_1")

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/stripe/portal", nil), "u1")
	rec := httptest.NewRecorder()
	h.Portal(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://billing.stripe.com/session/xyz" {
		t.Errorf("Location = %q", loc)
	}
}

func TestOverviewEndpoint(t *testing.T) {
	store, h := newBillingHandlerEnv(t, &stubBillingClient{})
	store.users["u1"] = &model.User{
		ID: "u1", Email: "a@example.com",
		StripeCustomerID: "cus_1", StripeSubscriptionID: "sub_1",
		StripeSubscriptionStatus: "active", StripePriceID: "price_pro",
	}

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/billing", nil), "u1")
	rec := httptest.NewRecorder()
	h.Overview(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"subscription_status":"active"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func seedStoreUser(store *memStore, id, customerID string) {
	store.users[id] = &model.User{ID: id, Email: id + "@example.com", StripeCustomerID: customerID}
}

// signWebhookPayload reproduces the provider's signature scheme:
// HMAC-SHA256 over "<timestamp>.<body>" with the shared webhook secret.
func signWebhookPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// End-to-end over the real Stripe client: a correctly signed delivery
// mutates the store, a tampered one is rejected without touching it.
func TestWebhookEndToEndSignatureVerification(t *testing.T) {
	const secret = "whsec_handler_test"

	store := newMemStore()
	seedStoreUser(store, "u1", "cus_1")
	store.users["u1"].StripeSubscriptionStatus = "active"

	client := billing.NewStripeClient("sk_test_key", secret)
	svc := service.NewBillingService(store, client, "price_pro", discardLogger(), nil)
	h := NewBillingHandler(svc, "https://app.example.com", discardLogger())

	payload := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "customer.subscription.deleted",
		"data": {
			"object": {
				"id": "sub_1",
				"object": "subscription",
				"status": "canceled",
				"customer": "cus_1",
				"items": {"data": [{"price": {"id": "price_pro"}}]}
			}
		}
	}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signWebhookPayload(payload, secret))
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if store.users["u1"].StripeSubscriptionStatus != "canceled" {
		t.Errorf("status = %q, want canceled", store.users["u1"].StripeSubscriptionStatus)
	}

	// Tampered body under the old signature: rejected, nothing written.
	store.users["u1"].StripeSubscriptionStatus = "active"
	tampered := bytes.Replace(payload, []byte("canceled"), []byte("trialing"), 1)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/stripe/webhook", bytes.NewReader(tampered))
	req.Header.Set("Stripe-Signature", signWebhookPayload(payload, secret))
	rec = httptest.NewRecorder()
	h.Webhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("tampered delivery: status = %d, want 400", rec.Code)
	}
	if store.users["u1"].StripeSubscriptionStatus != "active" {
		t.Error("tampered delivery mutated the store")
	}
}
