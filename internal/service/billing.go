package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hearthside/hearthside/internal/billing"
	"github.com/hearthside/hearthside/internal/metrics"
	"github.com/hearthside/hearthside/internal/model"
)

// Billing service errors.
var (
	ErrInvalidPrice       = errors.New("price does not match the configured plan")
	ErrSubscriptionExists = errors.New("an active subscription already exists")
	ErrNoClientSecret     = errors.New("no client secret in subscription response")
)

// invoiceListLimit caps the invoice history shown on the billing page.
const invoiceListLimit = 10

// BillingService keeps the locally cached subscription state in sync with
// the billing provider and drives the checkout and portal flows. There is
// a single supported plan, identified by priceID.
type BillingService struct {
	store   UserStore
	client  billing.Client
	priceID string
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewBillingService creates a BillingService.
func NewBillingService(store UserStore, client billing.Client, priceID string, logger *slog.Logger, recorder metrics.Recorder) *BillingService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &BillingService{
		store:   store,
		client:  client,
		priceID: priceID,
		logger:  logger.With("service", "billing"),
		metrics: recorder,
	}
}

// HandleEvent processes a raw inbound webhook delivery. The signature is
// verified over the exact raw body before anything else; a failure there
// returns billing.ErrInvalidSignature and mutates nothing. Once the
// signature passes, the event is acknowledged even when no local user
// matches the reported customer.
func (s *BillingService) HandleEvent(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := s.client.VerifyEvent(payload, signatureHeader)
	if err != nil {
		s.metrics.IncWebhookEvent("unknown", metrics.OutcomeRejected)
		return err
	}

	if event.Subscription == nil || event.Subscription.CustomerID == "" {
		s.metrics.IncWebhookEvent(event.Type, metrics.OutcomeIgnored)
		return nil
	}

	// State comes from the event payload as delivered, not from a fresh
	// read; a deleted event therefore records the terminal status the
	// provider reported.
	sub := event.Subscription
	rows, err := s.store.UpdateSubscriptionByCustomerID(ctx, sub.CustomerID, sub.ID, sub.Status, sub.PriceID)
	if err != nil {
		return fmt.Errorf("apply billing event: %w", err)
	}

	if rows == 0 {
		s.metrics.IncWebhookEvent(event.Type, metrics.OutcomeUnmatched)
		s.logger.Info("billing event matched no local user",
			"event_type", event.Type,
			"customer_id", sub.CustomerID,
		)
		return nil
	}

	s.metrics.IncWebhookEvent(event.Type, metrics.OutcomeApplied)
	s.logger.Info("billing event applied",
		"event_type", event.Type,
		"customer_id", sub.CustomerID,
		"subscription_status", sub.Status,
	)

	return nil
}

// Overview is the billing state returned to the billing page.
type Overview struct {
	SubscriptionStatus string            `json:"subscription_status,omitempty"`
	PriceID            string            `json:"price_id,omitempty"`
	CustomerID         string            `json:"customer_id,omitempty"`
	Invoices           []billing.Invoice `json:"invoices"`
}

// Overview returns the user's billing snapshot. When the user has a
// subscription, the live status and price are read from the provider and,
// on drift, written back as a pair. Provider failures on this path are
// logged and swallowed; the page prefers stale data over an error.
func (s *BillingService) Overview(ctx context.Context, userID string) (*Overview, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	overview := &Overview{
		SubscriptionStatus: user.StripeSubscriptionStatus,
		PriceID:            user.StripePriceID,
		CustomerID:         user.StripeCustomerID,
	}

	if user.StripeCustomerID == "" {
		return overview, nil
	}

	invoices, err := s.client.ListInvoices(ctx, user.StripeCustomerID, invoiceListLimit)
	if err != nil {
		s.logger.Warn("invoice listing failed", "user_id", user.ID, "error", err)
	} else {
		overview.Invoices = invoices
	}

	if user.StripeSubscriptionID != "" {
		s.reconcile(ctx, user, overview)
	}

	return overview, nil
}

// reconcile compares the provider's live subscription state against the
// stored copy and overwrites status and price together when they drifted.
// Best-effort: every failure leaves the stored values in the overview.
func (s *BillingService) reconcile(ctx context.Context, user *model.User, overview *Overview) {
	live, err := s.client.GetSubscription(ctx, user.StripeSubscriptionID)
	if err != nil {
		s.metrics.IncReconciliation(metrics.OutcomeError)
		s.logger.Warn("subscription reconciliation failed",
			"user_id", user.ID,
			"subscription_id", user.StripeSubscriptionID,
			"error", err,
		)
		return
	}

	if live.Status == user.StripeSubscriptionStatus && live.PriceID == user.StripePriceID {
		s.metrics.IncReconciliation(metrics.OutcomeClean)
		return
	}

	if err := s.store.UpdateSubscription(ctx, user.ID, user.StripeSubscriptionID, live.Status, live.PriceID); err != nil {
		s.metrics.IncReconciliation(metrics.OutcomeError)
		s.logger.Warn("persisting reconciled subscription state failed",
			"user_id", user.ID,
			"error", err,
		)
		return
	}

	s.metrics.IncReconciliation(metrics.OutcomeDrift)
	s.logger.Info("subscription state reconciled",
		"user_id", user.ID,
		"old_status", user.StripeSubscriptionStatus,
		"new_status", live.Status,
	)

	overview.SubscriptionStatus = live.Status
	overview.PriceID = live.PriceID
}

// CreateSubscriptionResult carries what the browser needs to confirm the
// initial payment.
type CreateSubscriptionResult struct {
	ClientSecret   string `json:"clientSecret"`
	SubscriptionID string `json:"subscriptionId"`
}

// CreateSubscription starts a subscription for the single configured
// plan. The duplicate check runs against the local cache before any
// provider call; it is a guard, not a replacement for provider-side
// idempotency.
func (s *BillingService) CreateSubscription(ctx context.Context, userID, priceID string) (*CreateSubscriptionResult, error) {
	if priceID == "" {
		priceID = s.priceID
	}
	if priceID != s.priceID {
		return nil, ErrInvalidPrice
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.HasActiveSubscription() {
		return nil, ErrSubscriptionExists
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	sub, err := s.client.CreateSubscription(ctx, customerID, priceID)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	if sub.ClientSecret == "" {
		return nil, ErrNoClientSecret
	}

	if err := s.store.UpdateSubscription(ctx, user.ID, sub.ID, sub.Status, priceID); err != nil {
		return nil, err
	}

	s.metrics.IncSubscriptionCreated()
	s.logger.Info("subscription created",
		"user_id", user.ID,
		"subscription_id", sub.ID,
		"status", sub.Status,
	)

	return &CreateSubscriptionResult{
		ClientSecret:   sub.ClientSecret,
		SubscriptionID: sub.ID,
	}, nil
}

// PortalSessionURL returns a hosted billing portal URL for the user,
// creating the provider customer first if needed.
func (s *BillingService) PortalSessionURL(ctx context.Context, userID, returnURL string) (string, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return "", err
	}

	return s.client.PortalSessionURL(ctx, customerID, returnURL)
}

// ensureCustomer returns the user's billing customer id, creating and
// persisting it on first use. The id is written at most once.
func (s *BillingService) ensureCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}

	customerID, err := s.client.CreateCustomer(ctx, user.Email, user.ID)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}

	if err := s.store.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
		return "", err
	}

	s.logger.Info("billing customer created", "user_id", user.ID, "customer_id", customerID)

	return customerID, nil
}
