package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hearthside/hearthside/internal/auth"
	"github.com/hearthside/hearthside/internal/billing"
	"github.com/hearthside/hearthside/internal/handler/dto"
	"github.com/hearthside/hearthside/internal/repository"
	"github.com/hearthside/hearthside/internal/service"
)

// stripeSignatureHeader carries the webhook signature over the raw body.
const stripeSignatureHeader = "Stripe-Signature"

// maxWebhookBodySize limits inbound webhook payloads.
const maxWebhookBodySize = 1 << 20 // 1MB

// BillingHandler handles subscription, portal and webhook requests.
type BillingHandler struct {
	svc    *service.BillingService
	appURL string
	logger *slog.Logger
}

// NewBillingHandler creates a new BillingHandler. appURL is the public base
// URL the billing portal returns the browser to.
func NewBillingHandler(svc *service.BillingService, appURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		svc:    svc,
		appURL: appURL,
		logger: logger,
	}
}

// Webhook handles POST /api/v1/stripe/webhook.
// The body must reach signature verification byte-for-byte as delivered,
// so it is read raw and never decoded before verification.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get(stripeSignatureHeader)
	if signature == "" {
		writeError(w, http.StatusBadRequest, "MISSING_SIGNATURE", "Missing signature header")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Could not read request body")
		return
	}

	if err := h.svc.HandleEvent(r.Context(), payload, signature); err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			h.logger.Warn("webhook signature rejected", "error", err)
			writeError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "Webhook signature verification failed")
			return
		}
		h.logger.Error("webhook processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	writeJSON(w, http.StatusOK, dto.WebhookAck{Received: true})
}

// CreateSubscription handles POST /api/v1/stripe/subscriptions.
func (h *BillingHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	// An empty or absent body selects the configured plan.
	var req dto.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	result, err := h.svc.CreateSubscription(r.Context(), userID, req.PriceID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Portal handles POST /api/v1/stripe/portal. On success the browser is
// sent to the hosted portal with a 303.
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	url, err := h.svc.PortalSessionURL(r.Context(), userID, h.appURL+"/billing")
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, url, http.StatusSeeOther)
}

// Overview handles GET /api/v1/billing.
func (h *BillingHandler) Overview(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	overview, err := h.svc.Overview(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, overview)
}

// handleServiceError maps billing service errors to HTTP responses.
func (h *BillingHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	case errors.Is(err, service.ErrInvalidPrice):
		writeError(w, http.StatusBadRequest, "INVALID_PRICE", "Price does not match the configured plan")
	case errors.Is(err, service.ErrSubscriptionExists):
		writeError(w, http.StatusConflict, "SUBSCRIPTION_EXISTS", "An active subscription already exists")
	case errors.Is(err, service.ErrNoClientSecret):
		h.logger.Error("subscription created without client secret")
		writeError(w, http.StatusInternalServerError, "NO_CLIENT_SECRET", "Subscription could not be initialized for payment")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
