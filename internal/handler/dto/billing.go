package dto

// CreateSubscriptionRequest represents the request body for starting a
// subscription. PriceID is optional; empty selects the configured plan.
type CreateSubscriptionRequest struct {
	PriceID string `json:"priceId,omitempty"`
}

// WebhookAck acknowledges a processed webhook delivery.
type WebhookAck struct {
	Received bool `json:"received"`
}
