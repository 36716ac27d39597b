// Package model defines domain entities for the application.
package model

import "time"

// Subscription statuses reported by the billing provider that grant access.
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
)

// User represents an account holder. Email is stored lowercased and is
// unique. The stripe_* columns cache the billing provider's view of the
// user and may all be empty for accounts that never touched billing.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`

	// StripeCustomerID is set at most once and never cleared afterwards.
	StripeCustomerID string `json:"-"`
	// StripeSubscriptionID, StripeSubscriptionStatus and StripePriceID are
	// overwritten together whenever the billing provider reports new state.
	StripeSubscriptionID     string `json:"-"`
	StripeSubscriptionStatus string `json:"-"`
	StripePriceID            string `json:"-"`
}

// HasActiveSubscription reports whether the locally cached status grants
// access. The cache may be stale; callers that need certainty must
// reconcile against the billing provider first.
func (u *User) HasActiveSubscription() bool {
	return u.StripeSubscriptionStatus == SubscriptionStatusActive ||
		u.StripeSubscriptionStatus == SubscriptionStatusTrialing
}

// PublicUser is the representation of a user returned to clients.
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ToPublic strips credential and billing fields for API responses.
func (u *User) ToPublic() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email}
}
