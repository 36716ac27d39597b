package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hearthside/hearthside/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailExists  = errors.New("email already exists")
)

const userColumns = `
	id, email, password_hash, created_at,
	COALESCE(stripe_customer_id, ''),
	COALESCE(stripe_subscription_id, ''),
	COALESCE(stripe_subscription_status, ''),
	COALESCE(stripe_price_id, '')
`

// CreateUser inserts a new user. A duplicate email surfaces as
// ErrEmailExists via the unique index, not via a prior existence check.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id), "ID")
}

// GetUserByEmail retrieves a user by their email address.
// The caller is expected to have lowercased the email already.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, email), "email")
}

// SetStripeCustomerID persists the billing customer reference for a user.
// The WHERE clause keeps an already-set id untouched: once assigned, the
// reference is permanent.
func (r *Repository) SetStripeCustomerID(ctx context.Context, userID, customerID string) error {
	query := `
		UPDATE users
		SET stripe_customer_id = $2
		WHERE id = $1 AND stripe_customer_id IS NULL
	`

	if _, err := r.pool.Exec(ctx, query, userID, customerID); err != nil {
		return fmt.Errorf("failed to set stripe customer id: %w", err)
	}

	return nil
}

// UpdateSubscription overwrites the cached subscription id, status and
// price for a user. The three fields travel together so the stored status
// can never disagree with its price.
func (r *Repository) UpdateSubscription(ctx context.Context, userID, subscriptionID, status, priceID string) error {
	query := `
		UPDATE users
		SET stripe_subscription_id = NULLIF($2, ''),
		    stripe_subscription_status = NULLIF($3, ''),
		    stripe_price_id = NULLIF($4, '')
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, userID, subscriptionID, status, priceID)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// UpdateSubscriptionByCustomerID applies webhook-reported subscription
// state to the user owning the given billing customer reference. Returns
// the number of rows updated; zero means no local user matched, which is
// an expected outcome for test events or deleted accounts.
func (r *Repository) UpdateSubscriptionByCustomerID(ctx context.Context, customerID, subscriptionID, status, priceID string) (int64, error) {
	query := `
		UPDATE users
		SET stripe_subscription_id = NULLIF($2, ''),
		    stripe_subscription_status = NULLIF($3, ''),
		    stripe_price_id = NULLIF($4, '')
		WHERE stripe_customer_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, customerID, subscriptionID, status, priceID)
	if err != nil {
		return 0, fmt.Errorf("failed to update subscription by customer: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *Repository) scanUser(row pgx.Row, by string) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.StripeCustomerID,
		&user.StripeSubscriptionID,
		&user.StripeSubscriptionStatus,
		&user.StripePriceID,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by %s: %w", by, err)
	}

	return &user, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	// PostgreSQL error code 23505 is unique_violation
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
