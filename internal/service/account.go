// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hearthside/hearthside/internal/auth"
	"github.com/hearthside/hearthside/internal/metrics"
	"github.com/hearthside/hearthside/internal/model"
	"github.com/hearthside/hearthside/internal/repository"
)

// Service errors.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailTaken         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Password length limits. The upper bound matches what common bcrypt-era
// clients truncate at, so overlong inputs are rejected instead of
// silently shortened.
const (
	minPasswordLen = 8
	maxPasswordLen = 72
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// UserStore is the subset of the repository the services need.
// *repository.Repository satisfies it; tests use a fake.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	SetStripeCustomerID(ctx context.Context, userID, customerID string) error
	UpdateSubscription(ctx context.Context, userID, subscriptionID, status, priceID string) error
	UpdateSubscriptionByCustomerID(ctx context.Context, customerID, subscriptionID, status, priceID string) (int64, error)
}

// AccountService handles sign-up and sign-in.
type AccountService struct {
	store      UserStore
	iterations int
	logger     *slog.Logger
	metrics    metrics.Recorder
}

// NewAccountService creates an AccountService. iterations is the resolved
// PBKDF2 iteration count for new hashes.
func NewAccountService(store UserStore, iterations int, logger *slog.Logger, recorder metrics.Recorder) *AccountService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AccountService{
		store:      store,
		iterations: iterations,
		logger:     logger.With("service", "account"),
		metrics:    recorder,
	}
}

// NormalizeEmail trims surrounding whitespace and lowercases the address.
// Lookups and storage both go through this, so uniqueness is
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp registers a new account and returns the created user.
func (s *AccountService) SignUp(ctx context.Context, email, password string) (*model.User, error) {
	email = NormalizeEmail(email)

	if !emailRegex.MatchString(email) {
		return nil, fmt.Errorf("%w: enter a valid email address", ErrInvalidInput)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	if len(password) > maxPasswordLen {
		return nil, fmt.Errorf("%w: password must be at most %d characters", ErrInvalidInput, maxPasswordLen)
	}

	hash, err := auth.HashPassword(password, s.iterations)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           ulid.Make().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			s.metrics.IncSignUp(metrics.OutcomeFailure)
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	s.metrics.IncSignUp(metrics.OutcomeSuccess)
	s.logger.Info("account created", "user_id", user.ID)

	return user, nil
}

// SignIn checks credentials and returns the matching user. Unknown email
// and wrong password collapse into the same error.
func (s *AccountService) SignIn(ctx context.Context, email, password string) (*model.User, error) {
	email = NormalizeEmail(email)

	if !emailRegex.MatchString(email) {
		return nil, fmt.Errorf("%w: enter a valid email address", ErrInvalidInput)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if len(password) > maxPasswordLen {
		return nil, fmt.Errorf("%w: password must be at most %d characters", ErrInvalidInput, maxPasswordLen)
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.metrics.IncSignIn(metrics.OutcomeFailure)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !auth.VerifyPassword(password, user.PasswordHash) {
		s.metrics.IncSignIn(metrics.OutcomeFailure)
		return nil, ErrInvalidCredentials
	}

	s.metrics.IncSignIn(metrics.OutcomeSuccess)

	return user, nil
}
