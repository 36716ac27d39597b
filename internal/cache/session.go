package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// sessionPrefix is the Redis key prefix for session entries.
const sessionPrefix = "session:"

// ErrSessionNotFound indicates the session id is unknown or expired.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore issues and resolves opaque session ids. The stored value is
// the user id, nothing else.
type SessionStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewSessionStore creates a SessionStore with the given session lifetime.
func NewSessionStore(cache *Cache, ttl time.Duration) *SessionStore {
	return &SessionStore{cache: cache, ttl: ttl}
}

// Create issues a new session for the user and returns its id.
func (s *SessionStore) Create(ctx context.Context, userID string) (string, error) {
	sessionID := uuid.New().String()

	if err := s.cache.client.Set(ctx, sessionPrefix+sessionID, userID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	return sessionID, nil
}

// Get resolves a session id to its user id and refreshes the TTL so
// active sessions slide instead of expiring mid-use.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (string, error) {
	key := sessionPrefix + sessionID

	userID, err := s.cache.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("get session: %w", err)
	}

	// Best effort; a failed refresh only shortens the session.
	_ = s.cache.client.Expire(ctx, key, s.ttl).Err()

	return userID, nil
}

// Delete destroys a session. Deleting an unknown id is not an error.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.cache.client.Del(ctx, sessionPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// TTL returns the configured session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}
