package auth

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// userIDKey is the context key for the authenticated user id.
	userIDKey contextKey = "user_id"
	// sessionIDKey is the context key for the current session id.
	sessionIDKey contextKey = "session_id"
)

// ContextWithUser stores the authenticated user id and its session id on
// the context. Applied by the session middleware.
func ContextWithUser(ctx context.Context, userID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// UserIDFromContext retrieves the authenticated user id from the context.
// Returns empty string if the request is not authenticated.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// SessionIDFromContext retrieves the session id from the context.
// Returns empty string if the request carries no session.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}
