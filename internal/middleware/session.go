package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hearthside/hearthside/internal/auth"
	"github.com/hearthside/hearthside/internal/model"
	"github.com/hearthside/hearthside/internal/repository"
)

// SessionResolver resolves an opaque session id to a user id and revokes
// sessions. Satisfied by *cache.SessionStore.
type SessionResolver interface {
	Get(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
}

// UserFinder looks up a user by id. Satisfied by *repository.Repository.
type UserFinder interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// SessionConfig holds configuration for the session middleware.
type SessionConfig struct {
	Logger *slog.Logger
	Store  SessionResolver
	// Users, when set, is consulted so a session pointing at a deleted
	// account is destroyed instead of resolving.
	Users UserFinder
	// CookieName is the session cookie to read.
	CookieName string
}

// Session returns a middleware that resolves the session cookie and, when
// valid, injects the user id into the request context. Requests without a
// valid session pass through unauthenticated; access control is the job of
// RequireSession or RequireSessionRedirect further down the chain.
func Session(cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cfg.CookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := cfg.Store.Get(r.Context(), cookie.Value)
			if err != nil {
				// Unknown and expired sessions are routine; anything else
				// means the session backend is unwell.
				if cfg.Logger != nil {
					cfg.Logger.Debug("session not resolved",
						slog.String("error", err.Error()),
						slog.String("request_id", GetRequestID(r.Context())),
					)
				}
				next.ServeHTTP(w, r)
				return
			}

			if cfg.Users != nil {
				if _, err := cfg.Users.GetUserByID(r.Context(), userID); err != nil {
					if errors.Is(err, repository.ErrUserNotFound) {
						// The account is gone; the session must not outlive it.
						_ = cfg.Store.Delete(r.Context(), cookie.Value)
					} else if cfg.Logger != nil {
						cfg.Logger.Warn("session user lookup failed",
							slog.String("error", err.Error()),
							slog.String("request_id", GetRequestID(r.Context())),
						)
					}
					next.ServeHTTP(w, r)
					return
				}
			}

			ctx := auth.ContextWithUser(r.Context(), userID, cookie.Value)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession returns a middleware that rejects unauthenticated requests
// with a 401 JSON response. Must be applied after Session.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.UserIDFromContext(r.Context()) == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Authentication required","code":"UNAUTHORIZED"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSessionRedirect returns a middleware that sends unauthenticated
// requests to the sign-in page with a 303. Used on browser-facing routes
// where a JSON error would dead-end the user.
func RequireSessionRedirect(signinPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth.UserIDFromContext(r.Context()) == "" {
				http.Redirect(w, r, signinPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
