package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hearthside/hearthside/internal/auth"
	"github.com/hearthside/hearthside/internal/handler/dto"
	"github.com/hearthside/hearthside/internal/service"
)

// SessionManager issues and revokes sessions. Satisfied by
// *cache.SessionStore; tests use a fake.
type SessionManager interface {
	Create(ctx context.Context, userID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
	TTL() time.Duration
}

// CookieConfig describes the session cookie the handlers set and clear.
type CookieConfig struct {
	Name   string
	Secure bool
}

// AccountHandler handles sign-up, sign-in and sign-out.
type AccountHandler struct {
	svc      *service.AccountService
	sessions SessionManager
	cookie   CookieConfig
	logger   *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(svc *service.AccountService, sessions SessionManager, cookie CookieConfig, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		svc:      svc,
		sessions: sessions,
		cookie:   cookie,
		logger:   logger,
	}
}

// SignUp handles POST /api/v1/auth/signup.
func (h *AccountHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req dto.SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	user, err := h.svc.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	if err := h.startSession(w, r, user.ID); err != nil {
		h.logger.Error("session creation failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountResponse{OK: true, User: user.ToPublic()})
}

// SignIn handles POST /api/v1/auth/signin.
func (h *AccountHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req dto.SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	user, err := h.svc.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	if err := h.startSession(w, r, user.ID); err != nil {
		h.logger.Error("session creation failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountResponse{OK: true, User: user.ToPublic()})
}

// SignOut handles POST /api/v1/auth/signout. Destroys the current session
// if any, clears the cookie, and sends the browser to the sign-in page.
// Signing out without a session is not an error.
func (h *AccountHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	sessionID := auth.SessionIDFromContext(r.Context())
	if sessionID == "" {
		if cookie, err := r.Cookie(h.cookie.Name); err == nil {
			sessionID = cookie.Value
		}
	}

	if sessionID != "" {
		if err := h.sessions.Delete(r.Context(), sessionID); err != nil {
			// The cookie is cleared either way; the orphaned entry expires.
			h.logger.Warn("session delete failed", "error", err)
		}
	}

	h.clearSessionCookie(w)
	http.Redirect(w, r, "/signin", http.StatusSeeOther)
}

// startSession creates a session for the user and sets the cookie.
func (h *AccountHandler) startSession(w http.ResponseWriter, r *http.Request, userID string) error {
	sessionID, err := h.sessions.Create(r.Context(), userID)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// clearSessionCookie expires the session cookie in the browser.
func (h *AccountHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// handleServiceError maps service errors to HTTP responses.
func (h *AccountHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusConflict, "EMAIL_TAKEN", "An account with this email already exists")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
