package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hearthside/hearthside/internal/auth"
	"github.com/hearthside/hearthside/internal/model"
	"github.com/hearthside/hearthside/internal/repository"
)

type stubResolver struct {
	sessions map[string]string
	err      error
	deleted  []string
}

func (s *stubResolver) Get(ctx context.Context, sessionID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	userID, ok := s.sessions[sessionID]
	if !ok {
		return "", errors.New("session not found")
	}
	return userID, nil
}

func (s *stubResolver) Delete(ctx context.Context, sessionID string) error {
	delete(s.sessions, sessionID)
	s.deleted = append(s.deleted, sessionID)
	return nil
}

type stubUserFinder struct {
	known map[string]bool
}

func (s *stubUserFinder) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if !s.known[id] {
		return nil, repository.ErrUserNotFound
	}
	return &model.User{ID: id}, nil
}

const cookieName = "hearthside_session"

func sessionChain(resolver SessionResolver, next http.Handler) http.Handler {
	cfg := SessionConfig{Store: resolver, CookieName: cookieName}
	return Session(cfg)(next)
}

func TestSessionInjectsUser(t *testing.T) {
	resolver := &stubResolver{sessions: map[string]string{"sess-1": "user-1"}}

	var gotUser, gotSession string
	h := sessionChain(resolver, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = auth.UserIDFromContext(r.Context())
		gotSession = auth.SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "sess-1"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	if gotUser != "user-1" {
		t.Errorf("user id = %q", gotUser)
	}
	if gotSession != "sess-1" {
		t.Errorf("session id = %q", gotSession)
	}
}

func TestSessionPassesThroughWithoutCookie(t *testing.T) {
	resolver := &stubResolver{sessions: map[string]string{}}

	called := false
	h := sessionChain(resolver, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if auth.UserIDFromContext(r.Context()) != "" {
			t.Error("unexpected user id in context")
		}
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("next handler not called")
	}
}

func TestSessionToleratesResolverFailure(t *testing.T) {
	resolver := &stubResolver{err: errors.New("redis down")}

	called := false
	h := sessionChain(resolver, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "sess-1"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Error("resolver failure blocked the request")
	}
}

func TestSessionDestroysSessionForDeletedUser(t *testing.T) {
	resolver := &stubResolver{sessions: map[string]string{"sess-1": "gone-user"}}
	cfg := SessionConfig{
		Store:      resolver,
		Users:      &stubUserFinder{known: map[string]bool{}},
		CookieName: cookieName,
	}

	h := Session(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.UserIDFromContext(r.Context()) != "" {
			t.Error("deleted user resolved to an identity")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "sess-1"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	if len(resolver.deleted) != 1 || resolver.deleted[0] != "sess-1" {
		t.Errorf("stale session not destroyed: %v", resolver.deleted)
	}
}

func TestSessionKeepsValidUser(t *testing.T) {
	resolver := &stubResolver{sessions: map[string]string{"sess-1": "user-1"}}
	cfg := SessionConfig{
		Store:      resolver,
		Users:      &stubUserFinder{known: map[string]bool{"user-1": true}},
		CookieName: cookieName,
	}

	var gotUser string
	h := Session(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = auth.UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "sess-1"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	if gotUser != "user-1" {
		t.Errorf("user id = %q", gotUser)
	}
	if len(resolver.deleted) != 0 {
		t.Errorf("valid session destroyed: %v", resolver.deleted)
	}
}

func TestRequireSessionRejectsAnonymous(t *testing.T) {
	h := RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without a session")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireSessionAllowsAuthenticated(t *testing.T) {
	called := false
	h := RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.ContextWithUser(req.Context(), "user-1", "sess-1"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Error("authenticated request blocked")
	}
}

func TestRequireSessionRedirect(t *testing.T) {
	h := RequireSessionRedirect("/signin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without a session")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/billing", nil))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/signin" {
		t.Errorf("Location = %q", loc)
	}
}
