package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLoginHandler_WrongSharedSecretRejected(t *testing.T) {
	t.Parallel()
	l := &Login{SharedSecret: "topsecret"}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"user@example.com"}`))
	req.Header.Set("X-Auth-Secret", "wrong")
	rec := httptest.NewRecorder()

	l.Handler()(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLoginHandler_MissingSharedSecretConfigRejectsEverything(t *testing.T) {
	t.Parallel()
	l := &Login{}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"user@example.com"}`))
	req.Header.Set("X-Auth-Secret", "")
	rec := httptest.NewRecorder()

	l.Handler()(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when no shared secret is configured, got %d", rec.Code)
	}
}

func TestLoginHandler_WrongMethodRejected(t *testing.T) {
	t.Parallel()
	l := &Login{SharedSecret: "topsecret"}
	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	rec := httptest.NewRecorder()

	l.Handler()(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestMeHandler_NoSessionReturnsUnauthorized(t *testing.T) {
	t.Parallel()
	l := &Login{}
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	rec := httptest.NewRecorder()

	l.MeHandler()(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
