package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Login is a minimal credential check standing in for the external identity
// provider integration spec.md treats as out of scope: it trusts a shared
// secret supplied by the deployment (an API gateway or reverse proxy would
// normally have done the real authentication upstream) and mints a session
// for the claimed email.
type Login struct {
	Store          *Store
	SharedSecret   string
	CookieName     string
	AllowedDomains []string
	CookieSecure   bool
}

type loginRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Handler validates the request's X-Auth-Secret header against SharedSecret,
// upserts a user for the given email, and sets a session cookie.
func (l *Login) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if l.SharedSecret == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Auth-Secret")), []byte(l.SharedSecret)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Email) == "" {
			http.Error(w, "email required", http.StatusBadRequest)
			return
		}
		if !EmailAllowed(req.Email, l.AllowedDomains) {
			http.Error(w, "email domain not allowed", http.StatusForbidden)
			return
		}
		ctx := r.Context()
		u, err := l.Store.UpsertUser(ctx, req.Email, req.Name)
		if err != nil {
			http.Error(w, "user upsert failed", http.StatusInternalServerError)
			return
		}
		sess, err := l.Store.CreateSession(ctx, u.ID)
		if err != nil {
			http.Error(w, "session create failed", http.StatusInternalServerError)
			return
		}
		setCookie(w, l.cookieName(), sess.ID, sess.ExpiresAt, l.CookieSecure)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(u)
	}
}

// LogoutHandler deletes the session named by the cookie and clears it.
func (l *Login) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(l.cookieName()); err == nil && c.Value != "" {
			_ = l.Store.DeleteSession(r.Context(), c.Value)
		}
		clearCookie(w, l.cookieName(), l.CookieSecure)
		w.WriteHeader(http.StatusNoContent)
	}
}

// MeHandler reports the current session's user.
func (l *Login) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		u, ok := CurrentUser(r.Context())
		if !ok || u == nil {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(u)
	}
}

func (l *Login) cookieName() string {
	if l.CookieName == "" {
		return "sio_session"
	}
	return l.CookieName
}
