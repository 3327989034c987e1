package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides the user/session persistence the Request Handler's
// authentication check consumes: resolve a session cookie to a user, and
// mint or revoke sessions. It does not carry the role/provider bookkeeping
// a full OIDC identity provider would need — that integration is out of
// scope here, treated as an external collaborator.
type Store struct {
	pool       *pgxpool.Pool
	sessionTTL time.Duration
}

func NewStore(pool *pgxpool.Pool, sessionTTLHours int) *Store {
	if sessionTTLHours <= 0 {
		sessionTTLHours = 72
	}
	return &Store{pool: pool, sessionTTL: time.Duration(sessionTTLHours) * time.Hour}
}

// InitSchema creates the users and sessions tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS users (
  id BIGSERIAL PRIMARY KEY,
  email TEXT UNIQUE NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  expires_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
	return err
}

// UpsertUser creates a user by email if none exists, or refreshes its name.
func (s *Store) UpsertUser(ctx context.Context, email, name string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, errors.New("email required")
	}
	u := &User{Email: email, Name: name}
	row := s.pool.QueryRow(ctx, `
INSERT INTO users(email, name)
VALUES ($1,$2)
ON CONFLICT (email) DO UPDATE SET
  name=EXCLUDED.name,
  updated_at=now()
RETURNING id, created_at, updated_at
`, u.Email, u.Name)
	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// CreateSession issues a new session for a user.
func (s *Store) CreateSession(ctx context.Context, userID int64) (*Session, error) {
	id, err := randomID(32)
	if err != nil {
		return nil, err
	}
	sess := &Session{ID: id, UserID: userID, ExpiresAt: time.Now().Add(s.sessionTTL)}
	_, err = s.pool.Exec(ctx, `INSERT INTO sessions(id, user_id, expires_at) VALUES($1,$2,$3)`, sess.ID, sess.UserID, sess.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// GetSession returns the session and associated user if the session is valid
// and unexpired.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, *User, error) {
	var sess Session
	err := s.pool.QueryRow(ctx, `SELECT id, user_id, expires_at, created_at FROM sessions WHERE id=$1`, id).
		Scan(&sess.ID, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		return nil, nil, err
	}
	if time.Now().After(sess.ExpiresAt) {
		_, _ = s.pool.Exec(ctx, `DELETE FROM sessions WHERE id=$1`, id)
		return nil, nil, pgx.ErrNoRows
	}
	var u User
	err = s.pool.QueryRow(ctx, `SELECT id, email, name, created_at, updated_at FROM users WHERE id=$1`, sess.UserID).
		Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, nil, err
	}
	return &sess, &u, nil
}

// DeleteSession removes a session by id.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id=$1`, id)
	return err
}

func randomID(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if len(s) > n*2 {
		s = s[:n*2]
	}
	return s, nil
}

// EmailAllowed checks if email domain is permitted by allowed list; empty list means allow all.
func EmailAllowed(email string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	dom := strings.ToLower(email[at+1:])
	for _, a := range allowed {
		if strings.EqualFold(dom, strings.TrimSpace(a)) {
			return true
		}
	}
	return false
}
