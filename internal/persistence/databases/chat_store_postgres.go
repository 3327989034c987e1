package databases

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"deepresearch/internal/persistence"
)

// NewPostgresChatStore returns a Postgres-backed chat history store.
func NewPostgresChatStore(pool *pgxpool.Pool) persistence.ChatStore {
	return &pgChatStore{pool: pool}
}

type pgChatStore struct {
	pool *pgxpool.Pool
}

func (s *pgChatStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *pgChatStore) Init(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("postgres chat store requires pool")
	}
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS chats (
    id UUID PRIMARY KEY,
    user_id BIGINT,
    title TEXT NOT NULL,
    last_message_preview TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS chat_messages (
    id UUID PRIMARY KEY,
    chat_id UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    tool_id TEXT,
    tool_args TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS chat_messages_chat_created_idx ON chat_messages(chat_id, created_at);
CREATE INDEX IF NOT EXISTS chats_user_updated_idx ON chats(user_id, updated_at DESC);
CREATE INDEX IF NOT EXISTS chats_user_created_idx ON chats(user_id, created_at DESC);
`)
	return err
}

func hasAccess(userID *int64, owner *int64) bool {
	if userID == nil {
		return true
	}
	if owner == nil {
		return false
	}
	return *userID == *owner
}

// UpsertChat implements the §4.10 contract under a single transaction: the
// existing row (if any) is locked with FOR UPDATE so a concurrent upsert of
// the same chat id can't interleave create and replace.
func (s *pgChatStore) UpsertChat(ctx context.Context, in persistence.UpsertChatInput) (persistence.Chat, error) {
	if strings.TrimSpace(in.ChatID) == "" {
		return persistence.Chat{}, errors.New("chat id required")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return persistence.Chat{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var existingOwner sql.NullInt64
	var existingTitle string
	err = tx.QueryRow(ctx, `SELECT user_id, title FROM chats WHERE id = $1 FOR UPDATE`, in.ChatID).Scan(&existingOwner, &existingTitle)
	switch {
	case err == nil:
		var owner *int64
		if existingOwner.Valid {
			v := existingOwner.Int64
			owner = &v
		}
		if !hasAccess(in.UserID, owner) {
			return persistence.Chat{}, persistence.ErrAccessDenied
		}
		title := existingTitle
		if t := strings.TrimSpace(in.Title); t != "" {
			title = t
		}
		if _, err := tx.Exec(ctx, `
UPDATE chats
SET title = $2, updated_at = NOW(),
    last_message_preview = CASE WHEN $3 = '' THEN last_message_preview ELSE $3 END
WHERE id = $1`, in.ChatID, title, in.Preview); err != nil {
			return persistence.Chat{}, err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM chat_messages WHERE chat_id = $1`, in.ChatID); err != nil {
			return persistence.Chat{}, err
		}
	case errors.Is(err, pgx.ErrNoRows):
		var uid any
		if in.UserID != nil {
			uid = *in.UserID
		}
		title := strings.TrimSpace(in.Title)
		if title == "" {
			title = provisionalChatTitle
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO chats (id, user_id, title, last_message_preview)
VALUES ($1, $2, $3, $4)`, in.ChatID, uid, title, in.Preview); err != nil {
			return persistence.Chat{}, err
		}
	default:
		return persistence.Chat{}, err
	}

	now := time.Now().UTC()
	for i, m := range in.Messages {
		id := m.ID
		if id == "" {
			id = uuid.NewString()
		}
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			createdAt = now.Add(time.Duration(i) * time.Millisecond)
		}
		var toolID, toolArgs any
		if m.ToolID != "" {
			toolID = m.ToolID
		}
		if m.ToolArgs != "" {
			toolArgs = m.ToolArgs
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO chat_messages (id, chat_id, role, content, tool_id, tool_args, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, id, in.ChatID, m.Role, m.Content, toolID, toolArgs, createdAt); err != nil {
			return persistence.Chat{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return persistence.Chat{}, err
	}
	return s.GetChat(ctx, in.UserID, in.ChatID)
}

func (s *pgChatStore) GetChat(ctx context.Context, userID *int64, chatID string) (persistence.Chat, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, user_id, title, last_message_preview, created_at, updated_at
FROM chats WHERE id = $1`, chatID)

	var cs persistence.ChatSummary
	var owner sql.NullInt64
	if err := row.Scan(&cs.ID, &owner, &cs.Title, &cs.LastMessagePreview, &cs.CreatedAt, &cs.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return persistence.Chat{}, persistence.ErrNotFound
		}
		return persistence.Chat{}, err
	}
	if owner.Valid {
		v := owner.Int64
		cs.UserID = &v
	}
	if !hasAccess(userID, cs.UserID) {
		return persistence.Chat{}, persistence.ErrNotFound
	}

	rows, err := s.pool.Query(ctx, `
SELECT id, role, content, tool_id, tool_args, created_at
FROM chat_messages
WHERE chat_id = $1
ORDER BY created_at ASC, id ASC`, chatID)
	if err != nil {
		return persistence.Chat{}, err
	}
	defer rows.Close()

	var msgs []persistence.ChatMessage
	for rows.Next() {
		var m persistence.ChatMessage
		var toolID, toolArgs sql.NullString
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &toolID, &toolArgs, &m.CreatedAt); err != nil {
			return persistence.Chat{}, err
		}
		m.ToolID = toolID.String
		m.ToolArgs = toolArgs.String
		msgs = append(msgs, m)
	}
	if msgs == nil {
		msgs = make([]persistence.ChatMessage, 0)
	}
	return persistence.Chat{ChatSummary: cs, Messages: msgs}, rows.Err()
}

func (s *pgChatStore) ListChats(ctx context.Context, userID *int64) ([]persistence.ChatSummary, error) {
	query := `
SELECT id, user_id, title, last_message_preview, created_at, updated_at
FROM chats`
	args := []any{}
	if userID != nil {
		query += ` WHERE user_id = $1`
		args = append(args, *userID)
	}
	query += `
ORDER BY updated_at DESC, created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []persistence.ChatSummary
	for rows.Next() {
		var cs persistence.ChatSummary
		var owner sql.NullInt64
		if err := rows.Scan(&cs.ID, &owner, &cs.Title, &cs.LastMessagePreview, &cs.CreatedAt, &cs.UpdatedAt); err != nil {
			return nil, err
		}
		if owner.Valid {
			v := owner.Int64
			cs.UserID = &v
		}
		out = append(out, cs)
	}
	if out == nil {
		out = make([]persistence.ChatSummary, 0)
	}
	return out, rows.Err()
}

func (s *pgChatStore) DeleteChat(ctx context.Context, userID *int64, chatID string) error {
	query := `DELETE FROM chats WHERE id = $1`
	args := []any{chatID}
	if userID != nil {
		query += ` AND user_id = $2`
		args = append(args, *userID)
	}
	cmd, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}
	return persistence.ErrNotFound
}
