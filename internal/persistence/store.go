// Package persistence defines the storage contracts the research agent
// depends on: chat history, independent of backend.
package persistence

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a chat does not exist, or exists but is
// owned by a different user — the two are indistinguishable to the caller,
// so as not to leak which chat ids exist to non-owners.
var ErrNotFound = errors.New("persistence: not found")

// ErrAccessDenied is returned by UpsertChat when the chat id already exists
// under a different owner.
var ErrAccessDenied = errors.New("persistence: access denied")

// ChatMessage is one turn of a Chat. ToolID/ToolArgs are populated when the
// message renders a tool-invocation part (the search/fetch calls the agent
// loop made while producing this message), so the record of what evidence
// gathering happened survives alongside the rendered text.
type ChatMessage struct {
	ID        string
	Role      string
	Content   string
	ToolID    string
	ToolArgs  string
	CreatedAt time.Time
}

// ChatSummary is the subset of Chat fields needed to render a chat list,
// without paying the cost of loading every message.
type ChatSummary struct {
	ID                 string
	UserID             *int64
	Title              string
	LastMessagePreview string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Chat is a single research conversation with its full message history, in
// insertion order.
type Chat struct {
	ChatSummary
	Messages []ChatMessage
}

// UpsertChatInput is the argument to ChatStore.UpsertChat.
type UpsertChatInput struct {
	UserID   *int64
	ChatID   string
	Title    string // "" keeps the existing title, or a default provisional title on create
	Messages []ChatMessage
	Preview  string // precomputed LastMessagePreview; "" leaves it unchanged
}

// ChatStore persists chats and their message history. A nil userID means
// the caller is an unrestricted/internal caller; a non-nil userID scopes
// every operation to chats owned by that user.
type ChatStore interface {
	Init(ctx context.Context) error

	// UpsertChat creates the chat if ChatID is unseen, or replaces its
	// title (when changed) and message list if it already exists. It
	// fails with ErrAccessDenied if the chat exists under a different
	// owner. The whole operation is atomic: either every effect applies
	// or none does.
	UpsertChat(ctx context.Context, in UpsertChatInput) (Chat, error)

	// GetChat returns the chat with its messages in insertion order, or
	// ErrNotFound if it does not exist or is owned by another user.
	GetChat(ctx context.Context, userID *int64, chatID string) (Chat, error)

	// ListChats returns every chat owned by userID, ordered by UpdatedAt
	// descending.
	ListChats(ctx context.Context, userID *int64) ([]ChatSummary, error)

	// DeleteChat cascade-deletes a chat and its messages. It fails with
	// ErrNotFound if the chat does not exist or is not owned by userID.
	DeleteChat(ctx context.Context, userID *int64, chatID string) error
}
