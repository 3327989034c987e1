package databases

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"deepresearch/internal/persistence"
)

const provisionalChatTitle = "Analyzing..."

func newMemoryChatStore() persistence.ChatStore {
	return &memChatStore{chats: map[string]*memChat{}}
}

type memChat struct {
	summary  persistence.ChatSummary
	messages []persistence.ChatMessage
}

type memChatStore struct {
	mu    sync.RWMutex
	chats map[string]*memChat
}

func (s *memChatStore) Init(ctx context.Context) error { return nil }

func copyUserID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func stampMessages(sessionID string, messages []persistence.ChatMessage) []persistence.ChatMessage {
	out := make([]persistence.ChatMessage, len(messages))
	copy(out, messages)
	now := time.Now().UTC()
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
		if out[i].CreatedAt.IsZero() {
			out[i].CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
		}
	}
	return out
}

func toChat(c memChat) persistence.Chat {
	msgs := make([]persistence.ChatMessage, len(c.messages))
	copy(msgs, c.messages)
	return persistence.Chat{ChatSummary: c.summary, Messages: msgs}
}

// UpsertChat implements the §4.10 contract: create-or-replace, atomic under
// the store's single lock, access-denied when the id is owned elsewhere.
func (s *memChatStore) UpsertChat(ctx context.Context, in persistence.UpsertChatInput) (persistence.Chat, error) {
	if strings.TrimSpace(in.ChatID) == "" {
		return persistence.Chat{}, errors.New("chat id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	messages := stampMessages(in.ChatID, in.Messages)

	if existing, ok := s.chats[in.ChatID]; ok {
		if !hasAccess(in.UserID, existing.summary.UserID) {
			return persistence.Chat{}, persistence.ErrAccessDenied
		}
		if title := strings.TrimSpace(in.Title); title != "" {
			existing.summary.Title = title
		}
		if in.Preview != "" {
			existing.summary.LastMessagePreview = in.Preview
		}
		existing.messages = messages
		existing.summary.UpdatedAt = now
		log.Ctx(ctx).Info().Str("chat_id", in.ChatID).Int("message_count", len(messages)).Msg("mem_store_upsert_chat_replaced")
		return toChat(*existing), nil
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = provisionalChatTitle
	}
	c := &memChat{
		summary: persistence.ChatSummary{
			ID:                 in.ChatID,
			UserID:             copyUserID(in.UserID),
			Title:              title,
			LastMessagePreview: in.Preview,
			CreatedAt:          now,
			UpdatedAt:          now,
		},
		messages: messages,
	}
	s.chats[in.ChatID] = c
	log.Ctx(ctx).Info().Str("chat_id", in.ChatID).Int("message_count", len(messages)).Msg("mem_store_upsert_chat_created")
	return toChat(*c), nil
}

func (s *memChatStore) GetChat(ctx context.Context, userID *int64, chatID string) (persistence.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[chatID]
	if !ok || !hasAccess(userID, c.summary.UserID) {
		return persistence.Chat{}, persistence.ErrNotFound
	}
	return toChat(*c), nil
}

func (s *memChatStore) ListChats(ctx context.Context, userID *int64) ([]persistence.ChatSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]persistence.ChatSummary, 0, len(s.chats))
	for _, c := range s.chats {
		if !hasAccess(userID, c.summary.UserID) {
			continue
		}
		out = append(out, c.summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *memChatStore) DeleteChat(ctx context.Context, userID *int64, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok || !hasAccess(userID, c.summary.UserID) {
		return persistence.ErrNotFound
	}
	delete(s.chats, chatID)
	return nil
}
