package agentd

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"deepresearch/internal/llm"
	"deepresearch/internal/persistence"
	"deepresearch/internal/ratelimit"
	"deepresearch/internal/research"
)

const requestBudget = 5 * time.Minute

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type postChatRequest struct {
	ID       string                 `json:"id,omitempty"`
	Messages []wireMessage          `json:"messages"`
	Location *research.UserLocation `json:"location,omitempty"`
}

type getChatResponse struct {
	Messages []wireMessage `json:"messages"`
}

type chatListEntry struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Preview string `json:"preview,omitempty"`
}

type listChatsResponse struct {
	Chats []chatListEntry `json:"chats"`
}

type deleteChatRequest struct {
	ChatID string `json:"chatId"`
}

func (a *app) chatHandler(w http.ResponseWriter, r *http.Request) {
	setChatCORSHeaders(w, r, "GET, POST, DELETE, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch r.Method {
	case http.MethodPost:
		a.handlePostChat(w, r)
	case http.MethodGet:
		a.handleGetChat(w, r)
	case http.MethodDelete:
		a.handleDeleteChat(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *app) rateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		KeyPrefix:   "chat_api",
		MaxRequests: valueOr(a.cfg.RateLimit.Requests, 20),
		WindowMS:    int64(valueOr(a.cfg.RateLimit.Window, 60)) * 1000,
		MaxRetries:  3,
	}
}

func valueOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// handlePostChat implements the request handler contract of spec.md §4.12:
// authenticate, rate-limit, resolve chat identity, run the research loop
// while streaming events, then persist the completed turn.
func (a *app) handlePostChat(w http.ResponseWriter, r *http.Request) {
	userID, err := a.requireUserID(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	rlCfg := a.rateLimitConfig()
	result, err := a.rateLimiter.Check(ctx, rlCfg)
	if err == nil && !result.Allowed {
		if ok, _ := a.rateLimiter.Retry(ctx, rlCfg); !ok {
			writeRateLimitHeaders(w, result, rlCfg)
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}
	if recorded, err := a.rateLimiter.Record(ctx, rlCfg); err == nil {
		writeRateLimitHeaders(w, recorded, rlCfg)
	}

	var req postChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		http.Error(w, "messages required", http.StatusBadRequest)
		return
	}

	chatID := r.URL.Query().Get("id")
	if chatID == "" {
		chatID = req.ID
	}
	isNew := false
	var priorChat persistence.Chat
	if chatID == "" {
		chatID = uuid.NewString()
		isNew = true
	} else if existing, err := a.chatStore.GetChat(ctx, userID, chatID); err != nil {
		isNew = true
	} else {
		priorChat = existing
	}

	conversation := make([]llm.Message, 0, len(priorChat.Messages)+len(req.Messages))
	for _, m := range priorChat.Messages {
		conversation = append(conversation, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}
	for _, m := range req.Messages {
		conversation = append(conversation, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}

	sw, ok := newSSEWriter(w)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	defer sw.Close()
	agw := &aggregatingWriter{inner: sw}

	var titleCh chan string
	if isNew {
		if err := agw.Write(research.Part{Type: research.PartNewChatCreated, ChatID: chatID}); err != nil {
			return
		}

		titleCh = make(chan string, 1)
		latestMsg := req.Messages[len(req.Messages)-1].Content
		go func() {
			title, err := a.generateChatTitle(context.Background(), latestMsg)
			if err != nil {
				titleCh <- ""
				return
			}
			titleCh <- title
		}()
	}

	runCtx, cancel := ctxFromRequest(r, requestBudget)
	defer cancel()

	sc := research.NewSystemContext(conversation, req.Location, a.cfg.Agent.MaxSteps)
	loop := a.newResearchLoop()
	if err := loop.Run(runCtx, sc, agw); err != nil {
		log.Ctx(runCtx).Warn().Err(err).Msg("research_loop_error")
	}

	title := priorChat.Title
	if isNew {
		title = ""
		select {
		case title = <-titleCh:
		case <-time.After(chatTitleTimeout):
		}
	}

	a.persistChatTurn(context.Background(), userID, chatID, priorChat.Messages, req.Messages, agw.Text(), title)
}

func (a *app) newResearchLoop() *research.Loop {
	pipeline := &research.Pipeline{
		Search:      a.searcher,
		Fetcher:     a.fetcher,
		Gateway:     a.gateway,
		Cache:       a.resultCache,
		ResultCount: valueOr(a.cfg.Search.ResultCount, 3),
		MaxPages:    valueOr(a.cfg.Fetch.MaxPages, 6),
		Concurrency: valueOr(a.cfg.Fetch.Concurrency, 4),
	}
	return &research.Loop{
		Guardrail: &research.Guardrail{Gateway: a.gateway},
		Clarifier: &research.Clarifier{Gateway: a.gateway},
		Planner:   &research.Planner{Gateway: a.gateway},
		Rewriter:  &research.QueryRewriter{Gateway: a.gateway},
		Pipeline:  pipeline,
		Answerer:  &research.Answerer{Gateway: a.gateway},
	}
}

// persistChatTurn implements the §4.12 persistence step: replace the full
// message list with prior + this turn's messages via a single upsert_chat
// call, carrying the generated title for new chats.
func (a *app) persistChatTurn(ctx context.Context, userID *int64, chatID string, priorMessages []persistence.ChatMessage, userMsgs []wireMessage, assistantText, title string) {
	messages := make([]persistence.ChatMessage, 0, len(priorMessages)+len(userMsgs)+1)
	messages = append(messages, priorMessages...)
	now := time.Now().UTC()
	for i, m := range userMsgs {
		messages = append(messages, persistence.ChatMessage{
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		})
	}
	if strings.TrimSpace(assistantText) != "" {
		messages = append(messages, persistence.ChatMessage{
			Role:      string(llm.RoleAssistant),
			Content:   assistantText,
			CreatedAt: now.Add(time.Duration(len(userMsgs)+1) * time.Millisecond),
		})
	}
	if len(messages) == len(priorMessages) {
		return
	}

	preview := previewSnippet(assistantText)
	if preview == "" && len(userMsgs) > 0 {
		preview = previewSnippet(userMsgs[len(userMsgs)-1].Content)
	}

	_, err := a.chatStore.UpsertChat(ctx, persistence.UpsertChatInput{
		UserID:   userID,
		ChatID:   chatID,
		Title:    title,
		Messages: messages,
		Preview:  preview,
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("chat_id", chatID).Msg("chat_persist_failed")
	}
}

func (a *app) handleGetChat(w http.ResponseWriter, r *http.Request) {
	userID, err := a.requireUserID(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	chatID := r.URL.Query().Get("id")
	if chatID == "" {
		a.handleListChats(w, r, userID)
		return
	}

	chat, err := a.chatStore.GetChat(r.Context(), userID, chatID)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	resp := getChatResponse{Messages: make([]wireMessage, 0, len(chat.Messages))}
	for _, m := range chat.Messages {
		resp.Messages = append(resp.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleListChats implements the list_chats leg of §4.10: GET /chat with no
// id param lists every chat the caller owns, newest first.
func (a *app) handleListChats(w http.ResponseWriter, r *http.Request, userID *int64) {
	chats, err := a.chatStore.ListChats(r.Context(), userID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	resp := listChatsResponse{Chats: make([]chatListEntry, 0, len(chats))}
	for _, c := range chats {
		resp.Chats = append(resp.Chats, chatListEntry{ID: c.ID, Title: c.Title, Preview: c.LastMessagePreview})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (a *app) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	userID, err := a.requireUserID(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req deleteChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChatID == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// not_found_or_denied maps to 404 externally either way, to avoid
	// leaking which chat ids exist to callers that don't own them.
	if err := a.chatStore.DeleteChat(r.Context(), userID, req.ChatID); err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeRateLimitHeaders(w http.ResponseWriter, res ratelimit.Result, cfg ratelimit.Config) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(res.ResetTime.Unix())))
}
