// Package stream serves the SSE chat endpoint: one request in, an ordered
// stream of wire protocol events out. Retraction on a security violation is
// client-side only; bytes already flushed cannot be recalled.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/guardo-ai/guardo/internal/chat"
	"github.com/guardo-ai/guardo/internal/domain"
	"github.com/guardo-ai/guardo/internal/scanner"
)

const blockedRequestMessage = "Your request couldn't be processed due to our content policy."

// InputScanner classifies the raw user prompt before generation starts.
type InputScanner interface {
	ScanInput(ctx context.Context, text string) (scanner.Verdict, error)
}

// SessionStore provides the conversation lookups the handler needs before a
// run; the pipeline itself handles appends.
type SessionStore interface {
	GetOrCreate(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	History(ctx context.Context, id uuid.UUID) ([]*domain.Exchange, error)
}

// Publisher tees wire events to observers (Redis pub/sub). Optional.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Runner runs the chat pipeline. *chat.Pipeline satisfies this.
type Runner interface {
	Run(ctx context.Context, source chat.EventSource, emitter chat.Emitter, req chat.Request) (chat.Result, error)
}

// Deps wires the handler's collaborators. Scanner and Audit may be nil when
// scanning is disabled; Publisher and Sessions are optional.
type Deps struct {
	Pipeline    Runner
	Source      chat.EventSource
	Sessions    SessionStore
	Scanner     InputScanner
	Audit       chat.ViolationAuditor
	Publisher   Publisher
	ScanEnabled bool
}

// Handler serves POST /api/v1/chat/stream.
type Handler struct {
	deps Deps
}

func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// ChatStreamRequest is the request body of the streaming chat endpoint.
type ChatStreamRequest struct {
	Message        string  `json:"message"`
	ConversationID *string `json:"conversation_id,omitempty"`
	Stateless      bool    `json:"stateless,omitempty"`
}

// ServeChatStream handles one streaming chat request. The input scan runs
// before the SSE stream opens: a blocked prompt gets a plain 403 and never
// enters the streaming protocol.
func (h *Handler) ServeChatStream(w http.ResponseWriter, r *http.Request) {
	var req ChatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, `{"error":"message is required"}`, http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	conversationID, ok := h.resolveConversation(req)
	if !ok {
		http.Error(w, `{"error":"invalid conversation_id"}`, http.StatusBadRequest)
		return
	}

	if !h.scanInput(ctx, req.Message, conversationID) {
		http.Error(w, `{"error":"`+blockedRequestMessage+`"}`, http.StatusForbidden)
		return
	}

	var history []*domain.Exchange
	if conversationID != nil {
		if _, err := h.deps.Sessions.GetOrCreate(ctx, *conversationID); err != nil {
			log.Error().Err(err).Msg("stream: failed to open conversation")
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		var err error
		history, err = h.deps.Sessions.History(ctx, *conversationID)
		if err != nil {
			log.Error().Err(err).Msg("stream: failed to load history")
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	emitter := h.newEmitter(w, flusher, conversationID)

	result, err := h.deps.Pipeline.Run(ctx, h.deps.Source, emitter, chat.Request{
		ConversationID: conversationID,
		Query:          req.Message,
		History:        history,
	})
	if err != nil {
		// Client gone or write failure; nothing more can reach it.
		log.Debug().Err(err).Msg("stream: run ended early")
		return
	}

	log.Info().
		Str("outcome", string(result.Outcome)).
		Int("answer_len", len(result.Answer)).
		Msg("stream: chat completed")
}

// resolveConversation picks the conversation ID for this request: nil for
// stateless mode, a fresh UUID when the client did not send one.
func (h *Handler) resolveConversation(req ChatStreamRequest) (*uuid.UUID, bool) {
	if req.Stateless || h.deps.Sessions == nil {
		return nil, true
	}
	if req.ConversationID == nil || *req.ConversationID == "" {
		id := uuid.New()
		return &id, true
	}
	id, err := uuid.Parse(*req.ConversationID)
	if err != nil {
		return nil, false
	}
	return &id, true
}

// scanInput returns false when the prompt is blocked. Scanner failures fail
// open, same as output scans.
func (h *Handler) scanInput(ctx context.Context, message string, conversationID *uuid.UUID) bool {
	if !h.deps.ScanEnabled || h.deps.Scanner == nil {
		return true
	}

	verdict, err := h.deps.Scanner.ScanInput(ctx, message)
	if err != nil {
		log.Warn().Err(err).Str("scan_context", "input").Int("text_len", len(message)).
			Msg("stream: input scan unavailable, continuing fail-open")
		return true
	}
	if verdict.Action != scanner.ActionBlock {
		return true
	}

	if h.deps.Audit != nil {
		h.deps.Audit.RecordViolation(ctx, &domain.SecurityEvent{
			ID:             uuid.New(),
			ConversationID: conversationID,
			ScanContext:    domain.ScanContextInput,
			Category:       verdict.Category,
			ContentLength:  len(message),
			Content:        message,
			CreatedAt:      time.Now(),
		})
	}
	return false
}
