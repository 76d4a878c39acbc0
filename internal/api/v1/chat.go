package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/guardo-ai/guardo/internal/chat"
	"github.com/guardo-ai/guardo/internal/domain"
	"github.com/guardo-ai/guardo/internal/scanner"
)

// User-facing refusal messages. Generic on purpose: scan categories and
// matched content never reach the client.
const (
	blockedRequestMessage  = "Your request couldn't be processed due to our content policy."
	blockedResponseMessage = "Response blocked due to content policy"
)

// ChatDeps wires the non-streaming chat handler's collaborators. Scanner and
// Audit may be nil when scanning is disabled; Sessions may be nil for
// stateless-only deployments.
type ChatDeps struct {
	Pipeline    ChatRunner
	Source      chat.EventSource
	Sessions    SessionService
	Scanner     InputScanner
	Audit       chat.ViolationAuditor
	ScanEnabled bool
}

type ChatInput struct {
	Body struct {
		Message        string     `json:"message" minLength:"1" maxLength:"8000" doc:"User message"`
		ConversationID *uuid.UUID `json:"conversation_id,omitempty" doc:"Existing conversation to continue; omit to start a new one"`
		Stateless      bool       `json:"stateless,omitempty" doc:"Process without persisting any history"`
	}
}

type ChatOutput struct {
	Body struct {
		Response       string     `json:"response" doc:"Complete assistant response"`
		ConversationID *uuid.UUID `json:"conversation_id,omitempty" doc:"Conversation the exchange was recorded in"`
	}
}

func RegisterChatRoutes(api huma.API, deps ChatDeps) {
	huma.Register(api, huma.Operation{
		OperationID: "chat",
		Method:      http.MethodPost,
		Path:        "/chat",
		Summary:     "Send a chat message and receive the complete response",
		Tags:        []string{"Chat"},
	}, func(ctx context.Context, input *ChatInput) (*ChatOutput, error) {
		var conversationID *uuid.UUID
		if !input.Body.Stateless && deps.Sessions != nil {
			if input.Body.ConversationID != nil {
				conversationID = input.Body.ConversationID
			} else {
				id := uuid.New()
				conversationID = &id
			}
		}

		if blocked := scanInput(ctx, deps, input.Body.Message, conversationID); blocked {
			return nil, huma.Error403Forbidden(blockedRequestMessage)
		}

		var history []*domain.Exchange
		if conversationID != nil {
			if _, err := deps.Sessions.GetOrCreate(ctx, *conversationID); err != nil {
				return nil, huma.Error500InternalServerError("failed to open conversation", err)
			}
			var err error
			history, err = deps.Sessions.History(ctx, *conversationID)
			if err != nil {
				return nil, huma.Error500InternalServerError("failed to load history", err)
			}
		}

		result, err := deps.Pipeline.Run(ctx, deps.Source, chat.DiscardEmitter{}, chat.Request{
			ConversationID: conversationID,
			Query:          input.Body.Message,
			History:        history,
		})
		if err != nil {
			return nil, huma.Error500InternalServerError("chat failed", err)
		}

		switch result.Outcome {
		case chat.OutcomeDone:
			out := &ChatOutput{}
			out.Body.Response = result.Answer
			out.Body.ConversationID = conversationID
			return out, nil
		case chat.OutcomeBlocked:
			return nil, huma.Error403Forbidden(blockedResponseMessage)
		default:
			return nil, huma.Error500InternalServerError("failed to generate response")
		}
	})
}

// scanInput returns true when the prompt must be refused. Scanner failures
// fail open, same as output scans.
func scanInput(ctx context.Context, deps ChatDeps, message string, conversationID *uuid.UUID) bool {
	if !deps.ScanEnabled || deps.Scanner == nil {
		return false
	}

	verdict, err := deps.Scanner.ScanInput(ctx, message)
	if err != nil {
		log.Warn().Err(err).Str("scan_context", "input").Int("text_len", len(message)).
			Msg("api: input scan unavailable, continuing fail-open")
		return false
	}
	if verdict.Action != scanner.ActionBlock {
		return false
	}

	if deps.Audit != nil {
		deps.Audit.RecordViolation(ctx, &domain.SecurityEvent{
			ID:             uuid.New(),
			ConversationID: conversationID,
			ScanContext:    domain.ScanContextInput,
			Category:       verdict.Category,
			ContentLength:  len(message),
			Content:        message,
			CreatedAt:      time.Now(),
		})
	}
	return true
}
