package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/guardo-ai/guardo/internal/chat"
	"github.com/guardo-ai/guardo/internal/domain"
	"github.com/guardo-ai/guardo/internal/scanner"
)

// SessionService abstracts conversation lifecycle operations for handler
// testing. *session.Manager satisfies this interface.
type SessionService interface {
	GetOrCreate(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	History(ctx context.Context, id uuid.UUID) ([]*domain.Exchange, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Conversation, error)
	Clear(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// InputScanner classifies the raw user prompt before generation starts.
// *scanner.Client satisfies this interface.
type InputScanner interface {
	ScanInput(ctx context.Context, text string) (scanner.Verdict, error)
}

// ChatRunner runs the chat pipeline. *chat.Pipeline satisfies this interface.
type ChatRunner interface {
	Run(ctx context.Context, source chat.EventSource, emitter chat.Emitter, req chat.Request) (chat.Result, error)
}
