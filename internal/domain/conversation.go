package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Conversation is one chat session between a user and the assistant.
type Conversation struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Exchange is one user turn and, when the response passed the final safety
// scan, the paired assistant turn. Assistant is nil for blocked or failed
// responses: the user turn is still recorded, the blocked content never is.
type Exchange struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	User           string
	Assistant      *string
	CreatedAt      time.Time
}

// Complete reports whether the exchange carries an assistant turn.
func (e *Exchange) Complete() bool {
	return e.Assistant != nil
}

// ConversationRepository stores conversations and their ordered exchanges.
type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	List(ctx context.Context, limit, offset int) ([]*Conversation, error)
	Delete(ctx context.Context, id uuid.UUID) error

	AppendExchange(ctx context.Context, e *Exchange) error
	ListExchanges(ctx context.Context, conversationID uuid.UUID) ([]*Exchange, error)
	ClearExchanges(ctx context.Context, conversationID uuid.UUID) error
}
