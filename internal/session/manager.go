// Package session manages conversation history. The chat pipeline calls it
// at outcome points only: the user turn once an outcome is known, the
// assistant turn only when the final scan allowed the response.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/guardo-ai/guardo/internal/domain"
)

// Manager is the history manager backing stateful conversations.
type Manager struct {
	conversations domain.ConversationRepository
}

func NewManager(conversations domain.ConversationRepository) *Manager {
	return &Manager{conversations: conversations}
}

// GetOrCreate returns the conversation, creating it on first use.
func (m *Manager) GetOrCreate(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	conv, err := m.conversations.GetByID(ctx, id)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("session.Manager.GetOrCreate: %w", err)
	}

	now := time.Now()
	conv = &domain.Conversation{ID: id, CreatedAt: now, UpdatedAt: now}
	if createErr := m.conversations.Create(ctx, conv); createErr != nil {
		// Lost a race with a concurrent request for the same conversation.
		if errors.Is(createErr, domain.ErrConflict) {
			return m.conversations.GetByID(ctx, id)
		}
		return nil, fmt.Errorf("session.Manager.GetOrCreate: %w", createErr)
	}
	return conv, nil
}

// AppendUserTurn records a user turn without an assistant turn. Used when
// the response was blocked or failed: the attempt is kept, the content is not.
func (m *Manager) AppendUserTurn(ctx context.Context, conversationID uuid.UUID, user string) error {
	e := &domain.Exchange{
		ID:             uuid.New(),
		ConversationID: conversationID,
		User:           user,
		CreatedAt:      time.Now(),
	}
	if err := m.conversations.AppendExchange(ctx, e); err != nil {
		return fmt.Errorf("session.Manager.AppendUserTurn: %w", err)
	}
	return nil
}

// AppendExchange records a complete user/assistant pair.
func (m *Manager) AppendExchange(ctx context.Context, conversationID uuid.UUID, user, assistant string) error {
	e := &domain.Exchange{
		ID:             uuid.New(),
		ConversationID: conversationID,
		User:           user,
		Assistant:      &assistant,
		CreatedAt:      time.Now(),
	}
	if err := m.conversations.AppendExchange(ctx, e); err != nil {
		return fmt.Errorf("session.Manager.AppendExchange: %w", err)
	}
	return nil
}

// History returns the ordered exchanges of a conversation.
func (m *Manager) History(ctx context.Context, conversationID uuid.UUID) ([]*domain.Exchange, error) {
	exchanges, err := m.conversations.ListExchanges(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("session.Manager.History: %w", err)
	}
	return exchanges, nil
}

// Clear removes all exchanges while keeping the conversation itself.
func (m *Manager) Clear(ctx context.Context, conversationID uuid.UUID) error {
	if err := m.conversations.ClearExchanges(ctx, conversationID); err != nil {
		return fmt.Errorf("session.Manager.Clear: %w", err)
	}
	return nil
}

// Delete removes a conversation and its exchanges.
func (m *Manager) Delete(ctx context.Context, conversationID uuid.UUID) error {
	if err := m.conversations.Delete(ctx, conversationID); err != nil {
		return fmt.Errorf("session.Manager.Delete: %w", err)
	}
	return nil
}

// List returns known conversations, newest first.
func (m *Manager) List(ctx context.Context, limit, offset int) ([]*domain.Conversation, error) {
	conversations, err := m.conversations.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("session.Manager.List: %w", err)
	}
	return conversations, nil
}
