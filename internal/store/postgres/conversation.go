package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guardo-ai/guardo/internal/domain"
)

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO conversations (id, created_at, updated_at)
		 VALUES ($1, $2, $3)`,
		c.ID, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("conversationRepo.Create: %w", domain.ErrConflict)
		}
		return fmt.Errorf("conversationRepo.Create: %w", err)
	}

	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	var c domain.Conversation

	err := r.pool.QueryRow(ctx,
		`SELECT id, created_at, updated_at FROM conversations WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversationRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.GetByID: %w", err)
	}

	return &c, nil
}

func (r *ConversationRepo) List(ctx context.Context, limit, offset int) ([]*domain.Conversation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, created_at, updated_at
		 FROM conversations
		 ORDER BY updated_at DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.List: %w", err)
	}
	defer rows.Close()

	var conversations []*domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if scanErr := rows.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); scanErr != nil {
			return nil, fmt.Errorf("conversationRepo.List: scan: %w", scanErr)
		}
		conversations = append(conversations, &c)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("conversationRepo.List: %w", rows.Err())
	}

	return conversations, nil
}

func (r *ConversationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("conversationRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversationRepo.Delete: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *ConversationRepo) AppendExchange(ctx context.Context, e *domain.Exchange) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exchanges (id, conversation_id, user_turn, assistant_turn, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.ConversationID, e.User, e.Assistant, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("conversationRepo.AppendExchange: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE conversations SET updated_at = $1 WHERE id = $2`,
		e.CreatedAt, e.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("conversationRepo.AppendExchange: touch conversation: %w", err)
	}

	return nil
}

func (r *ConversationRepo) ListExchanges(ctx context.Context, conversationID uuid.UUID) ([]*domain.Exchange, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, conversation_id, user_turn, assistant_turn, created_at
		 FROM exchanges
		 WHERE conversation_id = $1
		 ORDER BY created_at`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.ListExchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []*domain.Exchange
	for rows.Next() {
		var e domain.Exchange
		if scanErr := rows.Scan(&e.ID, &e.ConversationID, &e.User, &e.Assistant, &e.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("conversationRepo.ListExchanges: scan: %w", scanErr)
		}
		exchanges = append(exchanges, &e)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("conversationRepo.ListExchanges: %w", rows.Err())
	}

	return exchanges, nil
}

func (r *ConversationRepo) ClearExchanges(ctx context.Context, conversationID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM exchanges WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("conversationRepo.ClearExchanges: %w", err)
	}

	return nil
}
