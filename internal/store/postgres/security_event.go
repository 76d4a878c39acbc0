package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guardo-ai/guardo/internal/domain"
)

type SecurityEventRepo struct {
	pool *pgxpool.Pool
}

func NewSecurityEventRepo(pool *pgxpool.Pool) *SecurityEventRepo {
	return &SecurityEventRepo{pool: pool}
}

func (r *SecurityEventRepo) Record(ctx context.Context, e *domain.SecurityEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO security_events (id, conversation_id, scan_context, profile, category, chunk_count, content_length, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.ConversationID, e.ScanContext, e.Profile, e.Category,
		e.ChunkCount, e.ContentLength, e.Content, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("securityEventRepo.Record: %w", err)
	}

	return nil
}

func (r *SecurityEventRepo) List(ctx context.Context, limit, offset int) ([]*domain.SecurityEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, conversation_id, scan_context, profile, category, chunk_count, content_length, content, created_at
		 FROM security_events
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("securityEventRepo.List: %w", err)
	}
	defer rows.Close()

	return scanSecurityEvents(rows, "securityEventRepo.List")
}

func (r *SecurityEventRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]*domain.SecurityEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, conversation_id, scan_context, profile, category, chunk_count, content_length, content, created_at
		 FROM security_events
		 WHERE conversation_id = $1
		 ORDER BY created_at`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("securityEventRepo.ListByConversation: %w", err)
	}
	defer rows.Close()

	return scanSecurityEvents(rows, "securityEventRepo.ListByConversation")
}

func scanSecurityEvents(rows pgx.Rows, op string) ([]*domain.SecurityEvent, error) {
	var events []*domain.SecurityEvent
	for rows.Next() {
		var e domain.SecurityEvent
		err := rows.Scan(
			&e.ID, &e.ConversationID, &e.ScanContext, &e.Profile, &e.Category,
			&e.ChunkCount, &e.ContentLength, &e.Content, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		events = append(events, &e)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return events, nil
}
