package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// KnowledgeDocument is one searchable knowledge-base entry.
type KnowledgeDocument struct {
	ID        uuid.UUID
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// KnowledgeRepository provides keyword search over the knowledge base.
type KnowledgeRepository interface {
	Search(ctx context.Context, query string, limit int) ([]*KnowledgeDocument, error)
	Upsert(ctx context.Context, doc *KnowledgeDocument) error
}
