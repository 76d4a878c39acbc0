package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guardo-ai/guardo/internal/domain"
)

type KnowledgeRepo struct {
	pool *pgxpool.Pool
}

func NewKnowledgeRepo(pool *pgxpool.Pool) *KnowledgeRepo {
	return &KnowledgeRepo{pool: pool}
}

// Search does full-text keyword search over documents, ranked by relevance.
func (r *KnowledgeRepo) Search(ctx context.Context, query string, limit int) ([]*domain.KnowledgeDocument, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, content, created_at, updated_at
		 FROM knowledge_documents
		 WHERE search_vector @@ plainto_tsquery('english', $1)
		 ORDER BY ts_rank(search_vector, plainto_tsquery('english', $1)) DESC
		 LIMIT $2`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("knowledgeRepo.Search: %w", err)
	}
	defer rows.Close()

	var docs []*domain.KnowledgeDocument
	for rows.Next() {
		var d domain.KnowledgeDocument
		if scanErr := rows.Scan(&d.ID, &d.Title, &d.Content, &d.CreatedAt, &d.UpdatedAt); scanErr != nil {
			return nil, fmt.Errorf("knowledgeRepo.Search: scan: %w", scanErr)
		}
		docs = append(docs, &d)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("knowledgeRepo.Search: %w", rows.Err())
	}

	return docs, nil
}

func (r *KnowledgeRepo) Upsert(ctx context.Context, doc *domain.KnowledgeDocument) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO knowledge_documents (id, title, content, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET title = EXCLUDED.title, content = EXCLUDED.content, updated_at = EXCLUDED.updated_at`,
		doc.ID, doc.Title, doc.Content, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("knowledgeRepo.Upsert: %w", err)
	}

	return nil
}
