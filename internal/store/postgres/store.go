package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guardo-ai/guardo/internal/domain"
)

type Store struct {
	pool           *pgxpool.Pool
	conversations  *ConversationRepo
	securityEvents *SecurityEventRepo
	knowledge      *KnowledgeRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:           pool,
		conversations:  NewConversationRepo(pool),
		securityEvents: NewSecurityEventRepo(pool),
		knowledge:      NewKnowledgeRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Conversations() domain.ConversationRepository   { return s.conversations }
func (s *Store) SecurityEvents() domain.SecurityEventRepository { return s.securityEvents }
func (s *Store) Knowledge() domain.KnowledgeRepository          { return s.knowledge }
