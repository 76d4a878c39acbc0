package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ScanContext identifies which checkpoint of the pipeline produced a scan.
type ScanContext string

const (
	ScanContextInput       ScanContext = "input"
	ScanContextProgressive ScanContext = "progressive"
	ScanContextFinal       ScanContext = "final"
)

// SecurityEvent is a server-side audit record of a blocked scan. It carries
// the classification category and the matched content, neither of which is
// ever returned to the client.
type SecurityEvent struct {
	ID             uuid.UUID
	ConversationID *uuid.UUID // nil for stateless requests
	ScanContext    ScanContext
	Profile        string
	Category       string
	ChunkCount     int
	ContentLength  int
	Content        string
	CreatedAt      time.Time
}

// SecurityEventRepository is the audit sink for blocked scans.
type SecurityEventRepository interface {
	Record(ctx context.Context, e *SecurityEvent) error
	List(ctx context.Context, limit, offset int) ([]*SecurityEvent, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]*SecurityEvent, error)
}
