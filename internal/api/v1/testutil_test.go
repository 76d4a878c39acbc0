package v1_test

import (
	"context"

	"github.com/google/uuid"

	"github.com/guardo-ai/guardo/internal/chat"
	"github.com/guardo-ai/guardo/internal/domain"
	"github.com/guardo-ai/guardo/internal/scanner"
)

// ---------------------------------------------------------------------------
// Mock SessionService
// ---------------------------------------------------------------------------

type mockSessions struct {
	getOrCreateFunc func(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	historyFunc     func(ctx context.Context, id uuid.UUID) ([]*domain.Exchange, error)
	listFunc        func(ctx context.Context, limit, offset int) ([]*domain.Conversation, error)
	clearFunc       func(ctx context.Context, id uuid.UUID) error
	deleteFunc      func(ctx context.Context, id uuid.UUID) error
}

func (m *mockSessions) GetOrCreate(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	return m.getOrCreateFunc(ctx, id)
}

func (m *mockSessions) History(ctx context.Context, id uuid.UUID) ([]*domain.Exchange, error) {
	return m.historyFunc(ctx, id)
}

func (m *mockSessions) List(ctx context.Context, limit, offset int) ([]*domain.Conversation, error) {
	return m.listFunc(ctx, limit, offset)
}

func (m *mockSessions) Clear(ctx context.Context, id uuid.UUID) error {
	return m.clearFunc(ctx, id)
}

func (m *mockSessions) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteFunc(ctx, id)
}

// newMockSessions returns a permissive session service: conversations always
// exist with empty history. Tests override what they assert on.
func newMockSessions() *mockSessions {
	return &mockSessions{
		getOrCreateFunc: func(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
			return &domain.Conversation{ID: id}, nil
		},
		historyFunc: func(context.Context, uuid.UUID) ([]*domain.Exchange, error) {
			return nil, nil
		},
	}
}

// ---------------------------------------------------------------------------
// Mock InputScanner
// ---------------------------------------------------------------------------

type mockInputScanner struct {
	scanInputFunc func(ctx context.Context, text string) (scanner.Verdict, error)
}

func (m *mockInputScanner) ScanInput(ctx context.Context, text string) (scanner.Verdict, error) {
	return m.scanInputFunc(ctx, text)
}

// ---------------------------------------------------------------------------
// Mock ChatRunner
// ---------------------------------------------------------------------------

type mockRunner struct {
	runFunc func(ctx context.Context, source chat.EventSource, emitter chat.Emitter, req chat.Request) (chat.Result, error)
}

func (m *mockRunner) Run(ctx context.Context, source chat.EventSource, emitter chat.Emitter, req chat.Request) (chat.Result, error) {
	return m.runFunc(ctx, source, emitter, req)
}

// ---------------------------------------------------------------------------
// Stub EventSource and auditor
// ---------------------------------------------------------------------------

type nopSource struct{}

func (nopSource) Stream(context.Context, string, []*domain.Exchange) (<-chan chat.GenerationEvent, error) {
	ch := make(chan chat.GenerationEvent)
	close(ch)
	return ch, nil
}

type captureAuditor struct {
	events []*domain.SecurityEvent
}

func (a *captureAuditor) RecordViolation(_ context.Context, event *domain.SecurityEvent) {
	a.events = append(a.events, event)
}
