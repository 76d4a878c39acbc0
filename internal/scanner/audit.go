package scanner

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/guardo-ai/guardo/internal/domain"
)

// Auditor records blocked scans for security monitoring. Everything here is
// server-side only: the full category, profile, and matched content go to
// the log and the audit store, never to the client.
type Auditor struct {
	events        domain.SecurityEventRepository // nil means log-only
	inputProfile  string
	outputProfile string
}

func NewAuditor(events domain.SecurityEventRepository, cfg Config) *Auditor {
	return &Auditor{
		events:        events,
		inputProfile:  cfg.InputProfile,
		outputProfile: cfg.OutputProfile,
	}
}

// RecordViolation logs the violation with full context and persists it when
// an audit store is configured. Persistence failures are logged and
// swallowed: auditing never interrupts request handling.
func (a *Auditor) RecordViolation(ctx context.Context, event *domain.SecurityEvent) {
	if event.Profile == "" {
		if event.ScanContext == domain.ScanContextInput {
			event.Profile = a.inputProfile
		} else {
			event.Profile = a.outputProfile
		}
	}

	entry := log.Warn().
		Str("scan_context", string(event.ScanContext)).
		Str("category", event.Category).
		Str("profile", event.Profile).
		Int("chunks", event.ChunkCount).
		Int("content_len", event.ContentLength).
		Str("content", event.Content)
	if event.ConversationID != nil {
		entry = entry.Str("conversation_id", event.ConversationID.String())
	}
	entry.Msg("scanner: security violation")

	if a.events == nil {
		return
	}
	if err := a.events.Record(ctx, event); err != nil {
		log.Error().Err(err).Str("event_id", event.ID.String()).Msg("scanner: failed to persist security event")
	}
}
