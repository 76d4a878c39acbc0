package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/guardo-ai/guardo/internal/domain"
	"github.com/guardo-ai/guardo/internal/scanner"
)

// ErrStreamClosed is returned when an event is emitted after a terminal event.
var ErrStreamClosed = errors.New("chat: stream already closed")

// User-facing terminal messages. Deliberately generic: the scan category and
// matched content stay server-side only.
const (
	violationMessage       = "Response blocked due to content policy"
	generationErrorMessage = "An error occurred while generating the response"
)

const defaultScanInterval = 50

// OutputScanner classifies accumulated response text. An error return means
// the scanner was unavailable or inconclusive; the pipeline fails open.
type OutputScanner interface {
	ScanOutput(ctx context.Context, text string) (scanner.Verdict, error)
}

// SessionManager records accepted exchanges. The pipeline calls it exactly
// once per response: the user turn alone when the response was blocked or
// failed, the full exchange when the final verdict allowed it.
type SessionManager interface {
	AppendUserTurn(ctx context.Context, conversationID uuid.UUID, user string) error
	AppendExchange(ctx context.Context, conversationID uuid.UUID, user, assistant string) error
}

// ViolationAuditor receives the full server-side record of a blocked scan.
type ViolationAuditor interface {
	RecordViolation(ctx context.Context, event *domain.SecurityEvent)
}

// Config controls the scan cadence.
type Config struct {
	ScanEnabled  bool
	ScanInterval int // text chunks between progressive scans; >= 1
}

// Outcome is the terminal state of one pipeline run.
type Outcome string

const (
	OutcomeDone      Outcome = "done"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Request describes one user turn to process.
type Request struct {
	ConversationID *uuid.UUID // nil in stateless mode
	Query          string
	History        []*domain.Exchange
}

// Result reports how a run ended. Answer is the full accumulated response
// text and is only meaningful when Outcome is OutcomeDone.
type Result struct {
	Outcome Outcome
	Answer  string
}

// Pipeline consumes generation events for one response, multiplexes them
// onto the wire protocol, and guards the token stream with progressive and
// final safety scans.
type Pipeline struct {
	scanner  OutputScanner
	sessions SessionManager
	audit    ViolationAuditor
	cfg      Config
}

// NewPipeline creates a pipeline. sessions and audit may be nil (stateless
// deployments, tests); scans are skipped entirely when cfg.ScanEnabled is
// false. A non-positive ScanInterval falls back to the default of 50.
func NewPipeline(sc OutputScanner, sessions SessionManager, audit ViolationAuditor, cfg Config) *Pipeline {
	if cfg.ScanInterval < 1 {
		cfg.ScanInterval = defaultScanInterval
	}
	return &Pipeline{scanner: sc, sessions: sessions, audit: audit, cfg: cfg}
}

// run tracks per-response emission state. Once a terminal event has been
// emitted the stream is closed and nothing else may go out.
type run struct {
	emitter Emitter
	closed  bool
}

func (r *run) emit(ctx context.Context, event StreamEvent) error {
	if r.closed {
		return ErrStreamClosed
	}
	if event.Type.Terminal() {
		r.closed = true
	}
	if err := r.emitter.Emit(ctx, event); err != nil {
		return fmt.Errorf("chat.Pipeline: emit %s: %w", event.Type, err)
	}
	return nil
}

// Run processes one user turn end to end: emits start, forwards generation
// events in order, schedules progressive scans, performs the mandatory final
// scan, and finishes with exactly one terminal event.
//
// Tokens are emitted before their triggering scan completes; brief exposure
// bounded by the scan interval is accepted, and a block verdict retracts
// already-rendered content client-side only.
func (p *Pipeline) Run(ctx context.Context, source EventSource, emitter Emitter, req Request) (Result, error) {
	r := &run{emitter: emitter}

	var convID *string
	if req.ConversationID != nil {
		s := req.ConversationID.String()
		convID = &s
	}

	if err := r.emit(ctx, StreamEvent{Type: StreamEventStart, ConversationID: convID}); err != nil {
		return Result{Outcome: OutcomeCancelled}, err
	}

	// The derived context releases the source as soon as the run ends,
	// whether by block, error, or client disconnect.
	srcCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := source.Stream(srcCtx, req.Query, req.History)
	if err != nil {
		log.Error().Err(err).Msg("chat: event source failed to start")
		p.recordUserTurn(ctx, req)
		if emitErr := r.emit(ctx, StreamEvent{Type: StreamEventError, Error: generationErrorMessage}); emitErr != nil {
			return Result{Outcome: OutcomeFailed}, emitErr
		}
		return Result{Outcome: OutcomeFailed}, nil
	}

	var acc Accumulator

	for {
		select {
		case <-ctx.Done():
			// Client disconnect: stop consuming, release the source, emit
			// nothing (the transport is gone). Not an error outcome.
			return Result{Outcome: OutcomeCancelled}, fmt.Errorf("chat.Pipeline.Run: %w", ctx.Err())

		case event, ok := <-events:
			if !ok {
				return p.finish(ctx, r, req, &acc)
			}

			res, done, err := p.handleEvent(ctx, r, req, &acc, event)
			if done || err != nil {
				return res, err
			}
		}
	}
}

// handleEvent processes one generation event. done is true when the run
// reached a terminal state and consumption must stop.
func (p *Pipeline) handleEvent(ctx context.Context, r *run, req Request, acc *Accumulator, event GenerationEvent) (Result, bool, error) {
	switch event.Type {
	case EventTextToken:
		acc.Append(event.Content)
		if err := r.emit(ctx, StreamEvent{Type: StreamEventToken, Content: event.Content}); err != nil {
			return Result{Outcome: OutcomeCancelled}, true, err
		}

		if p.cfg.ScanEnabled && acc.TokenCount()%p.cfg.ScanInterval == 0 {
			verdict := p.scanOutput(ctx, acc, domain.ScanContextProgressive)
			if verdict.Action == scanner.ActionBlock {
				res, err := p.block(ctx, r, req, acc, domain.ScanContextProgressive, verdict.Category)
				return res, true, err
			}
		}

	case EventToolCall:
		if event.ToolName == "" {
			// Malformed upstream event; drop without forwarding.
			log.Debug().Msg("chat: dropping tool call with empty name")
			return Result{}, false, nil
		}
		if err := r.emit(ctx, StreamEvent{Type: StreamEventToolCall, Tool: event.ToolName, Args: event.ToolArgs}); err != nil {
			return Result{Outcome: OutcomeCancelled}, true, err
		}

	case EventToolResult:
		if err := r.emit(ctx, StreamEvent{Type: StreamEventToolResult, ToolCallID: event.ToolCallID, Result: event.ToolResult}); err != nil {
			return Result{Outcome: OutcomeCancelled}, true, err
		}

	case EventRetrieval:
		if err := r.emit(ctx, StreamEvent{Type: StreamEventKBSearch, Message: event.Message}); err != nil {
			return Result{Outcome: OutcomeCancelled}, true, err
		}

	case EventError:
		log.Error().Err(event.Err).Msg("chat: generation failed mid-stream")
		p.recordUserTurn(ctx, req)
		if err := r.emit(ctx, StreamEvent{Type: StreamEventError, Error: generationErrorMessage}); err != nil {
			return Result{Outcome: OutcomeFailed}, true, err
		}
		return Result{Outcome: OutcomeFailed}, true, nil
	}

	return Result{}, false, nil
}

// finish runs the mandatory final scan and closes the stream. The final scan
// always runs, even when a progressive scan just covered the same text: the
// last interval-1 chunks must be scanned before anything is persisted.
func (p *Pipeline) finish(ctx context.Context, r *run, req Request, acc *Accumulator) (Result, error) {
	if p.cfg.ScanEnabled {
		verdict := p.scanOutput(ctx, acc, domain.ScanContextFinal)
		if verdict.Action == scanner.ActionBlock {
			return p.block(ctx, r, req, acc, domain.ScanContextFinal, verdict.Category)
		}
	}

	p.recordExchange(ctx, req, acc.Snapshot())

	if err := r.emit(ctx, StreamEvent{Type: StreamEventDone}); err != nil {
		return Result{Outcome: OutcomeDone, Answer: acc.Snapshot()}, err
	}
	return Result{Outcome: OutcomeDone, Answer: acc.Snapshot()}, nil
}

// block audits the violation, records the user turn only, and emits the
// generic terminal violation event.
func (p *Pipeline) block(ctx context.Context, r *run, req Request, acc *Accumulator, scanCtx domain.ScanContext, category string) (Result, error) {
	log.Warn().
		Str("scan_context", string(scanCtx)).
		Str("category", category).
		Int("chunks", acc.TokenCount()).
		Int("text_len", len(acc.Snapshot())).
		Msg("chat: response blocked by security scan")

	if p.audit != nil {
		p.audit.RecordViolation(ctx, &domain.SecurityEvent{
			ID:             uuid.New(),
			ConversationID: req.ConversationID,
			ScanContext:    scanCtx,
			Category:       category,
			ChunkCount:     acc.TokenCount(),
			ContentLength:  len(acc.Snapshot()),
			Content:        acc.Snapshot(),
			CreatedAt:      time.Now(),
		})
	}

	p.recordUserTurn(ctx, req)

	if err := r.emit(ctx, StreamEvent{Type: StreamEventSecurityViolation, Message: violationMessage}); err != nil {
		return Result{Outcome: OutcomeBlocked}, err
	}
	return Result{Outcome: OutcomeBlocked}, nil
}

// scanOutput performs one progressive or final scan over the full
// accumulated text. Scanner failures fail open: log and allow.
func (p *Pipeline) scanOutput(ctx context.Context, acc *Accumulator, scanCtx domain.ScanContext) scanner.Verdict {
	verdict, err := p.scanner.ScanOutput(ctx, acc.Snapshot())
	if err != nil {
		log.Warn().
			Err(err).
			Str("scan_context", string(scanCtx)).
			Int("chunks", acc.TokenCount()).
			Int("text_len", len(acc.Snapshot())).
			Msg("chat: output scan unavailable, continuing fail-open")
		return scanner.Verdict{Action: scanner.ActionAllow}
	}
	return verdict
}

func (p *Pipeline) recordUserTurn(ctx context.Context, req Request) {
	if p.sessions == nil || req.ConversationID == nil {
		return
	}
	if err := p.sessions.AppendUserTurn(ctx, *req.ConversationID, req.Query); err != nil {
		log.Error().Err(err).Str("conversation_id", req.ConversationID.String()).Msg("chat: failed to record user turn")
	}
}

func (p *Pipeline) recordExchange(ctx context.Context, req Request, answer string) {
	if p.sessions == nil || req.ConversationID == nil {
		return
	}
	if err := p.sessions.AppendExchange(ctx, *req.ConversationID, req.Query, answer); err != nil {
		log.Error().Err(err).Str("conversation_id", req.ConversationID.String()).Msg("chat: failed to record exchange")
	}
}
