package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/guardo-ai/guardo/internal/chat"
	storeredis "github.com/guardo-ai/guardo/internal/store/redis"
)

// sseEmitter writes wire events as SSE frames and optionally tees each frame
// to pub/sub so websocket observers see the same stream.
type sseEmitter struct {
	w              http.ResponseWriter
	flusher        http.Flusher
	publisher      Publisher
	conversationID *uuid.UUID
}

func (h *Handler) newEmitter(w http.ResponseWriter, flusher http.Flusher, conversationID *uuid.UUID) *sseEmitter {
	return &sseEmitter{
		w:              w,
		flusher:        flusher,
		publisher:      h.deps.Publisher,
		conversationID: conversationID,
	}
}

func (e *sseEmitter) Emit(ctx context.Context, event chat.StreamEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("stream.sseEmitter.Emit: %w", err)
	}

	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("stream.sseEmitter.Emit: %w", err)
	}
	e.flusher.Flush()

	if e.publisher != nil && e.conversationID != nil {
		channel := storeredis.ConversationChannel(*e.conversationID)
		if err := e.publisher.Publish(ctx, channel, payload); err != nil {
			log.Debug().Err(err).Str("channel", channel).Msg("stream: pubsub tee failed")
		}
	}
	return nil
}
