package chat

import (
	"context"
	"encoding/json"
)

// StreamEventType identifies a server-to-client wire event.
type StreamEventType string

const (
	StreamEventStart             StreamEventType = "start"
	StreamEventToken             StreamEventType = "token"
	StreamEventToolCall          StreamEventType = "tool_call"
	StreamEventToolResult        StreamEventType = "tool_result"
	StreamEventKBSearch          StreamEventType = "kb_search"
	StreamEventSecurityViolation StreamEventType = "security_violation"
	StreamEventError             StreamEventType = "error"
	StreamEventDone              StreamEventType = "done"
)

// Terminal reports whether the event type closes the stream. At most one
// terminal event is emitted per response; nothing follows it.
func (t StreamEventType) Terminal() bool {
	return t == StreamEventSecurityViolation || t == StreamEventError || t == StreamEventDone
}

// StreamEvent is one wire protocol record. The payload fields used depend
// on Type; MarshalJSON emits only the fields defined for the variant so a
// verdict category or matched content can never leak through a stray field.
type StreamEvent struct {
	Type           StreamEventType
	ConversationID *string // start only; nil means stateless (JSON null)
	Content        string  // token
	Tool           string  // tool_call
	Args           map[string]any
	ToolCallID     string // tool_result
	Result         string
	Message        string // kb_search, security_violation
	Error          string // error
}

func (e StreamEvent) MarshalJSON() ([]byte, error) {
	m := map[string]any{"type": e.Type}

	switch e.Type {
	case StreamEventStart:
		m["conversation_id"] = e.ConversationID
	case StreamEventToken:
		m["content"] = e.Content
	case StreamEventToolCall:
		m["tool"] = e.Tool
		m["args"] = e.Args
	case StreamEventToolResult:
		m["tool_call_id"] = e.ToolCallID
		m["result"] = e.Result
	case StreamEventKBSearch, StreamEventSecurityViolation:
		m["message"] = e.Message
	case StreamEventError:
		m["error"] = e.Error
	case StreamEventDone:
	}

	return json.Marshal(m)
}

// Emitter delivers wire events to the remote client, in order. Emit returns
// an error when the client is gone; the pipeline treats that as cancellation.
type Emitter interface {
	Emit(ctx context.Context, event StreamEvent) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, event StreamEvent) error

func (f EmitterFunc) Emit(ctx context.Context, event StreamEvent) error {
	return f(ctx, event)
}

// DiscardEmitter drops all events. Used by the non-streaming chat path,
// which only cares about the pipeline outcome and the accumulated answer.
type DiscardEmitter struct{}

func (DiscardEmitter) Emit(context.Context, StreamEvent) error { return nil }
