package chat

import (
	"context"

	"github.com/guardo-ai/guardo/internal/domain"
)

// GenerationEventType tags the variants of GenerationEvent.
type GenerationEventType string

const (
	EventTextToken  GenerationEventType = "text_token"
	EventToolCall   GenerationEventType = "tool_call"
	EventToolResult GenerationEventType = "tool_result"
	EventRetrieval  GenerationEventType = "retrieval"
	EventError      GenerationEventType = "error"
)

// GenerationEvent is one unit of output from the generation source,
// normalized at the boundary so the pipeline never sees upstream library
// shapes. Exactly the fields for the tagged variant are set.
type GenerationEvent struct {
	Type GenerationEventType

	// EventTextToken
	Content string

	// EventToolCall
	ToolName string
	ToolArgs map[string]any

	// EventToolResult
	ToolCallID string
	ToolResult string

	// EventRetrieval
	Message string

	// EventError: the source failed mid-generation. The source closes the
	// channel after sending this.
	Err error
}

// TextToken builds a text chunk event.
func TextToken(content string) GenerationEvent {
	return GenerationEvent{Type: EventTextToken, Content: content}
}

// ToolCall builds a tool invocation event.
func ToolCall(name string, args map[string]any) GenerationEvent {
	return GenerationEvent{Type: EventToolCall, ToolName: name, ToolArgs: args}
}

// ToolResult builds a tool result event.
func ToolResult(callID, result string) GenerationEvent {
	return GenerationEvent{Type: EventToolResult, ToolCallID: callID, ToolResult: result}
}

// Retrieval builds an informational knowledge-lookup event.
func Retrieval(message string) GenerationEvent {
	return GenerationEvent{Type: EventRetrieval, Message: message}
}

// SourceError builds a terminal generation failure event.
func SourceError(err error) GenerationEvent {
	return GenerationEvent{Type: EventError, Err: err}
}

// EventSource produces the ordered generation event stream for one response.
// The channel is closed on natural completion. Implementations must honor
// ctx cancellation and stop producing promptly when the consumer goes away.
type EventSource interface {
	Stream(ctx context.Context, query string, history []*domain.Exchange) (<-chan GenerationEvent, error)
}
