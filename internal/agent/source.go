// Package agent adapts an OpenAI-compatible chat model into the generation
// event stream consumed by the chat pipeline. All upstream library shapes
// (stream deltas, tool-call fragments) are normalized here so the pipeline
// stays implementation-agnostic.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/guardo-ai/guardo/internal/chat"
	"github.com/guardo-ai/guardo/internal/domain"
)

// ErrTooManyTurns is sent as a source error when the model keeps requesting
// tools past the turn cap.
var ErrTooManyTurns = errors.New("agent: too many tool turns")

const defaultSystemPrompt = "You are a helpful customer assistant. Answer using the knowledge provided " +
	"within <context></context> tags, quoting it verbatim where relevant (including URLs). " +
	"If a question falls outside that knowledge, say so and suggest contacting support."

const defaultMaxTurns = 8

// Retriever looks up knowledge-base context for a query. Constructed once at
// startup and injected; the source never builds its own clients.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// Options configures an OpenAISource.
type Options struct {
	Model        string
	SystemPrompt string
	MaxTurns     int // tool-call round trips before giving up
}

// OpenAISource streams chat completions and emits normalized generation
// events: text deltas, tool invocations with their results, and retrieval
// progress signals.
type OpenAISource struct {
	client    *openai.Client
	retriever Retriever
	tools     []Tool
	opts      Options
}

func NewOpenAISource(client *openai.Client, retriever Retriever, tools []Tool, opts Options) *OpenAISource {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	if opts.MaxTurns < 1 {
		opts.MaxTurns = defaultMaxTurns
	}
	return &OpenAISource{client: client, retriever: retriever, tools: tools, opts: opts}
}

// Stream starts generation for one user turn. The returned channel carries
// events in order and is closed on completion; a mid-stream failure is
// delivered as a terminal error event before the close.
func (s *OpenAISource) Stream(ctx context.Context, query string, history []*domain.Exchange) (<-chan chat.GenerationEvent, error) {
	out := make(chan chat.GenerationEvent)

	go func() {
		defer close(out)
		s.run(ctx, query, history, out)
	}()

	return out, nil
}

func (s *OpenAISource) run(ctx context.Context, query string, history []*domain.Exchange, out chan<- chat.GenerationEvent) {
	messages := s.buildMessages(ctx, query, history, out)

	for turn := 0; turn < s.opts.MaxTurns; turn++ {
		assistantMsg, calls, err := s.streamCompletion(ctx, messages, out)
		if err != nil {
			send(ctx, out, chat.SourceError(err))
			return
		}

		if len(calls) == 0 {
			return // natural completion
		}

		messages = append(messages, assistantMsg)
		for _, call := range calls {
			messages = append(messages, s.invokeTool(ctx, call, out))
		}
	}

	send(ctx, out, chat.SourceError(ErrTooManyTurns))
}

// buildMessages assembles system prompt, retrieved context, prior exchanges,
// and the current query. Retrieval failures degrade to an empty context.
func (s *OpenAISource) buildMessages(ctx context.Context, query string, history []*domain.Exchange, out chan<- chat.GenerationEvent) []openai.ChatCompletionMessage {
	system := s.opts.SystemPrompt

	if s.retriever != nil {
		send(ctx, out, chat.Retrieval("Searching knowledge base..."))

		kbContext, err := s.retriever.Retrieve(ctx, query)
		if err != nil {
			log.Warn().Err(err).Msg("agent: knowledge retrieval failed, continuing without context")
		} else if kbContext != "" {
			system += "\n\n<context>\n" + kbContext + "\n</context>"
		}
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}
	for _, e := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: e.User,
		})
		if e.Assistant != nil {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: *e.Assistant,
			})
		}
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: query,
	})

	return messages
}

// streamCompletion runs one model turn, emitting text deltas as they arrive
// and collecting any tool-call fragments into complete calls.
func (s *OpenAISource) streamCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, out chan<- chat.GenerationEvent) (openai.ChatCompletionMessage, []openai.ToolCall, error) {
	req := openai.ChatCompletionRequest{
		Model:    s.opts.Model,
		Messages: messages,
		Stream:   true,
	}
	for _, t := range s.tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}

	stream, err := s.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return openai.ChatCompletionMessage{}, nil, fmt.Errorf("agent.OpenAISource: create stream: %w", err)
	}
	defer stream.Close()

	var content string
	pending := map[int]*openai.ToolCall{}

	for {
		resp, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return openai.ChatCompletionMessage{}, nil, fmt.Errorf("agent.OpenAISource: recv: %w", recvErr)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			content += delta.Content
			if !send(ctx, out, chat.TextToken(delta.Content)) {
				return openai.ChatCompletionMessage{}, nil, fmt.Errorf("agent.OpenAISource: %w", ctx.Err())
			}
		}

		// Tool calls arrive as indexed fragments: the first fragment carries
		// ID and name, later ones append argument text.
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := pending[idx]
			if !ok {
				call = &openai.ToolCall{Type: openai.ToolTypeFunction}
				pending[idx] = call
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Function.Name = tc.Function.Name
			}
			call.Function.Arguments += tc.Function.Arguments
		}
	}

	assistantMsg := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: content,
	}

	indexes := make([]int, 0, len(pending))
	for idx := range pending {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]openai.ToolCall, 0, len(pending))
	for _, idx := range indexes {
		calls = append(calls, *pending[idx])
		assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, *pending[idx])
	}

	return assistantMsg, calls, nil
}

// invokeTool emits the tool-call and tool-result events and returns the tool
// message for the next model turn. Tool failures are reported to the model
// rather than aborting the stream.
func (s *OpenAISource) invokeTool(ctx context.Context, call openai.ToolCall, out chan<- chat.GenerationEvent) openai.ChatCompletionMessage {
	var args map[string]any
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			log.Warn().Err(err).Str("tool", call.Function.Name).Msg("agent: unparseable tool arguments")
		}
	}

	send(ctx, out, chat.ToolCall(call.Function.Name, args))

	result, err := s.callTool(ctx, call.Function.Name, args)
	if err != nil {
		log.Error().Err(err).Str("tool", call.Function.Name).Msg("agent: tool execution failed")
		result = "tool error: " + err.Error()
	}

	send(ctx, out, chat.ToolResult(call.ID, result))

	return openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		ToolCallID: call.ID,
		Content:    result,
	}
}

func (s *OpenAISource) callTool(ctx context.Context, name string, args map[string]any) (string, error) {
	for _, t := range s.tools {
		if t.Name() == name {
			return t.Call(ctx, args)
		}
	}
	return "", fmt.Errorf("agent: unknown tool %q", name)
}

// send delivers an event unless the consumer has gone away.
func send(ctx context.Context, out chan<- chat.GenerationEvent, event chat.GenerationEvent) bool {
	select {
	case out <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
