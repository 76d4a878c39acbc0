package agent_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardo-ai/guardo/internal/agent"
	"github.com/guardo-ai/guardo/internal/chat"
	"github.com/guardo-ai/guardo/internal/domain"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type stubRetriever struct {
	context string
	err     error
	queries []string
}

func (r *stubRetriever) Retrieve(_ context.Context, query string) (string, error) {
	r.queries = append(r.queries, query)
	if r.err != nil {
		return "", r.err
	}
	return r.context, nil
}

type echoTool struct {
	calls []map[string]any
	err   error
}

func (t *echoTool) Name() string        { return "echo" }
func (t *echoTool) Description() string { return "Echo the input back." }
func (t *echoTool) Parameters() map[string]any {
	return map[string]any{"type": "object"}
}

func (t *echoTool) Call(_ context.Context, args map[string]any) (string, error) {
	t.calls = append(t.calls, args)
	if t.err != nil {
		return "", t.err
	}
	return fmt.Sprintf("echo: %v", args["text"]), nil
}

// sseCompletionServer serves scripted chat completion streams: one script
// entry per CreateChatCompletionStream call, each a list of raw SSE data
// payloads (the trailing [DONE] is appended automatically).
func sseCompletionServer(t *testing.T, scripts [][]string) *openai.Client {
	t.Helper()

	var call int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		require.Less(t, call, len(scripts), "unexpected extra completion call")
		script := scripts[call]
		call++

		w.Header().Set("Content-Type", "text/event-stream")
		for _, payload := range script {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func tokenChunk(content string) string {
	return fmt.Sprintf(`{"choices":[{"delta":{"content":%q}}]}`, content)
}

func collect(t *testing.T, events <-chan chat.GenerationEvent) []chat.GenerationEvent {
	t.Helper()

	var out []chat.GenerationEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out draining event stream")
		}
	}
}

// ---------------------------------------------------------------------------
// Streaming
// ---------------------------------------------------------------------------

func TestStreamEmitsTextTokensInOrder(t *testing.T) {
	t.Parallel()

	client := sseCompletionServer(t, [][]string{
		{tokenChunk("Hel"), tokenChunk("lo"), tokenChunk("!")},
	})
	source := agent.NewOpenAISource(client, nil, nil, agent.Options{Model: "test-model"})

	events, err := source.Stream(t.Context(), "hi", nil)
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 3)
	for i, want := range []string{"Hel", "lo", "!"} {
		assert.Equal(t, chat.EventTextToken, got[i].Type)
		assert.Equal(t, want, got[i].Content)
	}
}

func TestStreamEmitsRetrievalBeforeTokens(t *testing.T) {
	t.Parallel()

	client := sseCompletionServer(t, [][]string{
		{tokenChunk("ok")},
	})
	retriever := &stubRetriever{context: "## Hours\nOpen 9-5"}
	source := agent.NewOpenAISource(client, retriever, nil, agent.Options{Model: "test-model"})

	events, err := source.Stream(t.Context(), "when are you open", nil)
	require.NoError(t, err)

	got := collect(t, events)
	require.NotEmpty(t, got)
	assert.Equal(t, chat.EventRetrieval, got[0].Type)
	assert.Equal(t, "Searching knowledge base...", got[0].Message)
	assert.Equal(t, []string{"when are you open"}, retriever.queries)
}

func TestStreamRetrievalFailureDegradesGracefully(t *testing.T) {
	t.Parallel()

	client := sseCompletionServer(t, [][]string{
		{tokenChunk("still works")},
	})
	retriever := &stubRetriever{err: errors.New("kb down")}
	source := agent.NewOpenAISource(client, retriever, nil, agent.Options{Model: "test-model"})

	events, err := source.Stream(t.Context(), "hi", nil)
	require.NoError(t, err)

	got := collect(t, events)
	// Retrieval signal still goes out, then generation proceeds.
	require.Len(t, got, 2)
	assert.Equal(t, chat.EventRetrieval, got[0].Type)
	assert.Equal(t, chat.EventTextToken, got[1].Type)
}

func TestStreamToolCallRoundTrip(t *testing.T) {
	t.Parallel()

	// First turn: the model requests a tool via fragmented deltas. Second
	// turn: it answers with text.
	toolTurn := []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"echo","arguments":""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"text\":"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"hi\"}"}}]}}]}`,
	}
	answerTurn := []string{tokenChunk("done")}

	client := sseCompletionServer(t, [][]string{toolTurn, answerTurn})
	tool := &echoTool{}
	source := agent.NewOpenAISource(client, nil, []agent.Tool{tool}, agent.Options{Model: "test-model"})

	events, err := source.Stream(t.Context(), "use the tool", nil)
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 3)

	assert.Equal(t, chat.EventToolCall, got[0].Type)
	assert.Equal(t, "echo", got[0].ToolName)
	assert.Equal(t, map[string]any{"text": "hi"}, got[0].ToolArgs)

	assert.Equal(t, chat.EventToolResult, got[1].Type)
	assert.Equal(t, "call_1", got[1].ToolCallID)
	assert.Equal(t, "echo: hi", got[1].ToolResult)

	assert.Equal(t, chat.EventTextToken, got[2].Type)
	assert.Equal(t, "done", got[2].Content)

	// The tool saw the reassembled arguments exactly once.
	require.Len(t, tool.calls, 1)
	assert.Equal(t, map[string]any{"text": "hi"}, tool.calls[0])
}

func TestStreamToolFailureReportedAsResult(t *testing.T) {
	t.Parallel()

	toolTurn := []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"echo","arguments":"{}"}}]}}]}`,
	}
	answerTurn := []string{tokenChunk("recovered")}

	client := sseCompletionServer(t, [][]string{toolTurn, answerTurn})
	tool := &echoTool{err: errors.New("backend exploded")}
	source := agent.NewOpenAISource(client, nil, []agent.Tool{tool}, agent.Options{Model: "test-model"})

	events, err := source.Stream(t.Context(), "use the tool", nil)
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 3)
	assert.Equal(t, chat.EventToolResult, got[1].Type)
	assert.Contains(t, got[1].ToolResult, "tool error")
	// The stream recovers rather than aborting.
	assert.Equal(t, chat.EventTextToken, got[2].Type)
}

func TestStreamTooManyToolTurns(t *testing.T) {
	t.Parallel()

	toolTurn := []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"echo","arguments":"{}"}}]}}]}`,
	}

	// The model keeps asking for tools on every turn.
	client := sseCompletionServer(t, [][]string{toolTurn, toolTurn})
	tool := &echoTool{}
	source := agent.NewOpenAISource(client, nil, []agent.Tool{tool}, agent.Options{Model: "test-model", MaxTurns: 2})

	events, err := source.Stream(t.Context(), "loop forever", nil)
	require.NoError(t, err)

	got := collect(t, events)
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, chat.EventError, last.Type)
	assert.ErrorIs(t, last.Err, agent.ErrTooManyTurns)
}

func TestStreamUpstreamFailureEmitsErrorEvent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	source := agent.NewOpenAISource(openai.NewClientWithConfig(cfg), nil, nil, agent.Options{Model: "test-model"})

	events, err := source.Stream(t.Context(), "hi", nil)
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 1)
	assert.Equal(t, chat.EventError, got[0].Type)
	assert.Error(t, got[0].Err)
}

// ---------------------------------------------------------------------------
// KnowledgeTool and RepoRetriever
// ---------------------------------------------------------------------------

func TestKnowledgeToolCall(t *testing.T) {
	t.Parallel()

	t.Run("happy path", func(t *testing.T) {
		t.Parallel()

		tool := agent.NewKnowledgeTool(&stubRetriever{context: "## Menu\nPizza"})

		result, err := tool.Call(t.Context(), map[string]any{"query": "menu"})

		require.NoError(t, err)
		assert.Equal(t, "## Menu\nPizza", result)
	})

	t.Run("missing query", func(t *testing.T) {
		t.Parallel()

		tool := agent.NewKnowledgeTool(&stubRetriever{})

		_, err := tool.Call(t.Context(), map[string]any{})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing query")
	})

	t.Run("no matches", func(t *testing.T) {
		t.Parallel()

		tool := agent.NewKnowledgeTool(&stubRetriever{})

		result, err := tool.Call(t.Context(), map[string]any{"query": "nothing"})

		require.NoError(t, err)
		assert.Equal(t, "no matching documents", result)
	})
}

type mockKnowledgeRepo struct {
	searchFunc func(ctx context.Context, query string, limit int) ([]*domain.KnowledgeDocument, error)
}

func (m *mockKnowledgeRepo) Search(ctx context.Context, query string, limit int) ([]*domain.KnowledgeDocument, error) {
	return m.searchFunc(ctx, query, limit)
}

func (m *mockKnowledgeRepo) Upsert(context.Context, *domain.KnowledgeDocument) error {
	panic("not implemented")
}

func TestRepoRetrieverFormatsDocuments(t *testing.T) {
	t.Parallel()

	repo := &mockKnowledgeRepo{
		searchFunc: func(_ context.Context, query string, limit int) ([]*domain.KnowledgeDocument, error) {
			assert.Equal(t, "hours", query)
			assert.Equal(t, 5, limit)
			return []*domain.KnowledgeDocument{
				{Title: "Hours", Content: "Open 9-5"},
				{Title: "Location", Content: "Main St"},
			}, nil
		},
	}
	retriever := agent.NewRepoRetriever(repo, 0)

	got, err := retriever.Retrieve(t.Context(), "hours")

	require.NoError(t, err)
	assert.Equal(t, "## Hours\nOpen 9-5\n\n## Location\nMain St", got)
}

func TestRepoRetrieverEmptyResult(t *testing.T) {
	t.Parallel()

	repo := &mockKnowledgeRepo{
		searchFunc: func(context.Context, string, int) ([]*domain.KnowledgeDocument, error) {
			return nil, nil
		},
	}
	retriever := agent.NewRepoRetriever(repo, 3)

	got, err := retriever.Retrieve(t.Context(), "anything")

	require.NoError(t, err)
	assert.Empty(t, got)
}
