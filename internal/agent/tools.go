package agent

import (
	"context"
	"fmt"
)

// Tool is a capability the model may invoke. Tools are registered explicitly
// at startup; there is no ambient registry.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the arguments
	Call(ctx context.Context, args map[string]any) (string, error)
}

// KnowledgeTool exposes the knowledge-base retriever as a callable tool so
// the model can search beyond the context injected up front.
type KnowledgeTool struct {
	retriever Retriever
}

func NewKnowledgeTool(retriever Retriever) *KnowledgeTool {
	return &KnowledgeTool{retriever: retriever}
}

func (t *KnowledgeTool) Name() string { return "kb_lookup" }

func (t *KnowledgeTool) Description() string {
	return "Search the knowledge base for documents matching a query."
}

func (t *KnowledgeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query",
			},
		},
		"required": []string{"query"},
	}
}

func (t *KnowledgeTool) Call(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("agent.KnowledgeTool: missing query argument")
	}

	result, err := t.retriever.Retrieve(ctx, query)
	if err != nil {
		return "", fmt.Errorf("agent.KnowledgeTool: %w", err)
	}
	if result == "" {
		return "no matching documents", nil
	}
	return result, nil
}
