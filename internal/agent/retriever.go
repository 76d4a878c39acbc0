package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/guardo-ai/guardo/internal/domain"
)

const defaultRetrieveLimit = 5

// RepoRetriever retrieves knowledge-base context from a document repository.
type RepoRetriever struct {
	repo  domain.KnowledgeRepository
	limit int
}

func NewRepoRetriever(repo domain.KnowledgeRepository, limit int) *RepoRetriever {
	if limit < 1 {
		limit = defaultRetrieveLimit
	}
	return &RepoRetriever{repo: repo, limit: limit}
}

// Retrieve returns matching documents concatenated for prompt injection.
// No matches is not an error; it returns an empty string.
func (r *RepoRetriever) Retrieve(ctx context.Context, query string) (string, error) {
	docs, err := r.repo.Search(ctx, query, r.limit)
	if err != nil {
		return "", fmt.Errorf("agent.RepoRetriever.Retrieve: %w", err)
	}

	var sb strings.Builder
	for i, doc := range docs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("## ")
		sb.WriteString(doc.Title)
		sb.WriteString("\n")
		sb.WriteString(doc.Content)
	}
	return sb.String(), nil
}
