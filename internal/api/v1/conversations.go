package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/guardo-ai/guardo/internal/domain"
)

type ListConversationsInput struct {
	Limit  int `query:"limit" minimum:"1" maximum:"200" default:"50" doc:"Maximum conversations to return"`
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Number of conversations to skip"`
}

type ListConversationsOutput struct {
	Body []*domain.Conversation
}

type GetHistoryInput struct {
	ID uuid.UUID `path:"id" doc:"Conversation ID"`
}

type GetHistoryOutput struct {
	Body []*domain.Exchange
}

type ClearConversationInput struct {
	ID uuid.UUID `path:"id" doc:"Conversation ID"`
}

type DeleteConversationInput struct {
	ID uuid.UUID `path:"id" doc:"Conversation ID"`
}

func RegisterConversationRoutes(api huma.API, sessions SessionService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-conversations",
		Method:      http.MethodGet,
		Path:        "/conversations",
		Summary:     "List conversations",
		Tags:        []string{"Conversations"},
	}, func(ctx context.Context, input *ListConversationsInput) (*ListConversationsOutput, error) {
		conversations, err := sessions.List(ctx, input.Limit, input.Offset)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list conversations", err)
		}
		return &ListConversationsOutput{Body: conversations}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-conversation-history",
		Method:      http.MethodGet,
		Path:        "/conversations/{id}/history",
		Summary:     "Get a conversation's exchange history",
		Tags:        []string{"Conversations"},
	}, func(ctx context.Context, input *GetHistoryInput) (*GetHistoryOutput, error) {
		history, err := sessions.History(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("conversation not found")
			}
			return nil, huma.Error500InternalServerError("failed to load history", err)
		}
		return &GetHistoryOutput{Body: history}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "clear-conversation",
		Method:      http.MethodPost,
		Path:        "/conversations/{id}/clear",
		Summary:     "Clear a conversation's history, keeping the conversation",
		Tags:        []string{"Conversations"},
	}, func(ctx context.Context, input *ClearConversationInput) (*struct{}, error) {
		if err := sessions.Clear(ctx, input.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("conversation not found")
			}
			return nil, huma.Error500InternalServerError("failed to clear conversation", err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-conversation",
		Method:      http.MethodDelete,
		Path:        "/conversations/{id}",
		Summary:     "Delete a conversation and its history",
		Tags:        []string{"Conversations"},
	}, func(ctx context.Context, input *DeleteConversationInput) (*struct{}, error) {
		if err := sessions.Delete(ctx, input.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("conversation not found")
			}
			return nil, huma.Error500InternalServerError("failed to delete conversation", err)
		}
		return nil, nil
	})
}
