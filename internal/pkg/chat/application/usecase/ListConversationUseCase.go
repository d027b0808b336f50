package usecase

import (
	"context"

	chat "go-chatline/internal/pkg/chat/application/domain"
	repository "go-chatline/internal/pkg/chat/persistence/repository/port"
)

type ListConversationInput struct {
	UserID string
}

// ListConversationUseCase returns the caller's conversations, most recently
// active first.
type ListConversationUseCase struct {
	Repo repository.ChatRepository
}

func NewListConversationUseCase(repo repository.ChatRepository) *ListConversationUseCase {
	return &ListConversationUseCase{Repo: repo}
}

func (uc *ListConversationUseCase) Execute(ctx context.Context, in ListConversationInput) ([]chat.Conversation, error) {
	if in.UserID == "" {
		return nil, chat.ErrUnauthenticated
	}
	convs, err := uc.Repo.ListConversationsByMember(ctx, in.UserID)
	if err != nil {
		return nil, storeError(err)
	}
	return convs, nil
}
