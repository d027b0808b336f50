package usecase

import (
	"context"

	chat "go-chatline/internal/pkg/chat/application/domain"
	repository "go-chatline/internal/pkg/chat/persistence/repository/port"
)

type ConnectSessionInput struct {
	UserID string
}

// ConnectSessionUseCase resolves the conversations a freshly authenticated
// session must be subscribed to.
type ConnectSessionUseCase struct {
	Repo repository.ChatRepository
}

func NewConnectSessionUseCase(repo repository.ChatRepository) *ConnectSessionUseCase {
	return &ConnectSessionUseCase{Repo: repo}
}

func (uc *ConnectSessionUseCase) Execute(ctx context.Context, in ConnectSessionInput) ([]string, error) {
	if in.UserID == "" {
		return nil, chat.ErrUnauthenticated
	}
	ids, err := uc.Repo.ListConversationIDsByMember(ctx, in.UserID)
	if err != nil {
		return nil, storeError(err)
	}
	return ids, nil
}
