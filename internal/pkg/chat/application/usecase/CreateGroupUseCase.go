package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	chat "go-chatline/internal/pkg/chat/application/domain"
	"go-chatline/internal/pkg/chat/application/port"
	repository "go-chatline/internal/pkg/chat/persistence/repository/port"
)

type CreateGroupInput struct {
	UserID    string
	Name      string
	MemberIDs []string
}

// CreateGroupUseCase opens a group owned by the caller.
type CreateGroupUseCase struct {
	Repo   repository.ChatRepository
	Fanout port.Fanout
	Now    func() time.Time
}

func NewCreateGroupUseCase(repo repository.ChatRepository, fanout port.Fanout) *CreateGroupUseCase {
	return &CreateGroupUseCase{Repo: repo, Fanout: fanout, Now: time.Now}
}

// Execute builds the member set from the caller plus memberIDs (deduplicated,
// blanks dropped) and fails with chat.ErrInvalidArgument below three members.
func (uc *CreateGroupUseCase) Execute(ctx context.Context, in CreateGroupInput) (*chat.Conversation, error) {
	conv, err := chat.NewGroup(uuid.NewString(), in.UserID, in.Name, in.MemberIDs, uc.Now())
	if err != nil {
		return nil, err
	}
	if err := uc.Repo.InsertConversation(ctx, conv); err != nil {
		return nil, storeError(err)
	}
	announceConversation(ctx, uc.Fanout, conv)
	return conv, nil
}
