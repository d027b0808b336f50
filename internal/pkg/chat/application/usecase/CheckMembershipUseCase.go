package usecase

import (
	"context"
	"strings"

	chat "go-chatline/internal/pkg/chat/application/domain"
	repository "go-chatline/internal/pkg/chat/persistence/repository/port"
)

type CheckMembershipInput struct {
	ConversationID string
	UserID         string
}

// CheckMembershipUseCase ensures the user belongs to the conversation. It
// guards entry points that hand work off before the pipeline runs.
type CheckMembershipUseCase struct {
	Repo repository.ChatRepository
}

func NewCheckMembershipUseCase(repo repository.ChatRepository) *CheckMembershipUseCase {
	return &CheckMembershipUseCase{Repo: repo}
}

func (uc *CheckMembershipUseCase) Execute(ctx context.Context, in CheckMembershipInput) error {
	in.ConversationID = strings.TrimSpace(in.ConversationID)
	if in.ConversationID == "" || in.UserID == "" {
		return invalid("conversationId and userId are required")
	}
	conv, err := uc.Repo.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return storeError(err)
	}
	if !conv.HasMember(in.UserID) {
		return chat.ErrForbidden
	}
	return nil
}
