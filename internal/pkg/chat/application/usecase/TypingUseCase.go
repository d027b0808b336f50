package usecase

import (
	"context"
	"strings"

	chat "go-chatline/internal/pkg/chat/application/domain"
	"go-chatline/internal/pkg/chat/application/port"
	repository "go-chatline/internal/pkg/chat/persistence/repository/port"
)

type TypingInput struct {
	ConversationID string
	UserID         string
	IsTyping       bool
}

// TypingUseCase relays typing indicators. Nothing is persisted.
type TypingUseCase struct {
	Repo   repository.ChatRepository
	Fanout port.Fanout
}

func NewTypingUseCase(repo repository.ChatRepository, fanout port.Fanout) *TypingUseCase {
	return &TypingUseCase{Repo: repo, Fanout: fanout}
}

// Execute publishes chat:typing to every subscriber except the typing user.
func (uc *TypingUseCase) Execute(ctx context.Context, in TypingInput) error {
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

	uc.Fanout.Publish(ctx, in.ConversationID, chat.NewTypingEvent(in.UserID, in.ConversationID, in.IsTyping), in.UserID)
	return nil
}
