package usecase

import (
	"context"
	"strings"

	chat "go-chatline/internal/pkg/chat/application/domain"
	"go-chatline/internal/pkg/chat/application/port"
	repository "go-chatline/internal/pkg/chat/persistence/repository/port"
)

type MarkSeenInput struct {
	ConversationID string
	UserID         string
}

// MarkSeenUseCase records that a member has read a conversation.
type MarkSeenUseCase struct {
	Repo   repository.ChatRepository
	Fanout port.Fanout
	Locks  *ConversationLocks
}

func NewMarkSeenUseCase(repo repository.ChatRepository, fanout port.Fanout, locks *ConversationLocks) *MarkSeenUseCase {
	return &MarkSeenUseCase{Repo: repo, Fanout: fanout, Locks: orNewLocks(locks)}
}

// Execute adds the user to the seen-set of every message authored by someone
// else and notifies all subscribers. Repeating it changes nothing but still
// emits chat:seen. It returns the number of messages that changed.
func (uc *MarkSeenUseCase) Execute(ctx context.Context, in MarkSeenInput) (int64, error) {
	in.ConversationID = strings.TrimSpace(in.ConversationID)
	if in.ConversationID == "" || in.UserID == "" {
		return 0, invalid("conversationId and userId are required")
	}

	unlock := uc.Locks.Lock(in.ConversationID)
	defer unlock()

	conv, err := uc.Repo.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return 0, storeError(err)
	}
	if !conv.HasMember(in.UserID) {
		return 0, chat.ErrForbidden
	}

	changed, err := uc.Repo.MarkSeen(ctx, in.ConversationID, in.UserID)
	if err != nil {
		return 0, storeError(err)
	}

	uc.Fanout.Publish(context.WithoutCancel(ctx), in.ConversationID, chat.NewSeenEvent(in.UserID, in.ConversationID), "")
	return changed, nil
}
