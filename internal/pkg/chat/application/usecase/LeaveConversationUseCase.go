package usecase

import (
	"context"
	"strings"
	"time"

	chat "go-chatline/internal/pkg/chat/application/domain"
	"go-chatline/internal/pkg/chat/application/port"
	repository "go-chatline/internal/pkg/chat/persistence/repository/port"
)

type LeaveConversationInput struct {
	UserID         string
	ConversationID string
}

type LeaveConversationOutput struct {
	Deleted bool
	// Remaining lists the members left behind (sorted).
	Remaining []string
}

// LeaveConversationUseCase removes a member from a conversation, deleting the
// conversation when it can no longer exist.
type LeaveConversationUseCase struct {
	Repo   repository.ChatRepository
	Fanout port.Fanout
	Locks  *ConversationLocks
	Now    func() time.Time
}

func NewLeaveConversationUseCase(repo repository.ChatRepository, fanout port.Fanout, locks *ConversationLocks) *LeaveConversationUseCase {
	return &LeaveConversationUseCase{Repo: repo, Fanout: fanout, Locks: orNewLocks(locks), Now: time.Now}
}

// Execute applies the leave rules in one store mutation. The membership index
// is touched only after the store committed.
func (uc *LeaveConversationUseCase) Execute(ctx context.Context, in LeaveConversationInput) (LeaveConversationOutput, error) {
	in.ConversationID = strings.TrimSpace(in.ConversationID)
	if in.ConversationID == "" || in.UserID == "" {
		return LeaveConversationOutput{}, invalid("conversationId and userId are required")
	}

	unlock := uc.Locks.Lock(in.ConversationID)
	defer unlock()

	var outcome chat.LeaveOutcome
	_, _, err := uc.Repo.MutateConversation(ctx, in.ConversationID, func(c *chat.Conversation) (chat.MutationOp, error) {
		o, err := c.Leave(in.UserID, uc.Now())
		if err != nil {
			return chat.OpNone, err
		}
		outcome = o
		return o.Op, nil
	})
	if err != nil {
		return LeaveConversationOutput{}, storeError(err)
	}

	// The leaver is unsubscribed before the event goes out so only remaining
	// members receive it. A deleted conversation is dissolved last so the
	// remaining member still learns about the deletion.
	ctx = context.WithoutCancel(ctx)
	uc.Fanout.MembershipChanged(ctx, in.ConversationID, in.UserID, false)
	change := chat.ChangeLeft
	if outcome.Deleted() {
		change = chat.ChangeDeleted
	}
	uc.Fanout.Publish(ctx, in.ConversationID, chat.NewMembershipEvent(in.ConversationID, in.UserID, change), "")
	if outcome.Deleted() {
		uc.Fanout.Dissolve(ctx, in.ConversationID)
	}

	return LeaveConversationOutput{Deleted: outcome.Deleted(), Remaining: outcome.Remaining.Slice()}, nil
}
