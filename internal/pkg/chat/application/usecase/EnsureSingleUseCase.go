package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	chat "go-chatline/internal/pkg/chat/application/domain"
	"go-chatline/internal/pkg/chat/application/port"
	repository "go-chatline/internal/pkg/chat/persistence/repository/port"
)

// maxEnsureAttempts bounds the find-or-insert loop when concurrent callers
// race for the same pair.
const maxEnsureAttempts = 5

type EnsureSingleInput struct {
	UserID      string
	OtherUserID string
}

type EnsureSingleOutput struct {
	Conversation *chat.Conversation
	Created      bool
}

// EnsureSingleUseCase returns the single conversation of a pair, creating it
// on first use. At most one exists per unordered pair.
type EnsureSingleUseCase struct {
	Repo    repository.ChatRepository
	Fanout  port.Fanout
	Friends port.FriendPolicy
	Now     func() time.Time
}

func NewEnsureSingleUseCase(repo repository.ChatRepository, fanout port.Fanout, friends port.FriendPolicy) *EnsureSingleUseCase {
	if friends == nil {
		friends = port.AllowAll{}
	}
	return &EnsureSingleUseCase{Repo: repo, Fanout: fanout, Friends: friends, Now: time.Now}
}

func (uc *EnsureSingleUseCase) Execute(ctx context.Context, in EnsureSingleInput) (EnsureSingleOutput, error) {
	userID, otherUserID := strings.TrimSpace(in.UserID), strings.TrimSpace(in.OtherUserID)
	if userID == "" || otherUserID == "" {
		return EnsureSingleOutput{}, invalid("otherUserId is required")
	}
	if userID == otherUserID {
		return EnsureSingleOutput{}, invalid("cannot open a conversation with yourself")
	}

	ok, err := uc.Friends.CanMessage(ctx, userID, otherUserID)
	if err != nil {
		return EnsureSingleOutput{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !ok {
		return EnsureSingleOutput{}, fmt.Errorf("%w: users are not connected", chat.ErrForbidden)
	}

	for attempt := 0; attempt < maxEnsureAttempts; attempt++ {
		existing, err := uc.Repo.FindSingle(ctx, userID, otherUserID)
		if err == nil {
			return EnsureSingleOutput{Conversation: existing}, nil
		}
		if !errors.Is(err, chat.ErrNotFound) {
			return EnsureSingleOutput{}, storeError(err)
		}

		conv, err := chat.NewSingle(uuid.NewString(), userID, otherUserID, uc.Now())
		if err != nil {
			return EnsureSingleOutput{}, err
		}
		err = uc.Repo.InsertConversation(ctx, conv)
		switch {
		case err == nil:
			announceConversation(ctx, uc.Fanout, conv)
			return EnsureSingleOutput{Conversation: conv, Created: true}, nil
		case errors.Is(err, chat.ErrConflict):
			// lost the race; the winner's row is visible on the next lookup
			continue
		default:
			return EnsureSingleOutput{}, storeError(err)
		}
	}
	return EnsureSingleOutput{}, fmt.Errorf("%w: single conversation still contended after %d attempts", ErrPersistence, maxEnsureAttempts)
}
