package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	chat "go-chatline/internal/pkg/chat/application/domain"
	"go-chatline/internal/pkg/chat/application/port"
	repository "go-chatline/internal/pkg/chat/persistence/repository/port"
)

// SendMessageInput carries the data needed to send a new message.
// Content may be empty (attachment-only messages).
type SendMessageInput struct {
	ConversationID string
	SenderID       string
	Content        string
	Attachments    []chat.Attachment
}

// SendMessageUseCase persists a message and fans it out to every subscriber
// of the conversation, the sender's own sessions included.
type SendMessageUseCase struct {
	Repo   repository.ChatRepository
	Fanout port.Fanout
	Locks  *ConversationLocks
	Now    func() time.Time
}

func NewSendMessageUseCase(repo repository.ChatRepository, fanout port.Fanout, locks *ConversationLocks) *SendMessageUseCase {
	return &SendMessageUseCase{Repo: repo, Fanout: fanout, Locks: orNewLocks(locks), Now: time.Now}
}

// Execute validates membership, persists the message with an empty seen-set,
// advances the conversation's last activity and publishes chat:new.
func (uc *SendMessageUseCase) Execute(ctx context.Context, in SendMessageInput) (*chat.Message, error) {
	in.ConversationID = strings.TrimSpace(in.ConversationID)
	if in.ConversationID == "" || in.SenderID == "" {
		return nil, invalid("conversationId and senderId are required")
	}

	unlock := uc.Locks.Lock(in.ConversationID)
	defer unlock()

	conv, err := uc.Repo.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, storeError(err)
	}

	draft, err := chat.NewMessage(uuid.NewString(), in.ConversationID, in.SenderID, in.Content, in.Attachments)
	if err != nil {
		return nil, err
	}
	msg, err := conv.PostMessage(*draft, uc.Now())
	if err != nil {
		return nil, err
	}

	if err := uc.Repo.SaveMessage(ctx, &msg); err != nil {
		return nil, storeError(err)
	}

	// The message is committed; delivery must not depend on the caller's deadline.
	uc.Fanout.Publish(context.WithoutCancel(ctx), msg.ConversationID, chat.NewMessageCreatedEvent(msg), "")
	return &msg, nil
}
