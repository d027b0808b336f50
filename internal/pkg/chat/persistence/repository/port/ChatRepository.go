package repository

import (
	"context"

	chat "go-chatline/internal/pkg/chat/application/domain"
)

// MutateFunc runs inside a store-level read-modify-write. It receives a copy of
// the current conversation, may change it, and returns what the store must do
// with it. Returning an error aborts the mutation without side effects.
type MutateFunc func(c *chat.Conversation) (chat.MutationOp, error)

// ChatRepository is the Conversation Store: the single source of truth for
// membership and message history.
//
// Implementations must:
//   - reject a second single conversation for the same unordered pair with chat.ErrConflict
//   - return chat.ErrNotFound for missing conversations
//   - delete a conversation's messages together with the conversation
type ChatRepository interface {
	InsertConversation(ctx context.Context, c *chat.Conversation) error
	FindSingle(ctx context.Context, userID string, otherUserID string) (*chat.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*chat.Conversation, error)
	ListConversationIDsByMember(ctx context.Context, userID string) ([]string, error)
	ListConversationsByMember(ctx context.Context, userID string) ([]chat.Conversation, error)
	MutateConversation(ctx context.Context, conversationID string, fn MutateFunc) (*chat.Conversation, chat.MutationOp, error)

	// SaveMessage persists m and advances the conversation's last activity to
	// m.CreatedAt (never backwards). It fails with chat.ErrForbidden if the
	// sender stopped being a member in the meantime and with chat.ErrConflict
	// for a reused message id; a failed save leaves activity unchanged.
	// m.CreatedAt must already be at chat.TimePrecision so it reads back equal.
	SaveMessage(ctx context.Context, m *chat.Message) error
	// MarkSeen adds userID to the seen-set of every message in the conversation
	// authored by someone else. It returns the number of messages changed.
	MarkSeen(ctx context.Context, conversationID string, userID string) (int64, error)
	// GetMessagesByConversation returns messages newest first.
	GetMessagesByConversation(ctx context.Context, conversationID string, limit int, offset int) ([]chat.Message, error)
}
