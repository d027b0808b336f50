package usecase

import (
	"context"

	chat "go-chatline/internal/pkg/chat/application/domain"
	"go-chatline/internal/pkg/chat/application/port"
)

// announceConversation subscribes every member's live sessions to a freshly
// created conversation and tells them about it.
func announceConversation(ctx context.Context, fanout port.Fanout, conv *chat.Conversation) {
	ctx = context.WithoutCancel(ctx)
	for _, userID := range conv.Members.Slice() {
		fanout.MembershipChanged(ctx, conv.ID, userID, true)
	}
	fanout.Publish(ctx, conv.ID, chat.NewConversationEvent(conv), "")
}
