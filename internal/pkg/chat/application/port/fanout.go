package port

import (
	"context"

	chat "go-chatline/internal/pkg/chat/application/domain"
)

// Fanout is the realtime side of the application: the membership index that
// maps conversations to live sessions and the router that delivers events to
// them. realtime.Hub is the production implementation.
type Fanout interface {
	// Publish delivers event to every subscriber of the conversation except
	// the sessions of excludeUserID ("" excludes nobody). Best-effort.
	Publish(ctx context.Context, conversationID string, event chat.Event, excludeUserID string) int
	// MembershipChanged subscribes or unsubscribes every live session of
	// userID. It is visible to subsequent Publish calls once it returns.
	MembershipChanged(ctx context.Context, conversationID string, userID string, joined bool)
	// Dissolve drops all subscriptions to a deleted conversation.
	Dissolve(ctx context.Context, conversationID string)
}
