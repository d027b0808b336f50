package port

import "context"

// FriendPolicy decides whether userID may open a single conversation with
// otherUserID. The social graph lives outside this service.
type FriendPolicy interface {
	CanMessage(ctx context.Context, userID string, otherUserID string) (bool, error)
}

// AllowAll is the default policy: anyone may message anyone.
type AllowAll struct{}

func (AllowAll) CanMessage(context.Context, string, string) (bool, error) { return true, nil }
