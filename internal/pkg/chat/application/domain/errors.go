package chat

import "errors"

// Error taxonomy shared by every chat entry point. Adapters and use cases wrap
// these with fmt.Errorf("%w: ...") so callers can still match with errors.Is.
var (
	ErrUnauthenticated = errors.New("chat: unauthenticated")
	ErrForbidden       = errors.New("chat: user is not a member of the conversation")
	ErrNotFound        = errors.New("chat: conversation not found")
	ErrInvalidArgument = errors.New("chat: invalid argument")

	// ErrConflict is returned by stores when a single conversation for the same
	// pair already exists. Lifecycle code retries its lookup on this error.
	ErrConflict = errors.New("chat: conversation already exists")
)
