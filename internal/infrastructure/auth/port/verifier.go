package port

import "context"

// Verifier resolves a bearer credential to a user id. Failures wrap
// chat.ErrUnauthenticated.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}
