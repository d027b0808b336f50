package usecase

import (
	"errors"
	"fmt"

	chat "go-chatline/internal/pkg/chat/application/domain"
)

// ErrPersistence indicates an infrastructure/repository failure inside a use case
var ErrPersistence = fmt.Errorf("chat use case persistence error")

// storeError keeps domain errors matchable and wraps everything else as a
// persistence failure.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chat.ErrNotFound),
		errors.Is(err, chat.ErrForbidden),
		errors.Is(err, chat.ErrInvalidArgument),
		errors.Is(err, chat.ErrConflict),
		errors.Is(err, chat.ErrUnauthenticated):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", chat.ErrInvalidArgument, msg)
}
