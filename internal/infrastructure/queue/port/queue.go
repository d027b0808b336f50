package port

import (
	"context"
	"errors"
	"time"
)

// ErrSkipRetry marks a handler failure as permanent. Adapters must not retry
// a task whose handler returned an error wrapping it.
var ErrSkipRetry = errors.New("queue: skip retry")

// Task is a unit of background work: a stable type name plus an encoded
// payload owned by whoever registered the type.
type Task struct {
	Type    string
	Payload []byte
}

// Handler runs one task. A nil return acknowledges it; any other error is
// retried unless it wraps ErrSkipRetry. Handlers may see a task more than once.
type Handler func(ctx context.Context, task Task) error

// EnqueueOption tunes a single enqueue. Zero fields keep the adapter default.
type EnqueueOption struct {
	Queue     string
	MaxRetry  int
	ProcessIn time.Duration
	// Timeout bounds one processing attempt.
	Timeout time.Duration
	// TaskID deduplicates: a second enqueue with the same id is rejected
	// with ErrDuplicateTask.
	TaskID string
}

// ErrDuplicateTask is returned by Enqueue when TaskID is already queued.
var ErrDuplicateTask = errors.New("queue: duplicate task")

type Client interface {
	Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (id string, err error)
	Close() error
}

// Server owns the worker pool. Run blocks until ctx is canceled or Stop is called.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
}
