package port

import (
	"context"
	"errors"
)

// Handler receives one published payload. It runs on the subscription's
// delivery goroutine, so it must not block for long.
type Handler func(payload []byte)

// Subscription is an active channel subscription.
type Subscription interface {
	Close() error
}

// Bus is the cross-instance broadcast layer used by the realtime hub.
// Implementations should be concurrency-safe and preserve publish order per
// channel for a single publisher.
//
// Note: payloads are opaque bytes so the port stays free of serialization
// concerns; the hub owns the envelope format.
type Bus interface {
	// Publish broadcasts payload to every subscriber of channel, including
	// subscribers in the publishing process.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe registers handler on channel. It returns once the subscription
	// is active so that later publishes are guaranteed to be observed.
	Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error)

	// Ping verifies connectivity with the broker.
	Ping(ctx context.Context) error

	// Close releases any resources held by the bus.
	Close() error
}

// ErrClosed is returned by adapters used after Close.
var ErrClosed = errors.New("pubsub: bus closed")
