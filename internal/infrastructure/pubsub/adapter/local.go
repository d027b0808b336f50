package adapter

import (
	"context"
	"sync"

	"go-chatline/internal/infrastructure/pubsub/port"
)

// LocalBus delivers publishes to subscribers of the same process. It is used
// when no broker is configured, i.e. a single-instance deployment.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*localSubscription]struct{}
	closed bool
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[*localSubscription]struct{})}
}

var _ port.Bus = (*LocalBus)(nil)

type localSubscription struct {
	bus     *LocalBus
	channel string
	handler port.Handler
	once    sync.Once
}

func (s *localSubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if set, ok := s.bus.subs[s.channel]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.bus.subs, s.channel)
			}
		}
	})
	return nil
}

// Publish calls every handler synchronously, in subscription-independent order.
func (b *LocalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return port.ErrClosed
	}
	handlers := make([]port.Handler, 0, len(b.subs[channel]))
	for s := range b.subs[channel] {
		handlers = append(handlers, s.handler)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (b *LocalBus) Subscribe(_ context.Context, channel string, handler port.Handler) (port.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, port.ErrClosed
	}
	s := &localSubscription{bus: b, channel: channel, handler: handler}
	set := b.subs[channel]
	if set == nil {
		set = make(map[*localSubscription]struct{})
		b.subs[channel] = set
	}
	set[s] = struct{}{}
	return s, nil
}

func (b *LocalBus) Ping(context.Context) error { return nil }

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string]map[*localSubscription]struct{})
	return nil
}
