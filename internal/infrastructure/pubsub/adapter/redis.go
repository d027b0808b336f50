package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"go-chatline/internal/infrastructure/pubsub/port"
)

// RedisBus is an adapter that satisfies port.Bus using Redis pub/sub.
// It wraps a go-redis v9 Client.
type RedisBus struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisBus constructs a RedisBus from a redis:// URL and verifies the
// connection with a ping.
func NewRedisBus(url string, log *zap.Logger) (*RedisBus, error) {
	if url == "" {
		return nil, errors.New("redis: url is empty")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewRedisBusFromClient(c, log), nil
}

// NewRedisBusFromClient wraps an existing client.
func NewRedisBusFromClient(c *redis.Client, log *zap.Logger) *RedisBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBus{client: c, log: log}
}

// Ensure interface compliance at compile time
var _ port.Bus = (*RedisBus)(nil)

func (r *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

func (r *RedisBus) Subscribe(ctx context.Context, channel string, handler port.Handler) (port.Subscription, error) {
	ps := r.client.Subscribe(ctx, channel)
	// Receive blocks until Redis confirms the subscription.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	ch := ps.Channel()
	go func() {
		for msg := range ch {
			handler([]byte(msg.Payload))
		}
		r.log.Debug("redis subscription closed", zap.String("channel", channel))
	}()
	return ps, nil
}

func (r *RedisBus) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBus) Close() error {
	return r.client.Close()
}
