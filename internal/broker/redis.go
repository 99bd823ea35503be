package broker

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Redis is a Broker over Redis pub/sub. Each subscription holds its own
// PubSub connection and a single pump goroutine, so delivery within a
// channel stays in publish order.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis broker from a connection URL.
func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Redis{client: client}, nil
}

// Client exposes the underlying connection for collaborators that need
// plain Redis commands, such as the rate limiter.
func (b *Redis) Client() *redis.Client {
	return b.client
}

// Publish sends a payload to every current subscriber of the channel.
func (b *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

// Subscribe starts consuming the given channels. The handler runs on a
// dedicated goroutine until Unsubscribe.
func (b *Redis) Subscribe(ctx context.Context, handler Handler, channels ...string) (Subscription, error) {
	sub := b.client.Subscribe(ctx, channels...)

	// Confirm the subscription before returning so a publish immediately
	// after Subscribe cannot race past it.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	go func() {
		for msg := range sub.Channel() {
			handler(msg.Channel, []byte(msg.Payload))
		}
	}()

	return &redisSubscription{sub: sub}, nil
}

// Ping checks the Redis connection.
func (b *Redis) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (b *Redis) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	sub *redis.PubSub
}

// Unsubscribe closes the PubSub connection, which ends the pump goroutine.
// Closing twice is a no-op.
func (s *redisSubscription) Unsubscribe() error {
	return s.sub.Close()
}
