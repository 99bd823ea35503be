// Package broker abstracts the publish/subscribe bus shared by all
// process instances. Two channel families exist: one channel per chat
// carrying full message payloads, and a single global channel carrying
// per-user event envelopes.
package broker

import (
	"context"
	"fmt"
)

// UserEventsChannel is the global fan-out channel. Every process
// subscribes to it exactly once at startup; each subscriber re-checks its
// own connection registry and delivers locally if it owns the target
// user's connection.
const UserEventsChannel = "user-events"

// ChatChannel returns the channel name carrying a chat's messages.
func ChatChannel(chatID int64) string {
	return fmt.Sprintf("chat:%d", chatID)
}

// Handler is invoked for every message delivered on a subscribed channel.
// Delivery is best-effort and at-most-once per subscriber, FIFO within a
// channel relative to publish order.
type Handler func(channel string, payload []byte)

// Subscription is a live broker subscription. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe() error
}

// Broker is the publish/subscribe transport bridging processes. A
// subscriber that is not currently connected receives nothing; there is no
// queueing or replay.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, handler Handler, channels ...string) (Subscription, error)
	Close() error
}
