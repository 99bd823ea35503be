package broker

import (
	"context"
	"sync"
)

const memoryQueueSize = 256

// Memory is an in-process Broker. It backs single-instance deployments
// that run without Redis, and the test suite. Semantics match the Redis
// broker: best-effort, at-most-once, FIFO per channel per subscriber; a
// subscriber whose queue is full loses the message rather than stalling
// the publisher.
type Memory struct {
	mu   sync.RWMutex
	subs map[string][]*memorySub
}

// NewMemory creates an in-process broker.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]*memorySub)}
}

type delivery struct {
	channel string
	payload []byte
}

type memorySub struct {
	broker   *Memory
	channels []string
	handler  Handler
	queue    chan delivery
	done     chan struct{}
	once     sync.Once
}

// Ping reports broker health. The in-process broker is always reachable.
func (b *Memory) Ping(context.Context) error {
	return nil
}

// Publish enqueues the payload to every current subscriber of the channel.
func (b *Memory) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[channel] {
		select {
		case sub.queue <- delivery{channel: channel, payload: payload}:
		default:
			// Slow subscriber: drop rather than block the publisher.
		}
	}
	return nil
}

// Subscribe starts consuming the given channels on a dedicated goroutine.
func (b *Memory) Subscribe(_ context.Context, handler Handler, channels ...string) (Subscription, error) {
	sub := &memorySub{
		broker:   b,
		channels: channels,
		handler:  handler,
		queue:    make(chan delivery, memoryQueueSize),
		done:     make(chan struct{}),
	}

	b.mu.Lock()
	for _, ch := range channels {
		b.subs[ch] = append(b.subs[ch], sub)
	}
	b.mu.Unlock()

	go sub.pump()

	return sub, nil
}

// Close drops all subscriptions.
func (b *Memory) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string][]*memorySub)
	b.mu.Unlock()

	seen := make(map[*memorySub]struct{})
	for _, list := range subs {
		for _, sub := range list {
			if _, ok := seen[sub]; ok {
				continue
			}
			seen[sub] = struct{}{}
			sub.stop()
		}
	}
	return nil
}

func (s *memorySub) pump() {
	for {
		select {
		case d := <-s.queue:
			s.handler(d.channel, d.payload)
		case <-s.done:
			return
		}
	}
}

func (s *memorySub) stop() {
	s.once.Do(func() { close(s.done) })
}

// Unsubscribe detaches the subscription and ends its pump goroutine.
// Calling it twice is a no-op.
func (s *memorySub) Unsubscribe() error {
	s.broker.mu.Lock()
	for _, ch := range s.channels {
		list := s.broker.subs[ch]
		for i, sub := range list {
			if sub == s {
				s.broker.subs[ch] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	s.broker.mu.Unlock()

	s.stop()
	return nil
}
