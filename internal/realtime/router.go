package realtime

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/OpenFieldOps/open-job-api/internal/broker"
	"github.com/OpenFieldOps/open-job-api/internal/metrics"
)

// Router delivers {type, data} events to a target user: directly through
// the local registry when this process owns the user's connection, or via
// the global broker channel so another process can deliver it. If no
// process holds the connection the event is silently dropped; the
// persisted row is the durable record.
type Router struct {
	registry *Registry
	broker   broker.Broker
	logger   zerolog.Logger
}

// NewRouter creates a Router over the given registry and broker.
func NewRouter(registry *Registry, b broker.Broker, logger zerolog.Logger) *Router {
	return &Router{registry: registry, broker: b, logger: logger}
}

// RouteToUser pushes an event to the user's open connection. The local
// fast path skips the broker entirely; it is the common case in a
// single-instance deployment.
func (r *Router) RouteToUser(ctx context.Context, userID int64, eventType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if conn, ok := r.registry.Lookup(userID); ok {
		payload, err := broker.EncodeEvent(eventType, raw)
		if err != nil {
			return err
		}
		if err := conn.Send(payload); err == nil {
			metrics.EventsRouted.WithLabelValues("local").Inc()
			return nil
		}
		// The connection closed between lookup and send; fall through to
		// the broker in case another process now owns the user.
	}

	env, err := broker.EncodeUserEvent(userID, eventType, json.RawMessage(raw))
	if err != nil {
		return err
	}
	if err := r.broker.Publish(ctx, broker.UserEventsChannel, env); err != nil {
		metrics.BrokerPublishErrors.Inc()
		return err
	}
	metrics.EventsRouted.WithLabelValues("broker").Inc()
	return nil
}

// Start subscribes to the global channel. Each process calls this exactly
// once; the returned subscription lives for the process lifetime.
func (r *Router) Start(ctx context.Context) (broker.Subscription, error) {
	return r.broker.Subscribe(ctx, r.handleUserEvent, broker.UserEventsChannel)
}

// handleUserEvent re-runs the registry lookup for envelopes arriving on
// the global channel and delivers locally if this process owns the target
// user's connection. Unowned targets are dropped without error.
func (r *Router) handleUserEvent(_ string, payload []byte) {
	evt, err := broker.DecodeUserEvent(payload)
	if err != nil {
		metrics.MalformedEnvelopes.Inc()
		r.logger.Warn().Err(err).Msg("dropping malformed user event")
		return
	}

	conn, ok := r.registry.Lookup(evt.UserID)
	if !ok {
		metrics.EventsRouted.WithLabelValues("dropped").Inc()
		return
	}

	out, err := broker.EncodeEvent(evt.Type, evt.Data)
	if err != nil {
		r.logger.Error().Err(err).Msg("encode user event")
		return
	}
	if err := conn.Send(out); err != nil {
		metrics.EventsRouted.WithLabelValues("dropped").Inc()
	}
}
