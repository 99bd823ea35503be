// Package gateway manages live websocket connections: handshake
// authentication, broker subscriptions, registry entries, and their
// guaranteed teardown on disconnect.
package gateway

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/OpenFieldOps/open-job-api/internal/access"
	"github.com/OpenFieldOps/open-job-api/internal/auth"
	"github.com/OpenFieldOps/open-job-api/internal/broker"
	"github.com/OpenFieldOps/open-job-api/internal/metrics"
	"github.com/OpenFieldOps/open-job-api/internal/realtime"
)

// Gateway owns the websocket endpoints: /realtime for per-user events and
// /chat/new-message for a chat's live feed.
type Gateway struct {
	verifier auth.Verifier
	access   *access.Resolver
	registry *realtime.Registry
	broker   broker.Broker
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// New creates a Gateway.
func New(verifier auth.Verifier, a *access.Resolver, registry *realtime.Registry, b broker.Broker, logger zerolog.Logger) *Gateway {
	return &Gateway{
		verifier: verifier,
		access:   a,
		registry: registry,
		broker:   b,
		logger:   logger,
		upgrader: websocket.Upgrader{
			// Tokens authenticate connections; origin does not.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// tokenFromRequest pulls the bearer token from the authorization query
// parameter (browsers cannot set headers on websocket dials) or the
// Authorization header.
func tokenFromRequest(r *http.Request) string {
	if tok := r.URL.Query().Get("authorization"); tok != "" {
		return tok
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// UserEvents handles the user-events connection. On a verified handshake
// it registers the principal in the connection registry and forwards
// {type, data} envelopes until disconnect; teardown removes the registry
// entry exactly once.
func (g *Gateway) UserEvents(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn := newConn(ws)

	principal, err := g.verifier.PrincipalFromToken(r.Context(), tokenFromRequest(r))
	if err != nil {
		conn.closeWithReason(websocket.ClosePolicyViolation, "unauthorized")
		return
	}
	userID := principal.ID

	conn.teardown = func() {
		g.registry.Unregister(userID, conn)
		metrics.ConnectionsOpen.WithLabelValues("user").Dec()
	}

	if prev := g.registry.Register(userID, conn); prev != nil {
		// Last connection wins; tell the superseded one.
		if old, ok := prev.(*wsConn); ok {
			old.closeWithReason(websocket.CloseNormalClosure, "superseded")
		}
	}
	metrics.ConnectionsOpen.WithLabelValues("user").Inc()

	g.logger.Debug().Int64("user_id", userID).Str("conn_id", conn.id).Msg("user events connected")

	go conn.writePump()
	conn.readPump()
	conn.close()
}

// ChatFeed handles the chat-feed connection, parameterized by {token,
// chatId}. Membership is checked on open; a verified member is subscribed
// to the chat's channel and each broker message is forwarded verbatim.
// Teardown unsubscribes exactly once.
func (g *Gateway) ChatFeed(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(r.URL.Query().Get("chatId"), 10, 64)
	if err != nil || chatID <= 0 {
		http.Error(w, "invalid chatId", http.StatusBadRequest)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn := newConn(ws)

	principal, err := g.verifier.PrincipalFromToken(r.Context(), tokenFromRequest(r))
	if err != nil {
		conn.closeWithReason(websocket.ClosePolicyViolation, "unauthorized")
		return
	}

	member, err := g.access.CanAccessChat(r.Context(), principal.ID, chatID)
	if err != nil {
		conn.closeWithReason(websocket.CloseInternalServerErr, "access check failed")
		return
	}
	if !member {
		conn.closeWithReason(websocket.ClosePolicyViolation, "unauthorized")
		return
	}

	sub, err := g.broker.Subscribe(r.Context(), func(_ string, payload []byte) {
		// Forwarded verbatim; delivery misses are accepted.
		_ = conn.Send(payload)
	}, broker.ChatChannel(chatID))
	if err != nil {
		g.logger.Error().Err(err).Int64("chat_id", chatID).Msg("chat feed subscribe failed")
		conn.closeWithReason(websocket.CloseInternalServerErr, "subscribe failed")
		return
	}

	conn.teardown = func() {
		_ = sub.Unsubscribe()
		metrics.ConnectionsOpen.WithLabelValues("chat").Dec()
	}
	metrics.ConnectionsOpen.WithLabelValues("chat").Inc()

	g.logger.Debug().Int64("user_id", principal.ID).Int64("chat_id", chatID).Str("conn_id", conn.id).Msg("chat feed connected")

	go conn.writePump()
	conn.readPump()
	conn.close()
}
