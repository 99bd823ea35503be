package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/OpenFieldOps/open-job-api/internal/access"
	"github.com/OpenFieldOps/open-job-api/internal/apperr"
	"github.com/OpenFieldOps/open-job-api/internal/broker"
	"github.com/OpenFieldOps/open-job-api/internal/models"
	"github.com/OpenFieldOps/open-job-api/internal/realtime"
	"github.com/OpenFieldOps/open-job-api/internal/store"
)

// stubVerifier accepts tokens of the form "user-<id>".
type stubVerifier struct{}

func (stubVerifier) PrincipalFromToken(_ context.Context, token string) (*models.Principal, error) {
	if !strings.HasPrefix(token, "user-") {
		return nil, apperr.ErrUnauthorized
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(token, "user-"), 10, 64)
	if err != nil || id <= 0 {
		return nil, apperr.ErrUnauthorized
	}
	return &models.Principal{ID: id, Role: models.RoleOperator}, nil
}

type fakeStore struct {
	store.DataStore

	members map[int64]map[int64]bool
}

func (f *fakeStore) UserIsChatMember(_ context.Context, userID, chatID int64) (bool, error) {
	return f.members[chatID][userID], nil
}

type fixture struct {
	server   *httptest.Server
	registry *realtime.Registry
	router   *realtime.Router
	broker   *broker.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mem := broker.NewMemory()
	registry := realtime.NewRegistry()
	router := realtime.NewRouter(registry, mem, zerolog.Nop())
	fs := &fakeStore{members: map[int64]map[int64]bool{
		5: {7: true},
	}}

	gw := New(stubVerifier{}, access.NewResolver(fs), registry, mem, zerolog.Nop())

	mux := http.NewServeMux()
	mux.HandleFunc("/realtime", gw.UserEvents)
	mux.HandleFunc("/chat/new-message", gw.ChatFeed)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &fixture{server: server, registry: registry, router: router, broker: mem}
}

func (f *fixture) dial(t *testing.T, path, query string) (*websocket.Conn, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + path
	if query != "" {
		url += "?" + query
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	return conn, err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected the server to close the connection")
	}
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected a close frame, got %v", err)
	}
	if closeErr.Code != code {
		t.Fatalf("expected close code %d, got %d", code, closeErr.Code)
	}
}

func TestUserEventsRejectsBadToken(t *testing.T) {
	fx := newFixture(t)

	conn, err := fx.dial(t, "/realtime", "authorization=bogus")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	expectClose(t, conn, websocket.ClosePolicyViolation)
	if fx.registry.Len() != 0 {
		t.Fatal("rejected handshake must not register a connection")
	}
}

func TestUserEventsDelivery(t *testing.T) {
	fx := newFixture(t)

	conn, err := fx.dial(t, "/realtime", "authorization=user-7")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return fx.registry.Len() == 1 })

	if err := fx.router.RouteToUser(context.Background(), 7, "system_message", map[string]string{"title": "hi"}); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}

	var evt broker.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Type != "system_message" {
		t.Fatalf("expected type system_message, got %q", evt.Type)
	}
}

func TestUserEventsLastConnectionWins(t *testing.T) {
	fx := newFixture(t)

	first, err := fx.dial(t, "/realtime", "authorization=user-7")
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	waitFor(t, func() bool { return fx.registry.Len() == 1 })

	second, err := fx.dial(t, "/realtime", "authorization=user-7")
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	// The superseded connection gets a normal close.
	expectClose(t, first, websocket.CloseNormalClosure)

	// The registry still holds exactly one connection for the user, and
	// delivery reaches the new one.
	waitFor(t, func() bool { return fx.registry.Len() == 1 })

	if err := fx.router.RouteToUser(context.Background(), 7, "system_message", nil); err != nil {
		t.Fatal(err)
	}
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := second.ReadMessage(); err != nil {
		t.Fatal(err)
	}
}

func TestUserEventsUnregisterOnDisconnect(t *testing.T) {
	fx := newFixture(t)

	conn, err := fx.dial(t, "/realtime", "authorization=user-7")
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return fx.registry.Len() == 1 })

	conn.Close()
	waitFor(t, func() bool { return fx.registry.Len() == 0 })
}

func TestChatFeedRejectsNonMember(t *testing.T) {
	fx := newFixture(t)

	// User 8 is not a member of chat 5.
	conn, err := fx.dial(t, "/chat/new-message", "chatId=5&authorization=user-8")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	expectClose(t, conn, websocket.ClosePolicyViolation)
}

func TestChatFeedForwardsVerbatim(t *testing.T) {
	fx := newFixture(t)

	conn, err := fx.dial(t, "/chat/new-message", "chatId=5&authorization=user-7")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Subscription is confirmed before the handler returns from the
	// handshake path, but give the pump a beat to come up.
	payload := []byte(`{"id":1,"chatId":5,"userId":7,"text":"hello","files":[]}`)
	var got []byte
	waitFor(t, func() bool {
		if err := fx.broker.Publish(context.Background(), broker.ChatChannel(5), payload); err != nil {
			return false
		}
		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return false
		}
		got = msg
		return true
	})

	if string(got) != string(payload) {
		t.Fatalf("payload rewritten in transit: %s", got)
	}
}
