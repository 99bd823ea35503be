package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/OpenFieldOps/open-job-api/internal/apperr"
	"github.com/OpenFieldOps/open-job-api/internal/broker"
	"github.com/OpenFieldOps/open-job-api/internal/models"
	"github.com/OpenFieldOps/open-job-api/internal/realtime"
	"github.com/OpenFieldOps/open-job-api/internal/store"
)

type fakeStore struct {
	store.DataStore

	notifications []models.Notification
	nextID        int64
}

func (f *fakeStore) CreateNotification(_ context.Context, userID int64, title, message string, typ models.NotificationType, payload json.RawMessage) (*models.Notification, error) {
	f.nextID++
	n := models.Notification{
		ID:        f.nextID,
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      typ,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	f.notifications = append(f.notifications, n)
	return &n, nil
}

func (f *fakeStore) ListNotifications(_ context.Context, userID int64) ([]models.Notification, error) {
	var out []models.Notification
	for i := len(f.notifications) - 1; i >= 0; i-- {
		if f.notifications[i].UserID == userID {
			out = append(out, f.notifications[i])
		}
	}
	return out, nil
}

func (f *fakeStore) MarkNotificationRead(_ context.Context, userID, id int64) error {
	for i := range f.notifications {
		if f.notifications[i].ID == id && f.notifications[i].UserID == userID {
			f.notifications[i].IsRead = true
			return nil
		}
	}
	return apperr.ErrNotFound
}

type fakeConn struct {
	sent [][]byte
}

func (c *fakeConn) Send(payload []byte) error {
	c.sent = append(c.sent, payload)
	return nil
}

func newFixture() (*fakeStore, *realtime.Registry, *Service) {
	fs := &fakeStore{}
	registry := realtime.NewRegistry()
	router := realtime.NewRouter(registry, broker.NewMemory(), zerolog.Nop())
	return fs, registry, NewService(fs, router, zerolog.Nop())
}

func TestSendPersistsAndPushes(t *testing.T) {
	fs, registry, svc := newFixture()

	conn := &fakeConn{}
	registry.Register(7, conn)

	sent, err := svc.Send(context.Background(), 7, CreateInput{
		Title:   "Job assigned",
		Message: "You were assigned to a job",
		Type:    models.NotificationJobAssigned,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(fs.notifications) != 1 {
		t.Fatalf("expected 1 persisted notification, got %d", len(fs.notifications))
	}
	if len(conn.sent) != 1 {
		t.Fatalf("expected 1 pushed event, got %d", len(conn.sent))
	}

	var evt broker.Event
	if err := json.Unmarshal(conn.sent[0], &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Type != string(models.NotificationJobAssigned) {
		t.Fatalf("expected type %s, got %q", models.NotificationJobAssigned, evt.Type)
	}

	var pushed models.Notification
	if err := json.Unmarshal(evt.Data, &pushed); err != nil {
		t.Fatal(err)
	}
	if pushed.ID != sent.ID {
		t.Fatal("pushed notification does not match the persisted row")
	}
}

func TestSendDefaultsToSystemMessage(t *testing.T) {
	fs, _, svc := newFixture()

	sent, err := svc.Send(context.Background(), 7, CreateInput{Title: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if sent.Type != models.NotificationSystemMessage {
		t.Fatalf("expected system_message, got %q", sent.Type)
	}
	if len(fs.notifications) != 1 {
		t.Fatal("notification not persisted")
	}
}

func TestSendSurvivesOfflineUser(t *testing.T) {
	fs, _, svc := newFixture()

	// No connection registered: the push goes to the broker channel and
	// is dropped there, the row still lands.
	if _, err := svc.Send(context.Background(), 7, CreateInput{Title: "offline"}); err != nil {
		t.Fatal(err)
	}
	if len(fs.notifications) != 1 {
		t.Fatal("notification must persist regardless of delivery")
	}
}

func TestMarkReadScopedToOwner(t *testing.T) {
	fs, _, svc := newFixture()

	sent, err := svc.Send(context.Background(), 7, CreateInput{Title: "read me"})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.MarkRead(context.Background(), 8, sent.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong owner, got %v", err)
	}
	if err := svc.MarkRead(context.Background(), 7, sent.ID); err != nil {
		t.Fatal(err)
	}
	if !fs.notifications[0].IsRead {
		t.Fatal("notification not marked read")
	}
}

func TestListNewestFirst(t *testing.T) {
	_, _, svc := newFixture()

	first, _ := svc.Send(context.Background(), 7, CreateInput{Title: "first"})
	second, _ := svc.Send(context.Background(), 7, CreateInput{Title: "second"})

	list, err := svc.List(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatal("expected newest first ordering")
	}
}
