// Package notification persists user notifications and pushes them live
// through the realtime router. The row is the durable record; the push is
// best-effort and never retried.
package notification

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/OpenFieldOps/open-job-api/internal/metrics"
	"github.com/OpenFieldOps/open-job-api/internal/models"
	"github.com/OpenFieldOps/open-job-api/internal/realtime"
	"github.com/OpenFieldOps/open-job-api/internal/store"
)

// CreateInput is the caller-supplied part of a notification.
type CreateInput struct {
	Title   string                  `json:"title"`
	Message string                  `json:"message"`
	Type    models.NotificationType `json:"type"`
	Payload json.RawMessage         `json:"payload"`
}

// Service owns notification rows; is_read is the only field it mutates
// after creation.
type Service struct {
	store  store.DataStore
	router *realtime.Router
	logger zerolog.Logger
}

// NewService creates a notification service.
func NewService(s store.DataStore, router *realtime.Router, logger zerolog.Logger) *Service {
	return &Service{store: s, router: router, logger: logger}
}

// Send persists the notification, then pushes it to the user's open
// connection if any. Persistence success is independent of delivery: a
// routing failure is logged and the row stays queryable.
func (s *Service) Send(ctx context.Context, userID int64, in CreateInput) (*models.Notification, error) {
	if in.Type == "" {
		in.Type = models.NotificationSystemMessage
	}

	n, err := s.store.CreateNotification(ctx, userID, in.Title, in.Message, in.Type, in.Payload)
	if err != nil {
		return nil, err
	}
	metrics.NotificationsSent.Inc()

	if err := s.router.RouteToUser(ctx, userID, string(in.Type), n); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("notification push failed")
	}

	return n, nil
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID int64) ([]models.Notification, error) {
	return s.store.ListNotifications(ctx, userID)
}

// MarkRead marks one notification as read, scoped to its owner.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID int64) error {
	return s.store.MarkNotificationRead(ctx, userID, notificationID)
}

// MarkAllRead marks every notification of the user as read.
func (s *Service) MarkAllRead(ctx context.Context, userID int64) error {
	return s.store.MarkAllNotificationsRead(ctx, userID)
}

// DeleteAll removes every notification of the user.
func (s *Service) DeleteAll(ctx context.Context, userID int64) error {
	return s.store.DeleteAllNotifications(ctx, userID)
}
