package models

import (
	"encoding/json"
	"time"
)

// NotificationType tags a notification with its origin.
type NotificationType string

const (
	NotificationSystemMessage NotificationType = "system_message"
	NotificationJobAssigned   NotificationType = "job_assigned"
	NotificationJobUpdated    NotificationType = "job_updated"
)

// Notification is a persisted user notification. is_read is the only
// externally mutable field after creation; the row is the durable record,
// the live push is a best-effort nudge.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"userId"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Payload   json.RawMessage  `json:"payload"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}
