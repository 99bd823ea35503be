package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/OpenFieldOps/open-job-api/internal/api/middleware"
	"github.com/OpenFieldOps/open-job-api/internal/notification"
)

// SendNotificationRequest represents the admin notification-send request.
type SendNotificationRequest struct {
	UserID int64 `json:"userId"`
	notification.CreateInput
}

// SendNotification persists a notification for a user and pushes it live
// (admin only).
func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if !principal.IsAdmin() {
		h.Error(w, http.StatusUnauthorized, "admin required")
		return
	}

	var req SendNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID <= 0 {
		h.Error(w, http.StatusBadRequest, "userId is required")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		h.Error(w, http.StatusBadRequest, "title is required")
		return
	}

	sent, err := h.notifications.Send(r.Context(), req.UserID, req.CreateInput)
	if err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, sent)
}

// ListNotifications returns the principal's notifications, newest first.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	list, err := h.notifications.List(r.Context(), principal.ID)
	if err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, list)
}

// MarkNotificationRead marks one of the principal's notifications as read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	notificationID, err := urlID(r, "id")
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid notification ID")
		return
	}

	if err := h.notifications.MarkRead(r.Context(), principal.ID, notificationID); err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MarkAllNotificationsRead marks every notification of the principal as
// read.
func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.notifications.MarkAllRead(r.Context(), principal.ID); err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DeleteAllNotifications removes every notification of the principal.
func (h *Handler) DeleteAllNotifications(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.notifications.DeleteAll(r.Context(), principal.ID); err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
