package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/OpenFieldOps/open-job-api/internal/apperr"
	"github.com/OpenFieldOps/open-job-api/internal/chat"
	"github.com/OpenFieldOps/open-job-api/internal/job"
	"github.com/OpenFieldOps/open-job-api/internal/notification"
)

// Pinger reports the health of a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	chat          *chat.Service
	jobs          *job.Service
	notifications *notification.Service
	pg            Pinger
	broker        Pinger
}

// NewHandler creates a new Handler with the given services. pg and broker
// are only pinged by the health endpoint and may be nil in partial setups.
func NewHandler(chatSvc *chat.Service, jobSvc *job.Service, notifSvc *notification.Service, pg, broker Pinger) *Handler {
	return &Handler{
		chat:          chatSvc,
		jobs:          jobSvc,
		notifications: notifSvc,
		pg:            pg,
		broker:        broker,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// ServiceError maps service-layer sentinel errors onto HTTP statuses.
func (h *Handler) ServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		h.Error(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, apperr.ErrNotFound):
		h.Error(w, http.StatusNotFound, "not found")
	default:
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// urlID parses a numeric URL parameter.
func urlID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
