package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/OpenFieldOps/open-job-api/internal/api/middleware"
	"github.com/OpenFieldOps/open-job-api/internal/models"
)

// CreateJobRequest represents the job creation request.
type CreateJobRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
	StartDate   string  `json:"startDate"`
	EndDate     string  `json:"endDate"`
	OperatorIDs []int64 `json:"operatorIds"`
}

// UpdateJobStatusRequest represents the status update request.
type UpdateJobStatusRequest struct {
	Status models.JobStatus `json:"status"`
}

// SetOperatorsRequest represents the operator replacement request.
type SetOperatorsRequest struct {
	OperatorIDs []int64 `json:"operatorIds"`
}

var errInvalidDate = errors.New("dates must be RFC3339")

var validStatuses = map[models.JobStatus]bool{
	models.JobStatusScheduled:  true,
	models.JobStatusInProgress: true,
	models.JobStatusCompleted:  true,
	models.JobStatusCancelled:  true,
}

// CreateJob creates a job with its initial operator assignments (admin
// only).
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if !principal.IsAdmin() {
		h.Error(w, http.StatusUnauthorized, "admin required")
		return
	}

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		h.Error(w, http.StatusBadRequest, "title is required")
		return
	}

	start, end, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.jobs.Create(r.Context(), *principal, &models.Job{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartDate:   start,
		EndDate:     end,
	}, req.OperatorIDs)
	if err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, created)
}

// GetJob retrieves one job the principal may act on.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	jobID, err := urlID(r, "id")
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid job ID")
		return
	}

	found, err := h.jobs.Get(r.Context(), *principal, jobID)
	if err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, found)
}

// ListJobs lists every job the principal created or is assigned to.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	jobs, err := h.jobs.List(r.Context(), *principal)
	if err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, jobs)
}

// UpdateJobStatus changes a job's status and notifies its participants.
func (h *Handler) UpdateJobStatus(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	jobID, err := urlID(r, "id")
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid job ID")
		return
	}

	var req UpdateJobStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !validStatuses[req.Status] {
		h.Error(w, http.StatusBadRequest, "invalid status")
		return
	}

	updated, err := h.jobs.UpdateStatus(r.Context(), *principal, jobID, req.Status)
	if err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, updated)
}

// SetJobOperators replaces a job's operator-assignment set (admin only).
func (h *Handler) SetJobOperators(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	jobID, err := urlID(r, "id")
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid job ID")
		return
	}

	var req SetOperatorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.jobs.SetOperators(r.Context(), *principal, jobID, req.OperatorIDs); err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseDateRange parses optional RFC3339 date bounds, defaulting both to
// now.
func parseDateRange(startStr, endStr string) (time.Time, time.Time, error) {
	now := time.Now()
	start, end := now, now

	var err error
	if startStr != "" {
		if start, err = time.Parse(time.RFC3339, startStr); err != nil {
			return start, end, errInvalidDate
		}
	}
	if endStr != "" {
		if end, err = time.Parse(time.RFC3339, endStr); err != nil {
			return start, end, errInvalidDate
		}
	}
	return start, end, nil
}
