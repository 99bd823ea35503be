// Package job exposes the job operations the realtime core participates
// in: access-filtered reads, status updates that notify every participant,
// and admin-only operator assignment.
package job

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/OpenFieldOps/open-job-api/internal/access"
	"github.com/OpenFieldOps/open-job-api/internal/apperr"
	"github.com/OpenFieldOps/open-job-api/internal/models"
	"github.com/OpenFieldOps/open-job-api/internal/realtime"
	"github.com/OpenFieldOps/open-job-api/internal/store"
)

// EventJobUpdated is the realtime event type pushed to a job's
// participants when the job changes.
const EventJobUpdated = "job_updated"

// Service implements job operations gated by the access resolver.
type Service struct {
	store  store.DataStore
	access *access.Resolver
	router *realtime.Router
	logger zerolog.Logger
}

// NewService creates a job service.
func NewService(s store.DataStore, a *access.Resolver, router *realtime.Router, logger zerolog.Logger) *Service {
	return &Service{store: s, access: a, router: router, logger: logger}
}

// Create inserts a job owned by the principal with its initial operator
// assignments.
func (s *Service) Create(ctx context.Context, principal models.Principal, job *models.Job, operatorIDs []int64) (*models.Job, error) {
	job.CreatedBy = principal.ID
	if job.Status == "" {
		job.Status = models.JobStatusScheduled
	}
	return s.store.CreateJob(ctx, job, operatorIDs)
}

// Get retrieves a job. Principals without access get apperr.ErrNotFound:
// never confirm to an outsider that the id exists.
func (s *Service) Get(ctx context.Context, principal models.Principal, jobID int64) (*models.Job, error) {
	ok, err := s.access.CanAccessJob(ctx, principal.ID, jobID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrNotFound
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperr.ErrNotFound
	}
	return job, nil
}

// List returns every job the principal may act on, filtered with the same
// store condition the access gate evaluates.
func (s *Service) List(ctx context.Context, principal models.Principal) ([]models.Job, error) {
	return s.store.ListJobsForUser(ctx, principal.ID)
}

// UpdateStatus changes a job's status and pushes a job_updated event to
// the creator and every assigned operator. Delivery failures are logged
// and do not fail the update.
func (s *Service) UpdateStatus(ctx context.Context, principal models.Principal, jobID int64, status models.JobStatus) (*models.Job, error) {
	ok, err := s.access.CanAccessJob(ctx, principal.ID, jobID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrUnauthorized
	}

	job, err := s.store.UpdateJobStatus(ctx, jobID, status)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperr.ErrNotFound
	}

	s.notifyParticipants(ctx, job)
	return job, nil
}

// SetOperators replaces a job's operator-assignment set. Admin capability
// required.
func (s *Service) SetOperators(ctx context.Context, principal models.Principal, jobID int64, operatorIDs []int64) error {
	if !principal.IsAdmin() {
		return apperr.ErrUnauthorized
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return apperr.ErrNotFound
	}

	if err := s.store.SetJobOperators(ctx, jobID, operatorIDs); err != nil {
		return err
	}

	s.notifyParticipants(ctx, job)
	return nil
}

// notifyParticipants routes a job_updated event to the creator and every
// currently assigned operator.
func (s *Service) notifyParticipants(ctx context.Context, job *models.Job) {
	operatorIDs, err := s.store.ListJobOperators(ctx, job.ID)
	if err != nil {
		s.logger.Error().Err(err).Int64("job_id", job.ID).Msg("list job operators")
		operatorIDs = nil
	}

	targets := append([]int64{job.CreatedBy}, operatorIDs...)
	seen := make(map[int64]struct{}, len(targets))
	for _, userID := range targets {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}

		if err := s.router.RouteToUser(ctx, userID, EventJobUpdated, job); err != nil {
			s.logger.Warn().Err(err).Int64("user_id", userID).Int64("job_id", job.ID).Msg("job update push failed")
		}
	}
}
