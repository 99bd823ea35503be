package models

import "time"

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusScheduled  JobStatus = "scheduled"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Job is a scheduled field-service job. A principal may act on a job iff it
// created the job or appears in its operator-assignment set.
type Job struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Status      JobStatus `json:"status"`
	CreatedBy   int64     `json:"createdBy"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// JobOperator is an operator assignment. The set is mutable (admin-only)
// with no uniqueness constraint beyond the (job, operator) pair.
type JobOperator struct {
	ID         int64     `json:"id"`
	JobID      int64     `json:"jobId"`
	OperatorID int64     `json:"operatorId"`
	AssignedAt time.Time `json:"assignedAt"`
}
