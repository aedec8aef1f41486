package models

import "time"

// AttemptStatus is the lifecycle state of an application attempt.
type AttemptStatus string

const (
	StatusDiscovered AttemptStatus = "discovered"
	StatusInProgress AttemptStatus = "in_progress"
	StatusSubmitted  AttemptStatus = "submitted"
	StatusFailed     AttemptStatus = "failed"
	StatusSkipped    AttemptStatus = "skipped"
)

// Terminal reports whether the status is final. Terminal attempts are
// immutable; the engine refuses further transitions.
func (s AttemptStatus) Terminal() bool {
	return s == StatusSubmitted || s == StatusFailed || s == StatusSkipped
}

// FailureReason classifies why an attempt ended in StatusFailed.
type FailureReason string

const (
	ReasonNavigation   FailureReason = "navigation_error"
	ReasonParse        FailureReason = "parse_error"
	ReasonResolution   FailureReason = "resolution_error"
	ReasonPersistence  FailureReason = "persistence_error"
	ReasonConfirmation FailureReason = "confirmation_error"
)

// ApplicationAttempt is one engine-driven pass at submitting a single job
// application. Keyed by the job id: one attempt per job.
type ApplicationAttempt struct {
	JobID              string         `json:"job_id"`
	Status             AttemptStatus  `json:"status"`
	StepCursor         int            `json:"step_cursor"`
	StartedAt          time.Time      `json:"started_at"`
	EndedAt            *time.Time     `json:"ended_at,omitempty"`
	FailureReason      *FailureReason `json:"failure_reason,omitempty"`
	FailureDetail      *string        `json:"failure_detail,omitempty"`
	ApplicationMethod  string         `json:"application_method,omitempty"`
	ConfirmationNumber *string        `json:"confirmation_number,omitempty"`
	// NeedsReview marks an ambiguous outcome (post-submit confirmation
	// mismatch) that requires manual reconciliation.
	NeedsReview bool `json:"needs_review,omitempty"`
}
