package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	"github.com/tla-bot/tla-go/internal/models"
)

// UpsertAttempt persists an attempt's status and step cursor as one atomic
// write. Terminal attempts are immutable: writing a different status over a
// terminal record throws, which surfaces as ErrConflict. Re-applying an
// identical terminal write succeeds and leaves state unchanged.
func (c *Client) UpsertAttempt(ctx context.Context, a models.ApplicationAttempt) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		LET $existing = (SELECT status, step_cursor FROM type::record("attempt", $id));
		IF array::len($existing) > 0
			AND $existing[0].status IN ["submitted", "failed", "skipped"]
			AND ($existing[0].status != $status OR $existing[0].step_cursor != $step_cursor) {
			THROW "attempt " + $id + " is terminal"
		};
		UPSERT type::record("attempt", $id) SET
			job_id = $id,
			status = $status,
			step_cursor = $step_cursor,
			started_at = $started_at,
			ended_at = $ended_at,
			failure_reason = $failure_reason,
			failure_detail = $failure_detail,
			application_method = $application_method,
			confirmation_number = $confirmation_number,
			needs_review = $needs_review;
	`, map[string]any{
		"id":                  a.JobID,
		"status":              string(a.Status),
		"step_cursor":         a.StepCursor,
		"started_at":          a.StartedAt,
		"ended_at":            a.EndedAt,
		"failure_reason":      a.FailureReason,
		"failure_detail":      a.FailureDetail,
		"application_method":  a.ApplicationMethod,
		"confirmation_number": a.ConfirmationNumber,
		"needs_review":        a.NeedsReview,
	})
	if err != nil {
		return fmt.Errorf("upsert attempt: %w", wrapQueryError(err))
	}
	return nil
}

// GetAttempt retrieves an attempt by job id. Returns nil, nil when no
// attempt exists, so callers can tell "never attempted" from a store
// failure.
func (c *Client) GetAttempt(ctx context.Context, jobID string) (*models.ApplicationAttempt, error) {
	results, err := surrealdb.Query[[]models.ApplicationAttempt](ctx, c.db, `
		SELECT * FROM type::record("attempt", $id)
	`, map[string]any{"id": jobID})
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// IsAlreadyAttempted reports whether any attempt record exists for the job.
// Non-terminal attempts count: they are resumed through the resume path, not
// dequeued again as fresh jobs.
func (c *Client) IsAlreadyAttempted(ctx context.Context, jobID string) (bool, error) {
	results, err := surrealdb.Query[[]struct {
		C int `json:"c"`
	}](ctx, c.db, `
		SELECT count() AS c FROM type::record("attempt", $id)
	`, map[string]any{"id": jobID})
	if err != nil {
		return false, fmt.Errorf("check attempted: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return false, nil
	}
	return (*results)[0].Result[0].C > 0, nil
}

// ListNonTerminalAttempts returns attempts left in a resumable state,
// oldest first.
func (c *Client) ListNonTerminalAttempts(ctx context.Context) ([]models.ApplicationAttempt, error) {
	results, err := surrealdb.Query[[]models.ApplicationAttempt](ctx, c.db, `
		SELECT * FROM attempt
		WHERE status IN ["discovered", "in_progress"]
		ORDER BY started_at ASC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list non-terminal attempts: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

// ListAttempts returns the most recent attempts.
func (c *Client) ListAttempts(ctx context.Context, limit int) ([]models.ApplicationAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	results, err := surrealdb.Query[[]models.ApplicationAttempt](ctx, c.db, `
		SELECT * FROM attempt ORDER BY started_at DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

// StatusCount pairs an attempt status with its record count.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// CountAttemptsByStatus aggregates attempts per status for run reporting.
func (c *Client) CountAttemptsByStatus(ctx context.Context) ([]StatusCount, error) {
	results, err := surrealdb.Query[[]StatusCount](ctx, c.db, `
		SELECT status, count() AS count FROM attempt GROUP BY status ORDER BY count DESC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}
