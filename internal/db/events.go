package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	"github.com/tla-bot/tla-go/internal/models"
)

// AppendRunEvent records one entry in the per-attempt run log. Keyed by the
// caller-supplied event id, so replayed writes do not duplicate.
func (c *Client) AppendRunEvent(ctx context.Context, ev models.RunEvent) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("run_event", $id) SET
			run_id = $run_id,
			attempt_id = $attempt_id,
			kind = $kind,
			detail = $detail,
			step = $step,
			at = $at
	`, map[string]any{
		"id":         ev.ID,
		"run_id":     ev.RunID,
		"attempt_id": ev.AttemptID,
		"kind":       string(ev.Kind),
		"detail":     ev.Detail,
		"step":       ev.Step,
		"at":         ev.At,
	})
	if err != nil {
		return fmt.Errorf("append run event: %w", wrapQueryError(err))
	}
	return nil
}

// ListEvents returns the run log for one attempt, oldest first.
func (c *Client) ListEvents(ctx context.Context, attemptID string) ([]models.RunEvent, error) {
	results, err := surrealdb.Query[[]models.RunEvent](ctx, c.db, `
		SELECT * FROM run_event WHERE attempt_id = $attempt_id ORDER BY at ASC
	`, map[string]any{"attempt_id": attemptID})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}
