package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	"github.com/tla-bot/tla-go/internal/models"
)

// AppendAnswer logs a resolved answer against its attempt. The record id is
// derived from (attempt, normalized question), so re-appending the same
// answer is a no-op rather than a duplicate row.
func (c *Client) AppendAnswer(ctx context.Context, a models.Answer) error {
	recordID := a.AttemptID + "|" + a.NormalizedText
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("answer", $rid) SET
			attempt_id = $attempt_id,
			normalized_text = $normalized_text,
			question_text = $question_text,
			value = $value,
			confidence = $confidence,
			source = $source,
			answered_at = $answered_at,
			blank = $blank
	`, map[string]any{
		"rid":             recordID,
		"attempt_id":      a.AttemptID,
		"normalized_text": a.NormalizedText,
		"question_text":   a.QuestionText,
		"value":           a.Value,
		"confidence":      a.Confidence,
		"source":          string(a.Source),
		"answered_at":     a.AnsweredAt,
		"blank":           a.Blank,
	})
	if err != nil {
		return fmt.Errorf("append answer: %w", wrapQueryError(err))
	}
	return nil
}

// ListAnswers returns all answers logged for an attempt, in the order they
// were answered.
func (c *Client) ListAnswers(ctx context.Context, attemptID string) ([]models.Answer, error) {
	results, err := surrealdb.Query[[]models.Answer](ctx, c.db, `
		SELECT * FROM answer WHERE attempt_id = $attempt_id ORDER BY answered_at ASC
	`, map[string]any{"attempt_id": attemptID})
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}
