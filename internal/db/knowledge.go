package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	"github.com/tla-bot/tla-go/internal/models"
)

// UpsertKnowledge merges an entry into the shared Q&A repository. The merge
// is confidence-weighted inside a single UPSERT: an incoming value replaces
// the stored one only when its confidence is at least as high, so concurrent
// publishes of the same key cannot lose the better answer. Usage counts are
// preserved; IncrementUsage owns them.
func (c *Client) UpsertKnowledge(ctx context.Context, e models.KnowledgeEntry) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("knowledge", $key) SET
			normalized_text = $key,
			question_text = IF confidence != NONE AND confidence > $confidence THEN question_text ELSE $question_text END,
			value = IF confidence != NONE AND confidence > $confidence THEN value ELSE $value END,
			kind = $kind,
			embedding = IF confidence != NONE AND confidence > $confidence THEN embedding ELSE $embedding END,
			confidence = math::max([confidence ?? 0.0, $confidence]),
			times_asked = times_asked ?? 0,
			updated_at = time::now()
	`, map[string]any{
		"key":           e.NormalizedText,
		"question_text": e.QuestionText,
		"value":         e.Value,
		"kind":          string(e.Kind),
		"confidence":    e.Confidence,
		"embedding":     embeddingOrEmpty(e.Embedding),
	})
	if err != nil {
		return fmt.Errorf("upsert knowledge: %w", wrapQueryError(err))
	}
	return nil
}

// FindKnowledge retrieves the entry for a normalized question text. Returns
// nil, nil when no entry exists.
func (c *Client) FindKnowledge(ctx context.Context, normalizedText string) (*models.KnowledgeEntry, error) {
	results, err := surrealdb.Query[[]models.KnowledgeEntry](ctx, c.db, `
		SELECT * FROM type::record("knowledge", $key)
	`, map[string]any{"key": normalizedText})
	if err != nil {
		return nil, fmt.Errorf("find knowledge: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// IncrementUsage bumps the usage counter for an entry.
func (c *Client) IncrementUsage(ctx context.Context, normalizedText string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("knowledge", $key) SET times_asked += 1
	`, map[string]any{"key": normalizedText})
	if err != nil {
		return fmt.Errorf("increment usage: %w", wrapQueryError(err))
	}
	return nil
}

// KnowledgeMatch is a fuzzy-search candidate with its vector similarity.
// Score is zero for BM25 candidates; the caller rescores those by token
// overlap.
type KnowledgeMatch struct {
	models.KnowledgeEntry
	Score float64 `json:"score"`
}

// SearchKnowledge returns fuzzy-match candidates for a question. With an
// embedding it runs an HNSW nearest-neighbour query and reports cosine
// similarity; without one it falls back to BM25 over the question text.
func (c *Client) SearchKnowledge(ctx context.Context, queryText string, embedding []float32, limit int) ([]KnowledgeMatch, error) {
	if limit <= 0 {
		limit = 5
	}

	var (
		sql  string
		vars map[string]any
	)
	if len(embedding) > 0 {
		sql = fmt.Sprintf(`
			SELECT *, vector::similarity::cosine(embedding, $emb) AS score
			FROM knowledge
			WHERE embedding <|%d,40|> $emb
			ORDER BY score DESC
		`, limit)
		vars = map[string]any{"emb": embedding}
	} else {
		sql = `
			SELECT * FROM knowledge
			WHERE question_text @0@ $q
			LIMIT $limit
		`
		vars = map[string]any{"q": queryText, "limit": limit}
	}

	results, err := surrealdb.Query[[]KnowledgeMatch](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

// ListKnowledge returns entries ordered by usage, most asked first.
func (c *Client) ListKnowledge(ctx context.Context, limit int) ([]models.KnowledgeEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	results, err := surrealdb.Query[[]models.KnowledgeEntry](ctx, c.db, `
		SELECT * FROM knowledge ORDER BY times_asked DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

// DeleteKnowledge removes an entry. Deleting an absent key is a no-op.
func (c *Client) DeleteKnowledge(ctx context.Context, normalizedText string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE type::record("knowledge", $key)
	`, map[string]any{"key": normalizedText})
	if err != nil {
		return fmt.Errorf("delete knowledge: %w", wrapQueryError(err))
	}
	return nil
}

func embeddingOrEmpty(emb []float32) []float32 {
	if emb == nil {
		return []float32{}
	}
	return emb
}
