// Package knowledge implements the shared question/answer repository: the
// long-lived mapping of normalized question text to the best-known answer.
// It is the sole writer of knowledge records.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tla-bot/tla-go/internal/db"
	"github.com/tla-bot/tla-go/internal/models"
)

// Backend is the persistence contract the store writes through. *db.Client
// satisfies it; tests substitute an in-memory fake.
type Backend interface {
	FindKnowledge(ctx context.Context, normalizedText string) (*models.KnowledgeEntry, error)
	UpsertKnowledge(ctx context.Context, entry models.KnowledgeEntry) error
	IncrementUsage(ctx context.Context, normalizedText string) error
	SearchKnowledge(ctx context.Context, queryText string, embedding []float32, limit int) ([]db.KnowledgeMatch, error)
}

// Embedder produces question embeddings for semantic fuzzy matching.
// Optional: with a nil Embedder the store matches by token overlap instead.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the knowledge store. Publishes of the same key are serialized
// through a per-key mutex on top of the backend's confidence-merging upsert,
// so concurrent resolutions of one question cannot lose updates.
type Store struct {
	backend  Backend
	embedder Embedder
	logger   *slog.Logger

	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

// NewStore creates a knowledge store. embedder may be nil.
func NewStore(backend Backend, embedder Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend:  backend,
		embedder: embedder,
		logger:   logger,
		keys:     make(map[string]*sync.Mutex),
	}
}

// Exact returns the entry stored verbatim under the normalized text, or nil
// when none exists. A hit bumps the usage counter.
func (s *Store) Exact(ctx context.Context, normalizedText string) (*models.KnowledgeEntry, error) {
	entry, err := s.backend.FindKnowledge(ctx, normalizedText)
	if err != nil {
		return nil, fmt.Errorf("exact lookup: %w", err)
	}
	if entry == nil {
		return nil, nil
	}
	if err := s.backend.IncrementUsage(ctx, normalizedText); err != nil {
		s.logger.Warn("failed to update usage count", "key", normalizedText, "error", err)
	}
	return entry, nil
}

// Fuzzy returns the closest stored entry and its similarity in [0,1]. With
// an embedder the similarity is cosine distance over an HNSW query; without
// one it is token overlap over full-text candidates. Returns nil when the
// store is empty of candidates.
func (s *Store) Fuzzy(ctx context.Context, q models.Question) (*models.KnowledgeEntry, float64, error) {
	if s.embedder != nil {
		emb, err := s.embedder.Embed(ctx, q.Text)
		if err != nil {
			s.logger.Warn("question embedding failed, falling back to token overlap", "error", err)
		} else {
			matches, err := s.backend.SearchKnowledge(ctx, "", emb, 3)
			if err != nil {
				return nil, 0, fmt.Errorf("vector search: %w", err)
			}
			if len(matches) == 0 {
				return nil, 0, nil
			}
			best := matches[0]
			return &best.KnowledgeEntry, best.Score, nil
		}
	}

	matches, err := s.backend.SearchKnowledge(ctx, q.Text, nil, 5)
	if err != nil {
		return nil, 0, fmt.Errorf("fulltext search: %w", err)
	}

	var (
		best      *models.KnowledgeEntry
		bestScore float64
	)
	for i := range matches {
		score := models.TokenOverlap(q.NormalizedText, matches[i].NormalizedText)
		if score > bestScore {
			best = &matches[i].KnowledgeEntry
			bestScore = score
		}
	}
	return best, bestScore, nil
}

// RecordUsage bumps the usage counter for a fuzzy-matched entry.
func (s *Store) RecordUsage(ctx context.Context, normalizedText string) {
	if err := s.backend.IncrementUsage(ctx, normalizedText); err != nil {
		s.logger.Warn("failed to update usage count", "key", normalizedText, "error", err)
	}
}

// Publish merges an entry into the repository. The write is serialized per
// key and the backend merge keeps whichever value carries the higher
// confidence.
func (s *Store) Publish(ctx context.Context, entry models.KnowledgeEntry) error {
	if entry.NormalizedText == "" {
		return fmt.Errorf("publish: empty knowledge key")
	}

	if s.embedder != nil && entry.Embedding == nil {
		emb, err := s.embedder.Embed(ctx, entry.QuestionText)
		if err != nil {
			s.logger.Warn("entry embedding failed, publishing without vector", "key", entry.NormalizedText, "error", err)
		} else {
			entry.Embedding = emb
		}
	}

	lock := s.keyLock(entry.NormalizedText)
	lock.Lock()
	defer lock.Unlock()

	if err := s.backend.UpsertKnowledge(ctx, entry); err != nil {
		return fmt.Errorf("publish %q: %w", entry.NormalizedText, err)
	}
	s.logger.Debug("knowledge published", "key", entry.NormalizedText, "confidence", entry.Confidence)
	return nil
}

func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.keys[key]
	if !ok {
		lock = &sync.Mutex{}
		s.keys[key] = lock
	}
	return lock
}
