// Package resolver implements tiered answer resolution: Knowledge Store
// exact match, fuzzy match with confidence decay, then the generative
// fallback with constraint validation. Cheaper, more trusted sources always
// win.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tla-bot/tla-go/internal/llm"
	"github.com/tla-bot/tla-go/internal/models"
	"golang.org/x/sync/errgroup"
)

// Resolution errors. The flow state machine decides whether an unanswerable
// question is fatal for the attempt; the resolver only reports it.
var (
	ErrUnanswerable       = errors.New("question unanswerable")
	ErrServiceUnavailable = errors.New("answer service unavailable")
)

// KnowledgeSource is the Knowledge Store surface the resolver consults.
// *knowledge.Store satisfies it.
type KnowledgeSource interface {
	Exact(ctx context.Context, normalizedText string) (*models.KnowledgeEntry, error)
	Fuzzy(ctx context.Context, q models.Question) (*models.KnowledgeEntry, float64, error)
	RecordUsage(ctx context.Context, normalizedText string)
	Publish(ctx context.Context, entry models.KnowledgeEntry) error
}

// Generator is the external generative answer service. *llm.Model satisfies
// it.
type Generator interface {
	GenerateAnswer(ctx context.Context, q models.Question, strict bool) (string, error)
}

// Options tune the resolution thresholds.
type Options struct {
	// PublishThreshold is the minimum confidence for writing an answer
	// back into the Knowledge Store.
	PublishThreshold float64
	// FuzzyDecay scales a fuzzy-matched entry's confidence down to
	// reflect the imperfect match.
	FuzzyDecay float64
	// FuzzyThreshold is the minimum similarity for accepting a fuzzy
	// match: cosine when embeddings are configured, token overlap
	// otherwise.
	FuzzyThreshold float64
	// GenerativeConfidence is assigned to validated fallback answers.
	GenerativeConfidence float64
	// Concurrency bounds parallel fallback calls within one step.
	Concurrency int
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		PublishThreshold:     0.75,
		FuzzyDecay:           0.8,
		FuzzyThreshold:       0.55,
		GenerativeConfidence: 0.85,
		Concurrency:          4,
	}
}

// Resolver produces answers for screening questions.
type Resolver struct {
	store     KnowledgeSource
	generator Generator
	logger    *slog.Logger
	opts      Options
}

// New creates a resolver. generator may be nil, in which case tier 3 is
// unavailable and unknown required questions fail as unanswerable.
func New(store KnowledgeSource, generator Generator, logger *slog.Logger, opts Options) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Resolver{store: store, generator: generator, logger: logger, opts: opts}
}

// Resolve produces an answer for one question, trying each tier in order.
func (r *Resolver) Resolve(ctx context.Context, attemptID string, q models.Question) (models.Answer, error) {
	// Uploads and unrecognized shapes cannot be auto-answered.
	if q.Kind == models.KindFileUpload || q.Kind == models.KindUnknown {
		if q.Required {
			return models.Answer{}, fmt.Errorf("%w: cannot auto-answer %s question %q", ErrUnanswerable, q.Kind, q.Text)
		}
		return r.blankAnswer(attemptID, q), nil
	}

	// Tier 1: exact match, confidence unchanged.
	if entry, err := r.store.Exact(ctx, q.NormalizedText); err != nil {
		return models.Answer{}, err
	} else if entry != nil {
		r.logger.Debug("resolved from knowledge store", "question", q.NormalizedText, "tier", "exact")
		return r.answerFrom(attemptID, q, entry.Value, entry.Confidence, models.SourceKnowledgeStore), nil
	}

	// Tier 2: fuzzy match with decayed confidence.
	entry, similarity, err := r.store.Fuzzy(ctx, q)
	if err != nil {
		return models.Answer{}, err
	}
	if entry != nil && similarity >= r.opts.FuzzyThreshold {
		confidence := entry.Confidence * r.opts.FuzzyDecay
		if err := validateValue(q, entry.Value); err == nil {
			r.logger.Debug("resolved from knowledge store", "question", q.NormalizedText,
				"tier", "fuzzy", "matched", entry.NormalizedText, "similarity", similarity)
			r.store.RecordUsage(ctx, entry.NormalizedText)
			ans := r.answerFrom(attemptID, q, entry.Value, confidence, models.SourceKnowledgeStore)
			r.maybePublish(ctx, q, ans)
			return ans, nil
		}
	}

	// Tier 3: generative fallback.
	value, err := r.generate(ctx, q)
	if err != nil {
		if errors.Is(err, ErrUnanswerable) && !q.Required {
			r.logger.Info("leaving optional question blank", "question", q.NormalizedText)
			return r.blankAnswer(attemptID, q), nil
		}
		return models.Answer{}, err
	}

	ans := r.answerFrom(attemptID, q, value, r.opts.GenerativeConfidence, models.SourceGenerative)
	r.maybePublish(ctx, q, ans)
	return ans, nil
}

// ResolveStep resolves every question of one form step. Fallback calls for
// independent questions run concurrently; answers come back in question
// order.
func (r *Resolver) ResolveStep(ctx context.Context, attemptID string, questions []models.Question) ([]models.Answer, error) {
	answers := make([]models.Answer, len(questions))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, q := range questions {
		g.Go(func() error {
			ans, err := r.Resolve(ctx, attemptID, q)
			if err != nil {
				return fmt.Errorf("resolve %q: %w", q.Text, err)
			}
			answers[i] = ans
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return answers, nil
}

// generate runs the tier-3 fallback: one normal call, one strict retry on
// validation failure, one retry on transient service failure.
func (r *Resolver) generate(ctx context.Context, q models.Question) (string, error) {
	if r.generator == nil {
		return "", fmt.Errorf("%w: no generative fallback configured", ErrUnanswerable)
	}

	value, err := r.generator.GenerateAnswer(ctx, q, false)
	if err != nil {
		// One retry for transient failures; fatal API errors are not
		// worth a second call.
		if errors.Is(err, llm.ErrFatalAPI) {
			return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		value, err = r.generator.GenerateAnswer(ctx, q, false)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
	}

	if canonical, err := canonicalize(q, value); err == nil {
		return canonical, nil
	}

	// One stricter retry, then give up on this question.
	r.logger.Debug("fallback answer failed validation, retrying strict", "question", q.NormalizedText, "value", value)
	value, err = r.generator.GenerateAnswer(ctx, q, true)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	canonical, cErr := canonicalize(q, value)
	if cErr != nil {
		return "", fmt.Errorf("%w: %v", ErrUnanswerable, cErr)
	}
	return canonical, nil
}

// maybePublish writes a tier-2/3 answer back into the Knowledge Store when
// its confidence clears the publish threshold. This is the learning loop;
// failures are logged, never fatal to the attempt.
func (r *Resolver) maybePublish(ctx context.Context, q models.Question, ans models.Answer) {
	if ans.Confidence < r.opts.PublishThreshold {
		return
	}
	entry := models.KnowledgeEntry{
		NormalizedText: q.NormalizedText,
		QuestionText:   q.Text,
		Value:          ans.Value,
		Kind:           q.Kind,
		Confidence:     ans.Confidence,
	}
	if err := r.store.Publish(ctx, entry); err != nil {
		r.logger.Warn("knowledge publish failed", "key", q.NormalizedText, "error", err)
	}
}

func (r *Resolver) answerFrom(attemptID string, q models.Question, value string, confidence float64, source models.AnswerSource) models.Answer {
	return models.Answer{
		ID:             uuid.New().String(),
		AttemptID:      attemptID,
		NormalizedText: q.NormalizedText,
		QuestionText:   q.Text,
		Value:          value,
		Confidence:     confidence,
		Source:         source,
		AnsweredAt:     time.Now().UTC(),
	}
}

func (r *Resolver) blankAnswer(attemptID string, q models.Question) models.Answer {
	ans := r.answerFrom(attemptID, q, "", 0, models.SourceManual)
	ans.Blank = true
	return ans
}
