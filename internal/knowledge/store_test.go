package knowledge

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tla-bot/tla-go/internal/db"
	"github.com/tla-bot/tla-go/internal/models"
)

// fakeBackend is an in-memory Backend with the same confidence-merge
// semantics as the SurrealDB gateway.
type fakeBackend struct {
	mu      sync.Mutex
	entries map[string]models.KnowledgeEntry
	usage   map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		entries: make(map[string]models.KnowledgeEntry),
		usage:   make(map[string]int),
	}
}

func (f *fakeBackend) FindKnowledge(_ context.Context, key string) (*models.KnowledgeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	if !ok {
		return nil, nil
	}
	e.TimesAsked = f.usage[key]
	return &e, nil
}

func (f *fakeBackend) UpsertKnowledge(_ context.Context, entry models.KnowledgeEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.entries[entry.NormalizedText]
	if ok && existing.Confidence > entry.Confidence {
		return nil
	}
	f.entries[entry.NormalizedText] = entry
	return nil
}

func (f *fakeBackend) IncrementUsage(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage[key]++
	return nil
}

func (f *fakeBackend) SearchKnowledge(_ context.Context, _ string, _ []float32, _ int) ([]db.KnowledgeMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matches []db.KnowledgeMatch
	for _, e := range f.entries {
		matches = append(matches, db.KnowledgeMatch{KnowledgeEntry: e})
	}
	return matches, nil
}

func TestExactHitIncrementsUsage(t *testing.T) {
	backend := newFakeBackend()
	backend.entries["years of experience"] = models.KnowledgeEntry{
		NormalizedText: "years of experience",
		Value:          "5",
		Confidence:     0.9,
	}
	store := NewStore(backend, nil, nil)

	entry, err := store.Exact(context.Background(), "years of experience")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "5", entry.Value)
	assert.Equal(t, 1, backend.usage["years of experience"])
}

func TestExactMiss(t *testing.T) {
	store := NewStore(newFakeBackend(), nil, nil)

	entry, err := store.Exact(context.Background(), "never seen")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestFuzzyTokenOverlap(t *testing.T) {
	backend := newFakeBackend()
	backend.entries["do you require visa sponsorship"] = models.KnowledgeEntry{
		NormalizedText: "do you require visa sponsorship",
		Value:          "No",
		Confidence:     0.9,
	}
	backend.entries["preferred start date"] = models.KnowledgeEntry{
		NormalizedText: "preferred start date",
		Value:          "Immediately",
		Confidence:     0.8,
	}
	store := NewStore(backend, nil, nil)

	q := models.Question{
		Text:           "Do you require sponsorship?",
		NormalizedText: "do you require sponsorship",
	}
	entry, score, err := store.Fuzzy(context.Background(), q)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "No", entry.Value)
	assert.InDelta(t, 0.8, score, 0.001) // 4 shared / 5 union
}

func TestFuzzyEmptyStore(t *testing.T) {
	store := NewStore(newFakeBackend(), nil, nil)

	entry, score, err := store.Fuzzy(context.Background(), models.Question{NormalizedText: "anything"})
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Zero(t, score)
}

func TestPublishMergeKeepsHigherConfidence(t *testing.T) {
	backend := newFakeBackend()
	store := NewStore(backend, nil, nil)
	ctx := context.Background()

	require.NoError(t, store.Publish(ctx, models.KnowledgeEntry{
		NormalizedText: "notice period",
		QuestionText:   "Notice period?",
		Value:          "4 weeks",
		Confidence:     0.9,
	}))
	require.NoError(t, store.Publish(ctx, models.KnowledgeEntry{
		NormalizedText: "notice period",
		QuestionText:   "Notice period?",
		Value:          "2 weeks",
		Confidence:     0.6,
	}))

	entry, err := store.Exact(ctx, "notice period")
	require.NoError(t, err)
	assert.Equal(t, "4 weeks", entry.Value)
	assert.Equal(t, 0.9, entry.Confidence)
}

func TestPublishEmptyKeyRejected(t *testing.T) {
	store := NewStore(newFakeBackend(), nil, nil)
	err := store.Publish(context.Background(), models.KnowledgeEntry{Value: "x"})
	assert.Error(t, err)
}

func TestConcurrentPublishSameKey(t *testing.T) {
	backend := newFakeBackend()
	store := NewStore(backend, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Publish(ctx, models.KnowledgeEntry{
				NormalizedText: "salary expectation",
				QuestionText:   "Salary expectation?",
				Value:          "negotiable",
				Confidence:     float64(i%10) / 10.0,
			})
		}(i)
	}
	wg.Wait()

	entry, err := store.Exact(ctx, "salary expectation")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 0.9, entry.Confidence)
}
