package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tla-bot/tla-go/internal/llm"
	"github.com/tla-bot/tla-go/internal/models"
)

// fakeStore is an in-memory KnowledgeSource.
type fakeStore struct {
	mu      sync.Mutex
	entries map[string]models.KnowledgeEntry
	usage   map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries: make(map[string]models.KnowledgeEntry),
		usage:   make(map[string]int),
	}
}

func (f *fakeStore) put(e models.KnowledgeEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[e.NormalizedText] = e
}

func (f *fakeStore) Exact(_ context.Context, key string) (*models.KnowledgeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[key]; ok {
		f.usage[key]++
		return &e, nil
	}
	return nil, nil
}

func (f *fakeStore) Fuzzy(_ context.Context, q models.Question) (*models.KnowledgeEntry, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var (
		best  *models.KnowledgeEntry
		score float64
	)
	for key := range f.entries {
		e := f.entries[key]
		if s := models.TokenOverlap(q.NormalizedText, key); s > score {
			best, score = &e, s
		}
	}
	return best, score, nil
}

func (f *fakeStore) RecordUsage(_ context.Context, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage[key]++
}

func (f *fakeStore) Publish(_ context.Context, e models.KnowledgeEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.entries[e.NormalizedText]; ok && existing.Confidence > e.Confidence {
		return nil
	}
	f.entries[e.NormalizedText] = e
	return nil
}

// fakeGenerator scripts the generative fallback and counts invocations.
type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	answers []string
	errs    []error
}

func (f *fakeGenerator) GenerateAnswer(_ context.Context, _ models.Question, _ bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.answers) {
		return f.answers[i], nil
	}
	return "", errors.New("unscripted call")
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newResolver(store KnowledgeSource, gen Generator) *Resolver {
	return New(store, gen, nil, DefaultOptions())
}

func TestExactMatchSkipsFallback(t *testing.T) {
	store := newFakeStore()
	store.put(models.KnowledgeEntry{
		NormalizedText: "do you have 3 years of experience",
		Value:          "Yes",
		Kind:           models.KindBoolean,
		Confidence:     0.9,
	})
	gen := &fakeGenerator{answers: []string{"No"}}
	r := newResolver(store, gen)

	q := models.Question{
		Text:           "Do you have 3+ years of experience?",
		NormalizedText: "do you have 3 years of experience",
		Kind:           models.KindBoolean,
		Required:       true,
	}
	ans, err := r.Resolve(context.Background(), "job-1", q)
	require.NoError(t, err)
	assert.Equal(t, "Yes", ans.Value)
	assert.Equal(t, 0.9, ans.Confidence)
	assert.Equal(t, models.SourceKnowledgeStore, ans.Source)
	assert.Equal(t, 0, gen.callCount(), "fallback must not be invoked on an exact hit")
}

func TestFuzzyMatchDecaysConfidence(t *testing.T) {
	store := newFakeStore()
	store.put(models.KnowledgeEntry{
		NormalizedText: "do you require visa sponsorship to work",
		Value:          "No",
		Kind:           models.KindBoolean,
		Confidence:     1.0,
	})
	gen := &fakeGenerator{}
	r := newResolver(store, gen)

	q := models.Question{
		Text:           "Do you require visa sponsorship?",
		NormalizedText: "do you require visa sponsorship",
		Kind:           models.KindBoolean,
	}
	ans, err := r.Resolve(context.Background(), "job-1", q)
	require.NoError(t, err)
	assert.Equal(t, "No", ans.Value)
	assert.Equal(t, models.SourceKnowledgeStore, ans.Source)
	assert.InDelta(t, 0.8, ans.Confidence, 0.001)
	assert.Equal(t, 0, gen.callCount())
}

func TestGenerativeFallbackValidated(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{answers: []string{"7"}}
	r := newResolver(store, gen)

	q := models.Question{
		Text:           "How many years of Go experience do you have?",
		NormalizedText: "how many years of go experience do you have",
		Kind:           models.KindNumeric,
		Required:       true,
	}
	ans, err := r.Resolve(context.Background(), "job-1", q)
	require.NoError(t, err)
	assert.Equal(t, "7", ans.Value)
	assert.Equal(t, models.SourceGenerative, ans.Source)
	assert.Equal(t, 1, gen.callCount())
}

func TestGenerativeStrictRetryOnInvalid(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{answers: []string{"about seven years", "7"}}
	r := newResolver(store, gen)

	q := models.Question{
		Text:           "Years of experience?",
		NormalizedText: "years of experience",
		Kind:           models.KindNumeric,
		Required:       true,
	}
	ans, err := r.Resolve(context.Background(), "job-1", q)
	require.NoError(t, err)
	assert.Equal(t, "7", ans.Value)
	assert.Equal(t, 2, gen.callCount())
}

func TestGenerativeExhaustedIsUnanswerable(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{answers: []string{"lots", "many"}}
	r := newResolver(store, gen)

	q := models.Question{
		Text:           "Years of experience?",
		NormalizedText: "years of experience",
		Kind:           models.KindNumeric,
		Required:       true,
	}
	_, err := r.Resolve(context.Background(), "job-1", q)
	require.ErrorIs(t, err, ErrUnanswerable)
}

func TestOptionalUnanswerableLeftBlank(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{answers: []string{"nonsense", "more nonsense"}}
	r := newResolver(store, gen)

	q := models.Question{
		Text:           "Pick a team",
		NormalizedText: "pick a team",
		Kind:           models.KindSingleChoice,
		Options:        []string{"Platform", "Product"},
		Required:       false,
	}
	ans, err := r.Resolve(context.Background(), "job-1", q)
	require.NoError(t, err)
	assert.True(t, ans.Blank)
	assert.Empty(t, ans.Value)
}

func TestServiceRetriedOnceThenUnavailable(t *testing.T) {
	store := newFakeStore()
	transient := errors.New("connection reset")
	gen := &fakeGenerator{errs: []error{transient, transient}}
	r := newResolver(store, gen)

	q := models.Question{
		Text:           "Notice period?",
		NormalizedText: "notice period",
		Kind:           models.KindFreeText,
		Required:       true,
	}
	_, err := r.Resolve(context.Background(), "job-1", q)
	require.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, 2, gen.callCount(), "transient failures get exactly one retry")
}

func TestFatalAPIErrorNotRetried(t *testing.T) {
	store := newFakeStore()
	fatal := fmt.Errorf("%w: credit balance is too low", llm.ErrFatalAPI)
	gen := &fakeGenerator{errs: []error{fatal}}
	r := newResolver(store, gen)

	q := models.Question{
		Text:           "Notice period?",
		NormalizedText: "notice period",
		Kind:           models.KindFreeText,
		Required:       true,
	}
	_, err := r.Resolve(context.Background(), "job-1", q)
	require.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, 1, gen.callCount(), "fatal API errors are not worth a second call")
}

func TestLearningLoop(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{answers: []string{"Yes"}}
	r := newResolver(store, gen)

	q := models.Question{
		Text:           "Are you willing to relocate?",
		NormalizedText: "are you willing to relocate",
		Kind:           models.KindBoolean,
		Required:       true,
	}

	// First resolution goes to the fallback and publishes.
	ans, err := r.Resolve(context.Background(), "job-1", q)
	require.NoError(t, err)
	assert.Equal(t, models.SourceGenerative, ans.Source)
	require.Equal(t, 1, gen.callCount())

	// The identical question on a later attempt resolves from the store
	// without another fallback call.
	ans2, err := r.Resolve(context.Background(), "job-2", q)
	require.NoError(t, err)
	assert.Equal(t, models.SourceKnowledgeStore, ans2.Source)
	assert.Equal(t, "Yes", ans2.Value)
	assert.Equal(t, 1, gen.callCount(), "learned answer must bypass the fallback")
}

func TestRequiredUploadUnanswerable(t *testing.T) {
	r := newResolver(newFakeStore(), &fakeGenerator{})

	q := models.Question{
		Text:           "Upload your cover letter",
		NormalizedText: "upload your cover letter",
		Kind:           models.KindFileUpload,
		Required:       true,
	}
	_, err := r.Resolve(context.Background(), "job-1", q)
	require.ErrorIs(t, err, ErrUnanswerable)
}

func TestResolveStepOrdersAnswers(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 4; i++ {
		store.put(models.KnowledgeEntry{
			NormalizedText: fmt.Sprintf("question %d", i),
			Value:          fmt.Sprintf("answer %d", i),
			Kind:           models.KindFreeText,
			Confidence:     0.9,
		})
	}
	r := newResolver(store, &fakeGenerator{})

	var questions []models.Question
	for i := 0; i < 4; i++ {
		questions = append(questions, models.Question{
			Text:           fmt.Sprintf("Question %d", i),
			NormalizedText: fmt.Sprintf("question %d", i),
			Kind:           models.KindFreeText,
		})
	}

	answers, err := r.ResolveStep(context.Background(), "job-1", questions)
	require.NoError(t, err)
	require.Len(t, answers, 4)
	for i, ans := range answers {
		assert.Equal(t, fmt.Sprintf("answer %d", i), ans.Value)
	}
}

func TestResolveStepFailsOnRequiredUnanswerable(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{answers: []string{"nope", "still nope"}}
	r := newResolver(store, gen)

	questions := []models.Question{
		{
			Text:           "Years of experience?",
			NormalizedText: "years of experience",
			Kind:           models.KindNumeric,
			Required:       true,
		},
	}
	_, err := r.ResolveStep(context.Background(), "job-1", questions)
	require.ErrorIs(t, err, ErrUnanswerable)
}
