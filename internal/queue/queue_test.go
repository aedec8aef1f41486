package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tla-bot/tla-go/internal/config"
	"github.com/tla-bot/tla-go/internal/models"
)

// sliceSource replays a fixed list of postings.
type sliceSource struct {
	jobs []models.JobPosting
	i    int
}

func (s *sliceSource) Next(context.Context) (*models.JobPosting, error) {
	if s.i >= len(s.jobs) {
		return nil, nil
	}
	job := s.jobs[s.i]
	s.i++
	return &job, nil
}

type fakeStore struct {
	jobs        map[string]models.JobPosting
	attempts    map[string]models.ApplicationAttempt
	dedupChecks []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:     make(map[string]models.JobPosting),
		attempts: make(map[string]models.ApplicationAttempt),
	}
}

func (f *fakeStore) IsAlreadyAttempted(_ context.Context, jobID string) (bool, error) {
	f.dedupChecks = append(f.dedupChecks, jobID)
	_, ok := f.attempts[jobID]
	return ok, nil
}

func (f *fakeStore) ListNonTerminalAttempts(context.Context) ([]models.ApplicationAttempt, error) {
	var out []models.ApplicationAttempt
	for _, a := range f.attempts {
		if !a.Status.Terminal() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) GetJob(_ context.Context, jobID string) (*models.JobPosting, error) {
	if j, ok := f.jobs[jobID]; ok {
		return &j, nil
	}
	return nil, nil
}

func posting(id string) models.JobPosting {
	return models.JobPosting{JobID: id, Title: "Engineer", Company: "Acme", JobLink: "https://example.com/jobs/" + id}
}

func drain(t *testing.T, m *Manager) []string {
	t.Helper()
	var ids []string
	for {
		job, err := m.Next(context.Background())
		require.NoError(t, err)
		if job == nil {
			return ids
		}
		ids = append(ids, job.JobID)
	}
}

func TestDuplicateDiscoveryEmittedOnce(t *testing.T) {
	src := &sliceSource{jobs: []models.JobPosting{posting("a"), posting("a"), posting("b")}}
	m := New(src, newFakeStore(), nil)

	assert.Equal(t, []string{"a", "b"}, drain(t, m))
}

func TestAlreadyAttemptedSkipped(t *testing.T) {
	store := newFakeStore()
	ended := time.Now().UTC()
	store.attempts["a"] = models.ApplicationAttempt{JobID: "a", Status: models.StatusSubmitted, EndedAt: &ended}
	src := &sliceSource{jobs: []models.JobPosting{posting("a"), posting("b")}}
	m := New(src, store, nil)

	assert.Equal(t, []string{"b"}, drain(t, m), "a submitted job is never re-dequeued")
}

func TestFailedAttemptNotRetried(t *testing.T) {
	store := newFakeStore()
	store.attempts["a"] = models.ApplicationAttempt{JobID: "a", Status: models.StatusFailed}
	src := &sliceSource{jobs: []models.JobPosting{posting("a")}}
	m := New(src, store, nil)

	assert.Empty(t, drain(t, m), "any recorded attempt blocks re-discovery")
}

func TestResumableAttemptsComeFirst(t *testing.T) {
	store := newFakeStore()
	store.jobs["resume-me"] = posting("resume-me")
	store.attempts["resume-me"] = models.ApplicationAttempt{
		JobID:      "resume-me",
		Status:     models.StatusInProgress,
		StepCursor: 2,
	}
	src := &sliceSource{jobs: []models.JobPosting{posting("fresh")}}
	m := New(src, store, nil)

	assert.Equal(t, []string{"resume-me", "fresh"}, drain(t, m))
}

// A non-terminal attempt whose job record is gone is skipped, not fatal:
// GetJob reports absence as nil, nil and the run proceeds with discovery.
func TestResumableAttemptMissingJobSkipped(t *testing.T) {
	store := newFakeStore()
	store.attempts["orphan"] = models.ApplicationAttempt{JobID: "orphan", Status: models.StatusInProgress}
	src := &sliceSource{jobs: []models.JobPosting{posting("fresh")}}
	m := New(src, store, nil)

	assert.Equal(t, []string{"fresh"}, drain(t, m))
}

func TestResumedJobNotDiscoveredAgain(t *testing.T) {
	store := newFakeStore()
	store.jobs["a"] = posting("a")
	store.attempts["a"] = models.ApplicationAttempt{JobID: "a", Status: models.StatusInProgress}
	src := &sliceSource{jobs: []models.JobPosting{posting("a"), posting("b")}}
	m := New(src, store, nil)

	assert.Equal(t, []string{"a", "b"}, drain(t, m), "resumed job dedupes its own discovery")
}

func TestSearchURL(t *testing.T) {
	sc := config.SearchConfig{
		BaseURL:   "https://example.com/jobs/search",
		Query:     "golang backend",
		GeoID:     "90000084",
		EasyApply: true,
	}

	got := SearchURL(sc, 0)
	assert.Equal(t, "https://example.com/jobs/search?f_AL=true&geoId=90000084&keywords=golang+backend", got)

	got = SearchURL(sc, 2)
	assert.Contains(t, got, "start=50")
}

func TestSearchURLBareBase(t *testing.T) {
	got := SearchURL(config.SearchConfig{BaseURL: "https://example.com/jobs"}, 0)
	assert.Equal(t, "https://example.com/jobs", got)
}
