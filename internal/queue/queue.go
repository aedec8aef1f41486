// Package queue feeds the engine jobs to attempt: resumable attempts left
// over from an interrupted run first, then newly discovered postings,
// deduplicated against both the persisted attempt history and the current
// run.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/tla-bot/tla-go/internal/config"
	"github.com/tla-bot/tla-go/internal/models"
)

// Source supplies newly discovered job postings. Next returns (nil, nil)
// when the source is exhausted.
type Source interface {
	Next(ctx context.Context) (*models.JobPosting, error)
}

// Store is the read path the queue needs for dedup and resumption.
// GetJob returns nil, nil when no posting record exists for the id.
type Store interface {
	IsAlreadyAttempted(ctx context.Context, jobID string) (bool, error)
	ListNonTerminalAttempts(ctx context.Context) ([]models.ApplicationAttempt, error)
	GetJob(ctx context.Context, jobID string) (*models.JobPosting, error)
}

// Manager hands out the next job to attempt. Resumable attempts come first;
// no job id is handed out twice within one run, and a job with any recorded
// attempt (terminal or not already handed out) is never re-discovered.
type Manager struct {
	source Source
	store  Store
	logger *slog.Logger

	seen      map[string]bool
	resumable []models.JobPosting
	loaded    bool
}

// New builds a queue manager over a discovery source and the attempt store.
func New(source Source, store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{source: source, store: store, logger: logger, seen: make(map[string]bool)}
}

// Next returns the next job to attempt, or (nil, nil) when both the
// resumable backlog and the discovery source are drained.
func (m *Manager) Next(ctx context.Context) (*models.JobPosting, error) {
	if !m.loaded {
		if err := m.loadResumable(ctx); err != nil {
			return nil, err
		}
		m.loaded = true
	}

	if len(m.resumable) > 0 {
		job := m.resumable[0]
		m.resumable = m.resumable[1:]
		m.seen[job.JobID] = true
		m.logger.Info("resuming interrupted attempt", "job", job.JobID)
		return &job, nil
	}

	for {
		job, err := m.source.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("discover next job: %w", err)
		}
		if job == nil {
			return nil, nil
		}
		if m.seen[job.JobID] {
			m.logger.Debug("job already seen this run", "job", job.JobID)
			continue
		}
		m.seen[job.JobID] = true

		attempted, err := m.store.IsAlreadyAttempted(ctx, job.JobID)
		if err != nil {
			return nil, fmt.Errorf("dedup check for %s: %w", job.JobID, err)
		}
		if attempted {
			m.logger.Debug("job already attempted", "job", job.JobID)
			continue
		}
		return job, nil
	}
}

// loadResumable collects the jobs of attempts a previous run left
// non-terminal. Attempts whose job record is missing are skipped.
func (m *Manager) loadResumable(ctx context.Context) error {
	attempts, err := m.store.ListNonTerminalAttempts(ctx)
	if err != nil {
		return fmt.Errorf("list resumable attempts: %w", err)
	}
	for _, a := range attempts {
		job, err := m.store.GetJob(ctx, a.JobID)
		if err != nil {
			return fmt.Errorf("load job %s for resumable attempt: %w", a.JobID, err)
		}
		if job == nil {
			m.logger.Warn("resumable attempt has no job record", "job", a.JobID)
			continue
		}
		m.resumable = append(m.resumable, *job)
	}
	if len(m.resumable) > 0 {
		m.logger.Info("resumable attempts queued", "count", len(m.resumable))
	}
	return nil
}

// SearchURL renders the discovery search URL for one result page.
func SearchURL(sc config.SearchConfig, page int) string {
	v := url.Values{}
	if sc.Query != "" {
		v.Set("keywords", sc.Query)
	}
	if sc.GeoID != "" {
		v.Set("geoId", sc.GeoID)
	}
	if sc.EasyApply {
		v.Set("f_AL", "true")
	}
	if page > 0 {
		v.Set("start", fmt.Sprintf("%d", page*25))
	}
	if enc := v.Encode(); enc != "" {
		return sc.BaseURL + "?" + enc
	}
	return sc.BaseURL
}
