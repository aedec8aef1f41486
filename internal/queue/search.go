package queue

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tla-bot/tla-go/internal/browser"
	"github.com/tla-bot/tla-go/internal/config"
	"github.com/tla-bot/tla-go/internal/models"
)

// Navigator is the slice of the session controller the search source needs.
type Navigator interface {
	Navigate(ctx context.Context, url string) (*browser.Snapshot, error)
}

var jobLinkPattern = regexp.MustCompile(`/jobs/view/(\d+)`)

// SearchSource discovers job postings by walking paginated search result
// snapshots. Listing cards surface as anchors: the href carries the job id,
// the text the title, and the driver resolves the company line into the
// anchor's label.
type SearchSource struct {
	nav    Navigator
	sc     config.SearchConfig
	logger *slog.Logger

	maxPages int
	page     int
	buf      []models.JobPosting
	done     bool
}

// NewSearchSource builds a source over the configured search. maxPages
// bounds pagination.
func NewSearchSource(nav Navigator, sc config.SearchConfig, maxPages int, logger *slog.Logger) *SearchSource {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPages <= 0 {
		maxPages = 1
	}
	return &SearchSource{nav: nav, sc: sc, logger: logger, maxPages: maxPages}
}

// Next returns the next discovered posting, fetching further result pages
// as the buffer drains. Returns (nil, nil) when pagination is exhausted.
func (s *SearchSource) Next(ctx context.Context) (*models.JobPosting, error) {
	for len(s.buf) == 0 && !s.done {
		if err := s.fetchPage(ctx); err != nil {
			return nil, err
		}
	}
	if len(s.buf) == 0 {
		return nil, nil
	}
	job := s.buf[0]
	s.buf = s.buf[1:]
	return &job, nil
}

func (s *SearchSource) fetchPage(ctx context.Context) error {
	if s.page >= s.maxPages {
		s.done = true
		return nil
	}
	pageURL := SearchURL(s.sc, s.page)
	s.page++

	snap, err := s.nav.Navigate(ctx, pageURL)
	if err != nil {
		return err
	}

	jobs := extractPostings(snap)
	if len(jobs) == 0 {
		// An empty result page ends pagination early.
		s.done = true
		return nil
	}
	s.logger.Info("search page scraped", "url", pageURL, "jobs", len(jobs))
	s.buf = append(s.buf, jobs...)
	return nil
}

// extractPostings pulls job postings out of a search result snapshot.
func extractPostings(snap *browser.Snapshot) []models.JobPosting {
	var jobs []models.JobPosting
	seen := make(map[string]bool)
	now := time.Now().UTC()

	snap.Walk(func(e browser.Element) bool {
		if e.Tag != "a" || e.Href == "" {
			return true
		}
		m := jobLinkPattern.FindStringSubmatch(e.Href)
		if m == nil || seen[m[1]] {
			return true
		}
		seen[m[1]] = true

		job := models.JobPosting{
			JobID:     m[1],
			Title:     strings.TrimSpace(e.Text),
			JobLink:   absoluteLink(snap.URL, e.Href),
			ScrapedAt: now,
		}
		// The driver resolves the "Company · Location" line into the
		// anchor label.
		if company, location, ok := strings.Cut(e.Label, "·"); ok {
			job.Company = strings.TrimSpace(company)
			job.Location = strings.TrimSpace(location)
		} else {
			job.Company = strings.TrimSpace(e.Label)
		}
		jobs = append(jobs, job)
		return true
	})
	return jobs
}

// absoluteLink resolves a relative job href against the search page URL.
func absoluteLink(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}
