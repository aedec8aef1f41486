package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	"github.com/tla-bot/tla-go/internal/models"
)

// UpsertJob stores a discovered job posting. Re-applying the same posting
// leaves the record unchanged.
func (c *Client) UpsertJob(ctx context.Context, job models.JobPosting) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("job", $id) SET
			job_id = $id,
			title = $title,
			company = $company,
			location = $location,
			job_link = $job_link,
			hirer_name = $hirer_name,
			hirer_profile_link = $hirer_profile_link,
			description = $description,
			scraped_at = $scraped_at
	`, map[string]any{
		"id":                 job.JobID,
		"title":              job.Title,
		"company":            job.Company,
		"location":           job.Location,
		"job_link":           job.JobLink,
		"hirer_name":         job.HirerName,
		"hirer_profile_link": job.HirerProfileURL,
		"description":        job.Description,
		"scraped_at":         job.ScrapedAt,
	})
	if err != nil {
		return fmt.Errorf("upsert job: %w", wrapQueryError(err))
	}
	return nil
}

// GetJob retrieves a posting by id. Returns nil, nil when absent.
func (c *Client) GetJob(ctx context.Context, jobID string) (*models.JobPosting, error) {
	results, err := surrealdb.Query[[]models.JobPosting](ctx, c.db, `
		SELECT * FROM type::record("job", $id)
	`, map[string]any{"id": jobID})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}
