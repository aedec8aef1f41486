// Package models defines data structures for the TLA application engine.
package models

import "time"

// JobPosting is a job discovered on the source site. Immutable once
// discovered; the queue manager owns its lifecycle.
type JobPosting struct {
	JobID           string    `json:"job_id"`
	Title           string    `json:"title"`
	Company         string    `json:"company"`
	Location        string    `json:"location,omitempty"`
	JobLink         string    `json:"job_link"`
	HirerName       *string   `json:"hirer_name,omitempty"`
	HirerProfileURL *string   `json:"hirer_profile_link,omitempty"`
	Description     string    `json:"description,omitempty"`
	ScrapedAt       time.Time `json:"scraped_at"`
}

// Valid reports whether the posting carries every field required before it
// may be enqueued.
func (j JobPosting) Valid() bool {
	return j.JobID != "" && j.Title != "" && j.Company != "" && j.JobLink != ""
}
