package models

import "time"

// KnowledgeEntry is the best-known answer for a normalized question text.
// At most one entry exists per key; publishes merge rather than duplicate.
type KnowledgeEntry struct {
	NormalizedText string    `json:"normalized_text"`
	QuestionText   string    `json:"question_text"`
	Value          string    `json:"value"`
	Kind           InputKind `json:"kind"`
	Confidence     float64   `json:"confidence"`
	TimesAsked     int       `json:"times_asked"`
	UpdatedAt      time.Time `json:"updated_at"`
	Embedding      []float32 `json:"embedding,omitempty"`
}
