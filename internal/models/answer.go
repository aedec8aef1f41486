package models

import "time"

// AnswerSource identifies which resolution tier produced an answer.
type AnswerSource string

const (
	SourceKnowledgeStore AnswerSource = "knowledge_store"
	SourceGenerative     AnswerSource = "generative"
	SourceManual         AnswerSource = "manual"
)

// Answer is a resolved value for one question, logged against the attempt
// that asked it.
type Answer struct {
	ID             string       `json:"id"`
	AttemptID      string       `json:"attempt_id"`
	NormalizedText string       `json:"normalized_text"`
	QuestionText   string       `json:"question_text"`
	Value          string       `json:"value"`
	Confidence     float64      `json:"confidence"`
	Source         AnswerSource `json:"source"`
	AnsweredAt     time.Time    `json:"answered_at"`
	// Blank marks an optional question that was left unanswered.
	Blank bool `json:"blank,omitempty"`
}
