package models

import "time"

// EventKind classifies an entry in the per-attempt run log.
type EventKind string

const (
	EventTransition EventKind = "transition"
	EventRetry      EventKind = "retry"
	EventBlocked    EventKind = "blocked"
	EventRelogin    EventKind = "relogin"
	EventTerminal   EventKind = "terminal"
)

// RunEvent records one noteworthy occurrence during an attempt: a state
// transition, a retried navigation, a detected block, or the terminal
// outcome with its reason.
type RunEvent struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	AttemptID string    `json:"attempt_id"`
	Kind      EventKind `json:"kind"`
	Detail    string    `json:"detail"`
	Step      int       `json:"step"`
	At        time.Time `json:"at"`
}
