package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for persistence operations. Check with errors.Is().
var (
	// ErrConflict indicates a write collided with existing state in a way
	// idempotent keys should have prevented: a terminal attempt being
	// mutated, or a unique index violation. This is a logic defect and is
	// surfaced, never swallowed.
	ErrConflict = errors.New("persistence conflict")

	// ErrUnavailable indicates the store could not be reached. Progress
	// blocks until the write succeeds; data is never silently dropped.
	ErrUnavailable = errors.New("store unavailable")
)

// wrapQueryError inspects a SurrealDB error and wraps it with the matching
// sentinel. Returns the original error when no pattern matches.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, "terminal") ||
			strings.Contains(msg, "already exists") ||
			strings.Contains(msg, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrConflict, msg)
		}
		return err
	}

	// Non-query errors from the websocket layer mean the store is gone.
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
