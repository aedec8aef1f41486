package browser

import "fmt"

// NavKind classifies a navigation failure.
type NavKind string

const (
	NavBlocked  NavKind = "blocked"
	NavTimeout  NavKind = "timeout"
	NavNotFound NavKind = "not_found"
	NavAuthLost NavKind = "auth_lost"
)

// NavigationError is returned by drivers when a page action fails. Blocked
// and Timeout are transient and eligible for backoff-and-retry; NotFound is
// not. AuthLost triggers a single re-login before the attempt fails.
type NavigationError struct {
	Kind NavKind
	URL  string
	Err  error
}

func (e *NavigationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("navigation %s: %s: %v", e.Kind, e.URL, e.Err)
	}
	return fmt.Sprintf("navigation %s: %s", e.Kind, e.URL)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying with backoff.
func (e *NavigationError) Transient() bool {
	return e.Kind == NavBlocked || e.Kind == NavTimeout
}
