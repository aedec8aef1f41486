package resolver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tla-bot/tla-go/internal/models"
)

// canonicalize validates a candidate value against the question's input kind
// and returns the form-ready rendition: the verbatim option label for choice
// kinds, "Yes"/"No" for booleans.
func canonicalize(q models.Question, value string) (string, error) {
	value = strings.TrimSpace(value)
	if err := validateValue(q, value); err != nil {
		return "", err
	}

	switch q.Kind {
	case models.KindBoolean:
		return canonicalBool(q, value), nil
	case models.KindSingleChoice:
		return matchOption(q, value), nil
	case models.KindMultiChoice:
		parts := splitMulti(value)
		for i, p := range parts {
			parts[i] = matchOption(q, p)
		}
		return strings.Join(parts, ", "), nil
	default:
		return value, nil
	}
}

// validateValue checks a candidate value against the question's constraints.
func validateValue(q models.Question, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("empty value for %q", q.Text)
	}

	switch q.Kind {
	case models.KindNumeric:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("value %q is not numeric", value)
		}
	case models.KindBoolean:
		if canonicalBool(q, value) == "" {
			return fmt.Errorf("value %q is not a yes/no answer", value)
		}
	case models.KindSingleChoice:
		if !q.HasOption(value) {
			return fmt.Errorf("value %q is not one of the allowed options", value)
		}
	case models.KindMultiChoice:
		parts := splitMulti(value)
		if len(parts) == 0 {
			return fmt.Errorf("no selections in %q", value)
		}
		for _, p := range parts {
			if !q.HasOption(p) {
				return fmt.Errorf("selection %q is not one of the allowed options", p)
			}
		}
	}
	return nil
}

// canonicalBool maps a value onto the question's own yes/no labels when it
// has them, or plain Yes/No otherwise. Returns "" for non-boolean values.
func canonicalBool(q models.Question, value string) string {
	var truthy bool
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true", "y":
		truthy = true
	case "no", "false", "n":
		truthy = false
	default:
		return ""
	}

	// Prefer the site's own labels when present.
	for _, o := range q.Options {
		switch strings.ToLower(strings.TrimSpace(o)) {
		case "yes", "true":
			if truthy {
				return o
			}
		case "no", "false":
			if !truthy {
				return o
			}
		}
	}
	if truthy {
		return "Yes"
	}
	return "No"
}

// matchOption returns the verbatim option label matching the value.
func matchOption(q models.Question, value string) string {
	value = strings.TrimSpace(value)
	for _, o := range q.Options {
		if strings.EqualFold(strings.TrimSpace(o), value) {
			return o
		}
	}
	return value
}

func splitMulti(value string) []string {
	var parts []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
