// Package parser turns raw page snapshots into structured form steps.
//
// Classification is structural: a small closed set of input archetypes is
// recognized by element shape, never by site-specific text matching, so
// cosmetic site changes degrade to "unknown question" instead of crashing.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tla-bot/tla-go/internal/browser"
	"github.com/tla-bot/tla-go/internal/models"
)

// ErrUnrecognizedStep is returned when a snapshot matches no known step
// shape, including CAPTCHA challenges. Guessing form structure is unsafe, so
// this is attempt-fatal upstream.
var ErrUnrecognizedStep = errors.New("unrecognized step shape")

// StepKind is the closed set of step shapes the state machine handles.
type StepKind string

const (
	// StepFill is a form step with questions to answer.
	StepFill StepKind = "fill"
	// StepReview is the final confirmation step: a submit control and no
	// remaining questions.
	StepReview StepKind = "review"
	// StepTerminal is an end-of-flow marker: external redirect, already
	// applied, or no further steps.
	StepTerminal StepKind = "terminal"
)

// Step is one parsed form step.
type Step struct {
	Kind      StepKind
	Questions []models.Question
	// ControlRef addresses the next/submit control for Fill and Review
	// steps.
	ControlRef string
	// Detail carries the marker text for terminal steps.
	Detail string
}

// ParseStep classifies a snapshot into a Step or fails with
// ErrUnrecognizedStep.
func ParseStep(snap *browser.Snapshot) (*Step, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrUnrecognizedStep)
	}

	var (
		questions []models.Question
		control   string
		marker    string
		captcha   bool
	)

	snap.Walk(func(e browser.Element) bool {
		switch e.Tag {
		case "captcha":
			captcha = true
			return false
		case "marker":
			marker = e.Text
		case "button":
			if control == "" {
				control = e.Ref
			}
		case "input":
			if e.Type == "submit" {
				if control == "" {
					control = e.Ref
				}
				return true
			}
			if q, ok := classifyInput(e); ok {
				questions = append(questions, q)
			}
		case "textarea", "select":
			if q, ok := classifyInput(e); ok {
				questions = append(questions, q)
			}
		}
		return true
	})

	if captcha {
		return nil, fmt.Errorf("%w: captcha challenge at %s", ErrUnrecognizedStep, snap.URL)
	}
	if marker != "" {
		return &Step{Kind: StepTerminal, Detail: marker}, nil
	}
	if control == "" {
		if len(questions) > 0 {
			return nil, fmt.Errorf("%w: questions without a control at %s", ErrUnrecognizedStep, snap.URL)
		}
		return &Step{Kind: StepTerminal, Detail: "no further steps"}, nil
	}
	if len(questions) == 0 {
		return &Step{Kind: StepReview, ControlRef: control}, nil
	}
	return &Step{Kind: StepFill, Questions: questions, ControlRef: control}, nil
}

// classifyInput maps a labeled element onto an input archetype. Elements
// without a label are not questions (hidden fields, decorations).
func classifyInput(e browser.Element) (models.Question, bool) {
	if e.Label == "" {
		return models.Question{}, false
	}

	q := models.Question{
		Text:           e.Label,
		NormalizedText: models.NormalizeQuestion(e.Label),
		Required:       e.Required,
		ElementRef:     e.Ref,
	}

	switch e.Tag {
	case "textarea":
		q.Kind = models.KindFreeText
	case "select":
		q.Kind = models.KindSingleChoice
		q.Options = e.Options
		if isBooleanOptions(e.Options) {
			q.Kind = models.KindBoolean
		}
	case "input":
		switch e.Type {
		case "text", "email", "tel", "url", "":
			q.Kind = models.KindFreeText
		case "number":
			q.Kind = models.KindNumeric
		case "radio":
			q.Kind = models.KindSingleChoice
			q.Options = e.Options
			if isBooleanOptions(e.Options) {
				q.Kind = models.KindBoolean
			}
		case "checkbox":
			if len(e.Options) > 1 {
				q.Kind = models.KindMultiChoice
				q.Options = e.Options
			} else {
				q.Kind = models.KindBoolean
			}
		case "file":
			q.Kind = models.KindFileUpload
		default:
			q.Kind = models.KindUnknown
		}
	default:
		q.Kind = models.KindUnknown
	}

	return q, true
}

// isBooleanOptions reports whether the option set is a plain yes/no pair.
func isBooleanOptions(options []string) bool {
	if len(options) != 2 {
		return false
	}
	yes, no := false, false
	for _, o := range options {
		switch strings.ToLower(strings.TrimSpace(o)) {
		case "yes", "true":
			yes = true
		case "no", "false":
			no = true
		}
	}
	return yes && no
}
