package parser

import (
	"errors"
	"testing"

	"github.com/tla-bot/tla-go/internal/browser"
	"github.com/tla-bot/tla-go/internal/models"
)

func fillSnapshot() *browser.Snapshot {
	return &browser.Snapshot{
		URL: "https://example.com/apply/step-1",
		Elements: []browser.Element{
			{Ref: "q1", Tag: "input", Type: "text", Label: "First name", Required: true},
			{Ref: "q2", Tag: "input", Type: "number", Label: "Years of experience", Required: true},
			{Ref: "q3", Tag: "select", Label: "Do you require sponsorship?", Options: []string{"Yes", "No"}},
			{Ref: "q4", Tag: "select", Label: "Preferred location", Options: []string{"Remote", "Berlin", "Vienna"}},
			{Ref: "next", Tag: "button", Text: "Next"},
		},
	}
}

func TestParseStepFill(t *testing.T) {
	step, err := ParseStep(fillSnapshot())
	if err != nil {
		t.Fatalf("ParseStep: %v", err)
	}
	if step.Kind != StepFill {
		t.Fatalf("kind = %s, want fill", step.Kind)
	}
	if step.ControlRef != "next" {
		t.Errorf("control = %q", step.ControlRef)
	}
	if len(step.Questions) != 4 {
		t.Fatalf("got %d questions, want 4", len(step.Questions))
	}

	kinds := map[string]models.InputKind{}
	for _, q := range step.Questions {
		kinds[q.ElementRef] = q.Kind
	}
	if kinds["q1"] != models.KindFreeText {
		t.Errorf("q1 kind = %s", kinds["q1"])
	}
	if kinds["q2"] != models.KindNumeric {
		t.Errorf("q2 kind = %s", kinds["q2"])
	}
	if kinds["q3"] != models.KindBoolean {
		t.Errorf("q3 kind = %s, want boolean for yes/no pair", kinds["q3"])
	}
	if kinds["q4"] != models.KindSingleChoice {
		t.Errorf("q4 kind = %s", kinds["q4"])
	}
}

func TestParseStepNormalizesQuestionText(t *testing.T) {
	step, err := ParseStep(fillSnapshot())
	if err != nil {
		t.Fatal(err)
	}
	if step.Questions[1].NormalizedText != "years of experience" {
		t.Errorf("normalized = %q", step.Questions[1].NormalizedText)
	}
}

func TestParseStepReview(t *testing.T) {
	snap := &browser.Snapshot{
		URL: "https://example.com/apply/review",
		Elements: []browser.Element{
			{Ref: "heading", Tag: "h2", Text: "Review your application"},
			{Ref: "submit", Tag: "button", Text: "Submit application"},
		},
	}
	step, err := ParseStep(snap)
	if err != nil {
		t.Fatalf("ParseStep: %v", err)
	}
	if step.Kind != StepReview {
		t.Fatalf("kind = %s, want review", step.Kind)
	}
	if step.ControlRef != "submit" {
		t.Errorf("control = %q", step.ControlRef)
	}
}

func TestParseStepTerminalMarker(t *testing.T) {
	snap := &browser.Snapshot{
		Elements: []browser.Element{
			{Ref: "m", Tag: "marker", Text: "already applied"},
		},
	}
	step, err := ParseStep(snap)
	if err != nil {
		t.Fatal(err)
	}
	if step.Kind != StepTerminal {
		t.Fatalf("kind = %s, want terminal", step.Kind)
	}
	if step.Detail != "already applied" {
		t.Errorf("detail = %q", step.Detail)
	}
}

func TestParseStepCaptcha(t *testing.T) {
	snap := &browser.Snapshot{
		URL: "https://example.com/checkpoint",
		Elements: []browser.Element{
			{Ref: "c", Tag: "captcha"},
		},
	}
	_, err := ParseStep(snap)
	if !errors.Is(err, ErrUnrecognizedStep) {
		t.Fatalf("err = %v, want ErrUnrecognizedStep", err)
	}
}

func TestParseStepQuestionsWithoutControl(t *testing.T) {
	snap := &browser.Snapshot{
		Elements: []browser.Element{
			{Ref: "q1", Tag: "input", Type: "text", Label: "Name"},
		},
	}
	_, err := ParseStep(snap)
	if !errors.Is(err, ErrUnrecognizedStep) {
		t.Fatalf("err = %v, want ErrUnrecognizedStep", err)
	}
}

func TestParseStepEmptyIsTerminal(t *testing.T) {
	step, err := ParseStep(&browser.Snapshot{})
	if err != nil {
		t.Fatal(err)
	}
	if step.Kind != StepTerminal {
		t.Errorf("kind = %s, want terminal", step.Kind)
	}
}

func TestClassifyUnlabeledIgnored(t *testing.T) {
	snap := &browser.Snapshot{
		Elements: []browser.Element{
			{Ref: "hidden", Tag: "input", Type: "text"},
			{Ref: "next", Tag: "button"},
		},
	}
	step, err := ParseStep(snap)
	if err != nil {
		t.Fatal(err)
	}
	if step.Kind != StepReview {
		t.Errorf("unlabeled inputs should not count as questions, kind = %s", step.Kind)
	}
}

func TestClassifyUnknownInputDegrades(t *testing.T) {
	snap := &browser.Snapshot{
		Elements: []browser.Element{
			{Ref: "q1", Tag: "input", Type: "color", Label: "Favourite colour"},
			{Ref: "next", Tag: "button"},
		},
	}
	step, err := ParseStep(snap)
	if err != nil {
		t.Fatal(err)
	}
	if len(step.Questions) != 1 || step.Questions[0].Kind != models.KindUnknown {
		t.Errorf("unrecognized input shape should degrade to unknown, got %+v", step.Questions)
	}
}
