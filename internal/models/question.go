package models

import (
	"strings"
	"unicode"
)

// InputKind classifies a form question by element shape, not by site text.
type InputKind string

const (
	KindFreeText     InputKind = "free_text"
	KindSingleChoice InputKind = "single_choice"
	KindMultiChoice  InputKind = "multi_choice"
	KindNumeric      InputKind = "numeric"
	KindBoolean      InputKind = "boolean"
	KindFileUpload   InputKind = "file_upload"
	KindUnknown      InputKind = "unknown"
)

// Question is one screening question on one form step. NormalizedText is the
// stable lookup key shared across attempts.
type Question struct {
	Text           string    `json:"text"`
	NormalizedText string    `json:"normalized_text"`
	Kind           InputKind `json:"kind"`
	Required       bool      `json:"required"`
	Options        []string  `json:"options,omitempty"`
	// ElementRef addresses the input element within the page snapshot.
	ElementRef string `json:"element_ref"`
}

// HasOption reports whether label is one of the question's allowed options,
// compared case-insensitively.
func (q Question) HasOption(label string) bool {
	for _, o := range q.Options {
		if strings.EqualFold(strings.TrimSpace(o), strings.TrimSpace(label)) {
			return true
		}
	}
	return false
}

// NormalizeQuestion folds case, whitespace and punctuation so that
// differently-phrased-but-identical questions share one knowledge key.
func NormalizeQuestion(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

// TokenOverlap returns the Jaccard similarity of the token sets of two
// normalized strings, in [0,1].
func TokenOverlap(a, b string) float64 {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(ta))
	for _, t := range ta {
		setA[t] = true
	}
	setB := make(map[string]bool, len(tb))
	for _, t := range tb {
		setB[t] = true
	}
	union := len(setA)
	shared := 0
	for t := range setB {
		if setA[t] {
			shared++
		} else {
			union++
		}
	}
	return float64(shared) / float64(union)
}
