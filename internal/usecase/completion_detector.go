// File: internal/usecase/completion_detector.go
package usecase

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// excessNewlines matches runs of three or more newlines (with interleaved
// horizontal whitespace); greedy matching consumes a whole run at once, which
// keeps stripping idempotent.
var excessNewlines = regexp.MustCompile(`\n\s*\n\s*\n`)

// CompletionDetector finds the sentinel marker the model is instructed to emit
// once mastery criteria are met, and strips it before text reaches the user.
type CompletionDetector struct {
	marker string
	log    *zerolog.Logger
}

func NewCompletionDetector(marker string, log *zerolog.Logger) *CompletionDetector {
	return &CompletionDetector{marker: marker, log: log}
}

func (d *CompletionDetector) Marker() string { return d.marker }

// IsCompleted reports whether the reply carries the completion marker.
func (d *CompletionDetector) IsCompleted(text string) bool {
	if text == "" {
		return false
	}
	return strings.Contains(text, d.marker)
}

// StripMarker removes every marker occurrence, collapses 3+ consecutive
// newlines into two, and trims surrounding whitespace. Idempotent.
func (d *CompletionDetector) StripMarker(text string) string {
	if text == "" || !strings.Contains(text, d.marker) {
		return text
	}
	cleaned := strings.ReplaceAll(text, d.marker, "")
	cleaned = excessNewlines.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

// Extract composes detection and stripping; the cleaned text is returned even
// when not completed (a no-op in that case).
func (d *CompletionDetector) Extract(text string) (bool, string) {
	completed := d.IsCompleted(text)
	if completed {
		d.log.Info().Str("marker", d.marker).Msg("topic completion detected")
	}
	return completed, d.StripMarker(text)
}

// ValidateByScore is the alternate numeric completion gate: false with fewer
// than 3 questions asked, otherwise correct >= required. Not part of the
// marker-driven flow; exposed as a standalone check.
func (d *CompletionDetector) ValidateByScore(correct, total, required int) bool {
	if total < 3 {
		d.log.Warn().Int("total", total).Msg("completion score check with fewer than 3 questions")
		return false
	}
	return correct >= required
}
