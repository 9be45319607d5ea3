// Package feedback writes the short coaching message attached to a graded
// attempt.
package feedback

import (
	"context"
	"fmt"
	"strings"
)

// Summary is the grading outcome a message is written about.
type Summary struct {
	QuizTitle     string
	Score         float64 // percentage after negative marking
	Grade         string
	Correct       int
	Incorrect     int
	Skipped       int
	Pending       int
	Total         int
	TimeSpent     int // seconds
	AutoSubmitted bool
	// NegativeImpact is the share of the maximum marks lost to wrong
	// answers, in percent.
	NegativeImpact float64
	// WeakAreas lists the difficulty labels of missed questions, most
	// frequent first.
	WeakAreas []string
}

// Accuracy is the share of attempted, graded questions answered correctly.
func (s Summary) Accuracy() float64 {
	attempted := s.Correct + s.Incorrect
	if attempted == 0 {
		return 0
	}
	return float64(s.Correct) / float64(attempted) * 100
}

type Generator interface {
	Generate(ctx context.Context, s Summary) (string, error)
}

// Basic produces rule-based feedback. It never fails.
type Basic struct{}

func (Basic) Generate(_ context.Context, s Summary) (string, error) {
	var parts []string

	switch {
	case s.Score >= 75:
		parts = append(parts, "Excellent performance! You clearly know this material.")
	case s.Score >= 60:
		parts = append(parts, "Good performance! You're on the right track with some focused review.")
	case s.Score >= 40:
		parts = append(parts, "Decent foundation, but there is still a fair amount to revise.")
	default:
		parts = append(parts, "Keep practicing! Go back over the fundamentals before the next attempt.")
	}

	if s.Grade != "" {
		parts = append(parts, fmt.Sprintf("Your overall grade is %s.", s.Grade))
	}
	if s.NegativeImpact > 15 {
		parts = append(parts, "Wrong answers cost you marks; skip questions you are unsure about.")
	}
	if len(s.WeakAreas) > 0 {
		parts = append(parts, fmt.Sprintf("Prioritize strengthening your %s questions.", s.WeakAreas[0]))
	}
	if s.AutoSubmitted {
		parts = append(parts, "Time ran out before you submitted, so practice pacing yourself.")
	}
	if s.Pending > 0 {
		parts = append(parts, fmt.Sprintf("%d answer(s) still await manual grading.", s.Pending))
	}
	return strings.Join(parts, " "), nil
}
