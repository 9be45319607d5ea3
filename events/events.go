// Package events announces finished attempts to other services.
package events

import (
	"context"
	"time"
)

const (
	Exchange                   = "quiz.events"
	RoutingKeyAttemptSubmitted = "attempt.submitted"
)

// AttemptSubmitted is published once an attempt is graded and stored.
type AttemptSubmitted struct {
	AttemptID     uint      `json:"attempt_id"`
	QuizID        uint      `json:"quiz_id"`
	StudentID     uint      `json:"student_id"`
	Score         float64   `json:"score"`
	Grade         string    `json:"grade"`
	TimeSpent     int       `json:"time_spent"`
	AutoSubmitted bool      `json:"auto_submitted"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

type Publisher interface {
	PublishAttemptSubmitted(ctx context.Context, e AttemptSubmitted) error
	Close() error
}

// Nop drops every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) PublishAttemptSubmitted(context.Context, AttemptSubmitted) error { return nil }

func (Nop) Close() error { return nil }
