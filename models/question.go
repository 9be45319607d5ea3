package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	QuestionSingleChoice = "single_choice"
	QuestionTrueFalse    = "true_false"
	QuestionShortAnswer  = "short_answer"
	QuestionEssay        = "essay"
)

type Question struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuizID     uint   `json:"quiz_id" gorm:"not null;index"`
	Text       string `json:"text" gorm:"not null"`
	Type       string `json:"type" gorm:"not null;default:'single_choice'"`
	Hint       string `json:"hint"`
	Points     int    `json:"points" gorm:"not null;default:1"`
	Difficulty string `json:"difficulty"`
	// AcceptedAnswer is the expected text of a short answer question.
	AcceptedAnswer string         `json:"accepted_answer,omitempty"`
	Order          int            `json:"order" gorm:"not null"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Options []Option `json:"options,omitempty" gorm:"foreignKey:QuestionID"`
}

// HasOptions reports whether the question is answered by picking an option.
func (q *Question) HasOptions() bool {
	return q.Type == QuestionSingleChoice || q.Type == QuestionTrueFalse
}
