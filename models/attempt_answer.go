package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	OutcomeCorrect   = "correct"
	OutcomeIncorrect = "incorrect"
	OutcomeSkipped   = "skipped"
	OutcomePending   = "pending" // awaiting manual grading
)

type AttemptAnswer struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	AttemptID  uint           `json:"attempt_id" gorm:"not null;index"`
	QuestionID uint           `json:"question_id" gorm:"not null"`
	Value      string         `json:"value"`
	Flagged    bool           `json:"flagged" gorm:"not null;default:false"`
	Outcome    string         `json:"outcome" gorm:"not null"`
	Marks      float64        `json:"marks" gorm:"not null"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}
