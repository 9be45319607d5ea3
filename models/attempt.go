package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	AttemptSubmitted = "submitted"
	AttemptExpired   = "expired" // submitted by the timer
)

// Attempt is a graded submission of one quiz by one student.
type Attempt struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	QuizID        uint           `json:"quiz_id" gorm:"not null;index"`
	StudentID     uint           `json:"student_id" gorm:"not null;index"`
	Status        string         `json:"status" gorm:"not null;default:submitted"`
	Score         float64        `json:"score" gorm:"not null"` // percentage
	Marks         float64        `json:"marks" gorm:"not null"`
	MaxMarks      float64        `json:"max_marks" gorm:"not null"`
	Grade         string         `json:"grade" gorm:"not null"`
	Correct       int            `json:"correct" gorm:"not null"`
	Incorrect     int            `json:"incorrect" gorm:"not null"`
	Skipped       int            `json:"skipped" gorm:"not null"`
	Pending       int            `json:"pending" gorm:"not null"`
	TimeSpent     int            `json:"time_spent" gorm:"not null"` // seconds
	AutoSubmitted bool           `json:"auto_submitted" gorm:"not null;default:false"`
	Feedback      string         `json:"feedback"`
	StartedAt     *time.Time     `json:"started_at"`
	SubmittedAt   time.Time      `json:"submitted_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Answers []AttemptAnswer `json:"answers,omitempty" gorm:"foreignKey:AttemptID"`
}
