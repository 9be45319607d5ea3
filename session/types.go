// Package session runs one student's timed attempt at one quiz: the answer
// store, the countdown, background saving and the state machine tying them
// together.
package session

import "time"

type QuestionType string

const (
	QuestionSingleChoice QuestionType = "single_choice"
	QuestionTrueFalse    QuestionType = "true_false"
	QuestionShortAnswer  QuestionType = "short_answer"
	QuestionEssay        QuestionType = "essay"
)

// HasOptions reports whether answers to this type must name an option.
func (t QuestionType) HasOptions() bool {
	return t == QuestionSingleChoice || t == QuestionTrueFalse
}

type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is the student view of a question. It never carries the key.
type Question struct {
	ID         string       `json:"id"`
	Prompt     string       `json:"prompt"`
	Type       QuestionType `json:"type"`
	Options    []Option     `json:"options,omitempty"`
	Hint       string       `json:"hint,omitempty"`
	Points     int          `json:"points,omitempty"`
	Difficulty string       `json:"difficulty,omitempty"`
}

func (q Question) hasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

type Quiz struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	DurationMinutes int        `json:"durationMinutes"`
	Questions       []Question `json:"questions"`
}

// Answer is the student's current response to one question.
type Answer struct {
	QuestionID string    `json:"questionId"`
	Value      string    `json:"value"`
	Flagged    bool      `json:"flagged"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Draft is the persisted partial progress of a session.
type Draft struct {
	Answers              map[string]string `json:"answers"`
	CurrentQuestionIndex int               `json:"currentQuestionIndex"`
	FlaggedQuestions     []string          `json:"flaggedQuestions"`
	LastSaved            time.Time         `json:"lastSaved"`
	StartedAt            *time.Time        `json:"startedAt,omitempty"`
	ElapsedSeconds       int               `json:"elapsedSeconds"`
}

type SubmittedAnswer struct {
	QuestionID string `json:"questionId"`
	Value      string `json:"value"`
	Flagged    bool   `json:"flagged"`
}

// Submission is the payload handed to the grader. Answers holds only
// questions with a non-empty value.
type Submission struct {
	Answers      []SubmittedAnswer `json:"answers"`
	TimeSpent    int               `json:"timeSpent"`
	IsAutoSubmit bool              `json:"isAutoSubmit"`
	StartedAt    *time.Time        `json:"startedAt,omitempty"`
}

// GradingResult is what the grader returns for display.
type GradingResult struct {
	AttemptID      string    `json:"attemptId"`
	QuizID         string    `json:"quizId"`
	Score          float64   `json:"score"`
	Marks          float64   `json:"marks"`
	MaxMarks       float64   `json:"maxMarks"`
	Grade          string    `json:"grade"`
	Correct        int       `json:"correct"`
	Incorrect      int       `json:"incorrect"`
	Skipped        int       `json:"skipped"`
	Pending        int       `json:"pending"`
	TotalQuestions int       `json:"totalQuestions"`
	TimeSpent      int       `json:"timeSpent"`
	AutoSubmitted  bool      `json:"autoSubmitted"`
	Feedback       string    `json:"feedback,omitempty"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

type Status string

const (
	StatusIdle       Status = "idle"
	StatusLoading    Status = "loading"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusSubmitting Status = "submitting"
	StatusSubmitted  Status = "submitted"
	// StatusExpired is the terminal state of a session submitted by the
	// countdown running out.
	StatusExpired Status = "expired"
)

func (s Status) IsTerminal() bool {
	return s == StatusSubmitted || s == StatusExpired
}
