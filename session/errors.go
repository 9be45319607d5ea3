package session

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrAlreadyLoaded    = errors.New("session already loaded")
	ErrNotReady         = errors.New("session is not ready to start")
	ErrNotInProgress    = errors.New("session is not in progress")
	ErrUnknownQuestion  = errors.New("question is not part of this quiz")
	ErrInvalidOption    = errors.New("answer is not one of the question's options")
	ErrIndexOutOfRange  = errors.New("question index out of range")
	ErrNoHint           = errors.New("question has no hint")
	ErrSubmitInFlight   = errors.New("submission already in progress")
	ErrAlreadySubmitted = errors.New("quiz already submitted")
	ErrSessionClosed    = errors.New("session closed")

	// ErrQuizNotFound is returned by quiz sources for unknown quizzes.
	ErrQuizNotFound = errors.New("quiz not found")
	ErrEmptyQuiz    = errors.New("quiz has no questions")
)

// LoadError means the quiz could not be fetched; the session stays idle.
type LoadError struct {
	QuizID string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load quiz %s: %v", e.QuizID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SubmitError means grading failed; the session is back in progress and the
// submission may be retried.
type SubmitError struct {
	QuizID string
	Auto   bool
	Err    error
}

func (e *SubmitError) Error() string {
	kind := "submit"
	if e.Auto {
		kind = "auto-submit"
	}
	return fmt.Sprintf("%s quiz %s: %v", kind, e.QuizID, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// AnswerSaveError is a failed background save. It is only ever logged and
// reflected in the save status.
type AnswerSaveError struct {
	QuizID     string
	QuestionID string
	Err        error
}

func (e *AnswerSaveError) Error() string {
	if e.QuestionID == "" {
		return fmt.Sprintf("save progress for quiz %s: %v", e.QuizID, e.Err)
	}
	return fmt.Sprintf("save answer %s for quiz %s: %v", e.QuestionID, e.QuizID, e.Err)
}

func (e *AnswerSaveError) Unwrap() error { return e.Err }
