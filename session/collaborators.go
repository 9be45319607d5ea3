package session

import (
	"context"

	"github.com/golang/glog"
)

// QuizSource fetches quiz content.
type QuizSource interface {
	FetchQuiz(ctx context.Context, quizID string) (*Quiz, error)
}

// AnswerSaver persists answers and drafts. Failures are never fatal to a
// session. LoadDraft returns nil, nil when there is no draft.
type AnswerSaver interface {
	SaveAnswer(ctx context.Context, quizID, questionID, value string) error
	SaveProgress(ctx context.Context, quizID string, draft Draft) error
	LoadDraft(ctx context.Context, quizID string) (*Draft, error)
}

// Submitter grades a finished attempt.
type Submitter interface {
	SubmitQuiz(ctx context.Context, quizID string, sub Submission) (*GradingResult, error)
}

type EventKind string

const (
	EventStatus       EventKind = "status"
	EventTick         EventKind = "tick"
	EventWarning      EventKind = "warning"
	EventProgress     EventKind = "progress"
	EventSaveStatus   EventKind = "save_status"
	EventSubmitted    EventKind = "submitted"
	EventSubmitFailed EventKind = "submit_failed"
	EventLoadFailed   EventKind = "load_failed"
)

// Event is an outbound signal for whatever is displaying the session.
type Event struct {
	Kind       EventKind      `json:"kind"`
	QuizID     string         `json:"quizId,omitempty"`
	Status     Status         `json:"status,omitempty"`
	Remaining  int            `json:"remaining"`
	Formatted  string         `json:"formatted,omitempty"`
	Threshold  int            `json:"threshold,omitempty"`
	Message    string         `json:"message,omitempty"`
	Progress   int            `json:"progress,omitempty"`
	SaveStatus SaveStatus     `json:"saveStatus,omitempty"`
	AutoSubmit bool           `json:"autoSubmit,omitempty"`
	Result     *GradingResult `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Notifier receives session events. It is never called with session locks
// held.
type Notifier interface {
	Notify(Event)
}

type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// LogNotifier writes events to glog.
type LogNotifier struct{}

func (LogNotifier) Notify(e Event) {
	switch e.Kind {
	case EventTick:
		if glog.V(3) {
			glog.Infof("quiz %s: %s remaining", e.QuizID, e.Formatted)
		}
	case EventWarning:
		glog.Infof("quiz %s: %s", e.QuizID, e.Message)
	case EventSubmitFailed, EventLoadFailed:
		glog.Warningf("quiz %s: %s: %s", e.QuizID, e.Kind, e.Error)
	case EventSaveStatus:
		if e.SaveStatus == SaveError {
			glog.Warningf("quiz %s: background save failed: %s", e.QuizID, e.Error)
		}
	default:
		if glog.V(2) {
			glog.Infof("quiz %s: %s status=%s", e.QuizID, e.Kind, e.Status)
		}
	}
}
