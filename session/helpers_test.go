package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quizsession/scheduler"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleQuiz(minutes int) *Quiz {
	return &Quiz{
		ID:              "quiz-1",
		Title:           "Capitals",
		DurationMinutes: minutes,
		Questions: []Question{
			{
				ID:     "q1",
				Prompt: "Capital of France?",
				Type:   QuestionSingleChoice,
				Options: []Option{
					{ID: "a", Text: "Paris"},
					{ID: "b", Text: "Lyon"},
					{ID: "c", Text: "Nice"},
				},
				Hint:   "It has a tall iron tower.",
				Points: 1,
			},
			{
				ID:      "q2",
				Prompt:  "Bern is the capital of Switzerland.",
				Type:    QuestionTrueFalse,
				Options: []Option{{ID: "true", Text: "True"}, {ID: "false", Text: "False"}},
				Points:  1,
			},
			{
				ID:     "q3",
				Prompt: "Capital of Japan?",
				Type:   QuestionShortAnswer,
				Points: 1,
			},
		},
	}
}

type savedAnswer struct {
	QuizID     string
	QuestionID string
	Value      string
}

// fakeBackend implements every collaborator in memory.
type fakeBackend struct {
	mu sync.Mutex

	quiz     *Quiz
	fetchErr error

	draft    *Draft
	draftErr error
	saveErr  error
	answers  []savedAnswer
	drafts   []Draft

	submitErrs  []error
	submissions []Submission
	submitCtx   []error
	onSubmit    func()
}

func (f *fakeBackend) FetchQuiz(_ context.Context, quizID string) (*Quiz, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.quiz == nil || f.quiz.ID != quizID {
		return nil, ErrQuizNotFound
	}
	q := *f.quiz
	return &q, nil
}

func (f *fakeBackend) SaveAnswer(_ context.Context, quizID, questionID, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.answers = append(f.answers, savedAnswer{QuizID: quizID, QuestionID: questionID, Value: value})
	return nil
}

func (f *fakeBackend) SaveProgress(_ context.Context, _ string, d Draft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.drafts = append(f.drafts, d)
	return nil
}

func (f *fakeBackend) LoadDraft(context.Context, string) (*Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft, f.draftErr
}

func (f *fakeBackend) SubmitQuiz(ctx context.Context, quizID string, sub Submission) (*GradingResult, error) {
	f.mu.Lock()
	hook := f.onSubmit
	f.onSubmit = nil
	f.submissions = append(f.submissions, sub)
	f.submitCtx = append(f.submitCtx, ctx.Err())
	var err error
	if len(f.submitErrs) > 0 {
		err, f.submitErrs = f.submitErrs[0], f.submitErrs[1:]
	}
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return &GradingResult{QuizID: quizID, TimeSpent: sub.TimeSpent, TotalQuestions: 3}, nil
}

func (f *fakeBackend) savedDrafts() []Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Draft(nil), f.drafts...)
}

func (f *fakeBackend) savedAnswers() []savedAnswer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]savedAnswer(nil), f.answers...)
}

func (f *fakeBackend) submitted() []Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Submission(nil), f.submissions...)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Notify(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) ofKind(k EventKind) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	clock   *scheduler.Virtual
	backend *fakeBackend
	events  *eventLog
	ctrl    *Controller
}

func newHarness(t *testing.T, quiz *Quiz) *harness {
	t.Helper()
	h := &harness{
		clock:   scheduler.NewVirtual(epoch),
		backend: &fakeBackend{quiz: quiz},
		events:  &eventLog{},
	}
	h.ctrl = NewController(h.clock, Collaborators{
		Quizzes:     h.backend,
		Answers:     h.backend,
		Submissions: h.backend,
		Notifier:    h.events,
	}, DefaultConfig)
	t.Cleanup(h.ctrl.Close)
	return h
}

// started loads and starts the harness quiz.
func (h *harness) started(t *testing.T) *Controller {
	t.Helper()
	require.NoError(t, h.ctrl.Load(context.Background(), "quiz-1"))
	require.NoError(t, h.ctrl.Start())
	return h.ctrl
}
