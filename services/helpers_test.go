package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"quizsession/events"
	"quizsession/feedback"
	"quizsession/models"
	"quizsession/session"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is its own database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Quiz{},
		&models.Question{},
		&models.Option{},
		&models.Attempt{},
		&models.AttemptAnswer{},
	))
	return db
}

const ownerID uint = 1

// capitalsQuiz has one question of each type. The essay is worth 5 points,
// the rest 3 each.
func capitalsQuiz() *CreateQuizRequest {
	return &CreateQuizRequest{
		Title:           "Capitals",
		DurationMinutes: 10,
		Questions: []CreateQuestionRequest{
			{
				Text: "Capital of France?", Type: models.QuestionSingleChoice, Points: 3,
				Hint: "It has a famous tower", Difficulty: "easy",
				Options: []CreateOptionRequest{
					{Text: "Lyon"},
					{Text: "Paris", IsCorrect: true},
					{Text: "Nice"},
				},
			},
			{
				Text: "Canberra is the capital of Australia", Type: models.QuestionTrueFalse, Points: 3,
				Difficulty: "hard",
				Options: []CreateOptionRequest{
					{Text: "True", IsCorrect: true},
					{Text: "False"},
				},
			},
			{
				Text: "Capital of Japan?", Type: models.QuestionShortAnswer, Points: 3,
				AcceptedAnswer: "Tokyo", Difficulty: "hard",
			},
			{
				Text: "Why do countries move capitals?", Type: models.QuestionEssay, Points: 5,
			},
		},
	}
}

func createQuiz(t *testing.T, qs *QuizService) *models.Quiz {
	t.Helper()
	quiz, err := qs.CreateQuiz(ownerID, capitalsQuiz())
	require.NoError(t, err)
	require.Len(t, quiz.Questions, 4)
	return quiz
}

func correctOption(q models.Question) string {
	for _, o := range q.Options {
		if o.IsCorrect {
			return FormatID(o.ID)
		}
	}
	return ""
}

func wrongOption(q models.Question) string {
	for _, o := range q.Options {
		if !o.IsCorrect {
			return FormatID(o.ID)
		}
	}
	return ""
}

// memDrafts is an in-memory DraftStore.
type memDrafts struct {
	mu      sync.Mutex
	drafts  map[string]session.Draft
	saves   int
	cleared []string
	err     error
}

func newMemDrafts() *memDrafts {
	return &memDrafts{drafts: make(map[string]session.Draft)}
}

func memKey(studentID uint, quizID string) string {
	return fmt.Sprintf("%d/%s", studentID, quizID)
}

func (m *memDrafts) SaveAnswer(_ context.Context, studentID uint, quizID, questionID, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	d := m.drafts[memKey(studentID, quizID)]
	if d.Answers == nil {
		d.Answers = map[string]string{}
	}
	if value == "" {
		delete(d.Answers, questionID)
	} else {
		d.Answers[questionID] = value
	}
	m.drafts[memKey(studentID, quizID)] = d
	m.saves++
	return nil
}

func (m *memDrafts) SaveProgress(_ context.Context, studentID uint, quizID string, draft session.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.drafts[memKey(studentID, quizID)] = draft
	m.saves++
	return nil
}

func (m *memDrafts) LoadDraft(_ context.Context, studentID uint, quizID string) (*session.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[memKey(studentID, quizID)]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *memDrafts) ClearDraft(_ context.Context, studentID uint, quizID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, memKey(studentID, quizID))
	m.cleared = append(m.cleared, memKey(studentID, quizID))
	return nil
}

func (m *memDrafts) get(studentID uint, quizID string) (session.Draft, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[memKey(studentID, quizID)]
	return d, ok
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []events.AttemptSubmitted
	err       error
}

func (p *recordingPublisher) PublishAttemptSubmitted(_ context.Context, e events.AttemptSubmitted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

// capturedFeedback returns a fixed text and keeps the summary it was given.
type capturedFeedback struct {
	text    string
	err     error
	summary feedback.Summary
}

func (f *capturedFeedback) Generate(_ context.Context, s feedback.Summary) (string, error) {
	f.summary = s
	return f.text, f.err
}
