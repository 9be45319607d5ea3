package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"quizsession/client"
	"quizsession/events"
	"quizsession/feedback"
	"quizsession/handlers"
	"quizsession/middleware"
	"quizsession/models"
	"quizsession/scheduler"
	"quizsession/services"
	"quizsession/session"
)

const (
	secret    = "test-secret"
	authorID  = 1
	studentID = 2
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// drafts is an in-memory services.DraftStore.
type drafts struct {
	mu sync.Mutex
	m  map[string]session.Draft
}

func key(studentID uint, quizID string) string { return fmt.Sprintf("%d/%s", studentID, quizID) }

func (d *drafts) SaveAnswer(_ context.Context, studentID uint, quizID, questionID, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	draft := d.m[key(studentID, quizID)]
	if draft.Answers == nil {
		draft.Answers = map[string]string{}
	}
	if value == "" {
		delete(draft.Answers, questionID)
	} else {
		draft.Answers[questionID] = value
	}
	d.m[key(studentID, quizID)] = draft
	return nil
}

func (d *drafts) SaveProgress(_ context.Context, studentID uint, quizID string, draft session.Draft) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m[key(studentID, quizID)] = draft
	return nil
}

func (d *drafts) LoadDraft(_ context.Context, studentID uint, quizID string) (*session.Draft, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	draft, ok := d.m[key(studentID, quizID)]
	if !ok {
		return nil, nil
	}
	return &draft, nil
}

func (d *drafts) ClearDraft(_ context.Context, studentID uint, quizID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.m, key(studentID, quizID))
	return nil
}

type server struct {
	url   string
	clock *scheduler.Virtual
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Quiz{}, &models.Question{}, &models.Option{}, &models.Attempt{}, &models.AttemptAnswer{}))

	store := &drafts{m: make(map[string]session.Draft)}
	quizzes := services.NewQuizService(db)
	grading := services.NewGradingService(db, quizzes, store, events.Nop{}, feedback.Basic{})
	clock := scheduler.NewVirtual(epoch)
	hub := services.NewHub()
	manager := services.NewSessionManager(clock, quizzes, store, grading, hub, services.SessionOptions{Session: session.DefaultConfig})
	hub.SetStateSource(manager)

	router := gin.New()
	SetupRoutes(router, Handlers{
		Quiz:       handlers.NewQuizHandler(quizzes),
		Draft:      handlers.NewDraftHandler(store),
		Submission: handlers.NewSubmissionHandler(grading),
		Session:    handlers.NewSessionHandler(manager, hub),
	}, secret)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &server{url: srv.URL, clock: clock}
}

func token(t *testing.T, userID uint) string {
	t.Helper()
	tok, err := middleware.GenerateToken(secret, userID, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *server) call(t *testing.T, userID uint, method, path string, body, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.url+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *server) createQuiz(t *testing.T) *models.Quiz {
	t.Helper()
	var quiz models.Quiz
	status := s.call(t, authorID, http.MethodPost, "/api/quizzes", gin.H{
		"title":            "Rivers",
		"duration_minutes": 2,
		"questions": []gin.H{
			{
				"text": "Longest river in Africa?", "type": "single_choice", "hint": "It flows north",
				"options": []gin.H{{"text": "Congo"}, {"text": "Nile", "is_correct": true}},
			},
			{"text": "River through Vienna?", "type": "short_answer", "accepted_answer": "Danube"},
		},
	}, &quiz)
	require.Equal(t, http.StatusCreated, status)
	require.Len(t, quiz.Questions, 2)
	return &quiz
}

func correct(q models.Question) string {
	for _, o := range q.Options {
		if o.IsCorrect {
			return services.FormatID(o.ID)
		}
	}
	return ""
}

func TestAuthRequired(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.call(t, 0, http.MethodGet, "/api/quizzes", nil, nil))
	assert.Equal(t, http.StatusOK, s.call(t, 0, http.MethodGet, "/health", nil, nil))
}

func TestQuizOwnerRoutes(t *testing.T) {
	s := newServer(t)
	quiz := s.createQuiz(t)
	path := "/api/quizzes/" + services.FormatID(quiz.ID)

	var mine []models.Quiz
	require.Equal(t, http.StatusOK, s.call(t, authorID, http.MethodGet, "/api/quizzes", nil, &mine))
	assert.Len(t, mine, 1)

	assert.Equal(t, http.StatusNotFound, s.call(t, studentID, http.MethodGet, path, nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.call(t, authorID, http.MethodGet, "/api/quizzes/abc", nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.call(t, authorID, http.MethodPost, "/api/quizzes", gin.H{"title": "Empty"}, nil))

	assert.Equal(t, http.StatusOK, s.call(t, authorID, http.MethodDelete, path, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.call(t, studentID, http.MethodGet, path+"/content", nil, nil))
}

// A controller running in the student's browser talks to the REST API
// through the client package.
func TestClientDrivenSession(t *testing.T) {
	s := newServer(t)
	quiz := s.createQuiz(t)
	quizID := services.FormatID(quiz.ID)
	api := client.New(s.url, token(t, studentID))

	local := scheduler.NewVirtual(epoch)
	ctrl := session.NewController(local, session.Collaborators{
		Quizzes:     api,
		Answers:     api,
		Submissions: api,
	}, session.DefaultConfig)
	defer ctrl.Close()

	require.NoError(t, ctrl.Load(context.Background(), quizID))
	assert.Equal(t, 120, ctrl.Remaining())
	require.NoError(t, ctrl.Start())

	first := services.FormatID(quiz.Questions[0].ID)
	second := services.FormatID(quiz.Questions[1].ID)
	require.NoError(t, ctrl.Answer(first, correct(quiz.Questions[0])))
	require.NoError(t, ctrl.Answer(second, " danube"))
	local.Advance(45 * time.Second)

	draft, err := api.LoadDraft(context.Background(), quizID)
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Len(t, draft.Answers, 2)
	require.NotNil(t, draft.StartedAt, "the debounced draft carries the start time")

	res, err := ctrl.Submit(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Score)
	assert.Equal(t, "A+", res.Grade)
	assert.Equal(t, 45, res.TimeSpent)
	assert.NotEmpty(t, res.Feedback)
	assert.Equal(t, session.StatusSubmitted, ctrl.Status())

	draft, err = api.LoadDraft(context.Background(), quizID)
	require.NoError(t, err)
	assert.Nil(t, draft, "grading clears the draft")

	var attempt models.Attempt
	require.Equal(t, http.StatusOK, s.call(t, studentID, http.MethodGet, "/api/attempts/"+res.AttemptID, nil, &attempt))
	assert.Len(t, attempt.Answers, 2)
	assert.Equal(t, http.StatusNotFound, s.call(t, authorID, http.MethodGet, "/api/attempts/"+res.AttemptID, nil, nil))

	_, err = api.FetchQuiz(context.Background(), "424242")
	assert.True(t, errors.Is(err, session.ErrQuizNotFound))
}

func TestRejectsMalformedDraft(t *testing.T) {
	s := newServer(t)
	quiz := s.createQuiz(t)
	path := "/api/quizzes/" + services.FormatID(quiz.ID) + "/progress"

	assert.Equal(t, http.StatusBadRequest, s.call(t, studentID, http.MethodPut, path, gin.H{"currentQuestionIndex": -1}, nil))
	assert.Equal(t, http.StatusNotFound, s.call(t, studentID, http.MethodGet, path, nil, nil))
	assert.Equal(t, http.StatusNoContent, s.call(t, studentID, http.MethodPut, path,
		gin.H{"answers": gin.H{"1": "a"}, "currentQuestionIndex": 1}, nil))
	assert.Equal(t, http.StatusOK, s.call(t, studentID, http.MethodGet, path, nil, nil))
	assert.Equal(t, http.StatusNoContent, s.call(t, studentID, http.MethodDelete, path, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.call(t, studentID, http.MethodGet, path, nil, nil))
}

func TestServerHostedSession(t *testing.T) {
	s := newServer(t)
	quiz := s.createQuiz(t)
	first := services.FormatID(quiz.Questions[0].ID)

	var opened handlers.SessionResponse
	require.Equal(t, http.StatusCreated, s.call(t, studentID, http.MethodPost, "/api/sessions",
		gin.H{"quiz_id": services.FormatID(quiz.ID)}, &opened))
	assert.Equal(t, session.StatusReady, opened.Status)
	assert.Equal(t, 120, opened.Remaining)
	base := "/api/sessions/" + opened.SessionID

	assert.Equal(t, http.StatusNotFound, s.call(t, authorID, http.MethodGet, base, nil, nil))
	assert.Equal(t, http.StatusConflict, s.call(t, studentID, http.MethodPut, base+"/answers/"+first, gin.H{"value": correct(quiz.Questions[0])}, nil),
		"answers need a started session")

	var state handlers.SessionResponse
	require.Equal(t, http.StatusOK, s.call(t, studentID, http.MethodPost, base+"/start", nil, &state))
	assert.Equal(t, session.StatusInProgress, state.Status)

	require.Equal(t, http.StatusOK, s.call(t, studentID, http.MethodPut, base+"/answers/"+first, gin.H{"value": correct(quiz.Questions[0])}, &state))
	assert.Equal(t, 1, state.Answered)
	assert.Equal(t, 50, state.ProgressPercent)
	assert.Equal(t, http.StatusBadRequest, s.call(t, studentID, http.MethodPut, base+"/answers/"+first, gin.H{"value": "nope"}, nil))
	assert.Equal(t, http.StatusBadRequest, s.call(t, studentID, http.MethodPut, base+"/answers/999", gin.H{"value": "x"}, nil))

	var hint struct{ Hint string }
	require.Equal(t, http.StatusOK, s.call(t, studentID, http.MethodPost, base+"/hint", nil, &hint))
	assert.Equal(t, "It flows north", hint.Hint)

	assert.Equal(t, http.StatusBadRequest, s.call(t, studentID, http.MethodPost, base+"/goto", gin.H{"index": 5}, nil))
	require.Equal(t, http.StatusOK, s.call(t, studentID, http.MethodPost, base+"/goto", gin.H{"index": 1}, &state))
	assert.Equal(t, 1, state.CurrentIndex)
	assert.Equal(t, http.StatusBadRequest, s.call(t, studentID, http.MethodPost, base+"/hint", nil, nil), "second question has no hint")

	var flag struct{ Flagged bool }
	require.Equal(t, http.StatusOK, s.call(t, studentID, http.MethodPost, base+"/flags/"+first, nil, &flag))
	assert.True(t, flag.Flagged)

	s.clock.Advance(30 * time.Second)
	require.Equal(t, http.StatusOK, s.call(t, studentID, http.MethodPost, base+"/pause", nil, &state))
	assert.Equal(t, session.StatusPaused, state.Status)
	assert.Equal(t, 90, state.Remaining)
	s.clock.Advance(time.Minute)
	require.Equal(t, http.StatusOK, s.call(t, studentID, http.MethodPost, base+"/resume", nil, &state))
	assert.Equal(t, 90, state.Remaining, "paused time does not count")

	var res session.GradingResult
	require.Equal(t, http.StatusOK, s.call(t, studentID, http.MethodPost, base+"/submit", nil, &res))
	assert.Equal(t, 1, res.Correct)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 30, res.TimeSpent)
	assert.Equal(t, http.StatusConflict, s.call(t, studentID, http.MethodPost, base+"/submit", nil, nil))

	require.Equal(t, http.StatusOK, s.call(t, studentID, http.MethodGet, base, nil, &state))
	assert.Equal(t, session.StatusSubmitted, state.Status)
	require.NotNil(t, state.Result)
	assert.Equal(t, res.AttemptID, state.Result.AttemptID)

	assert.Equal(t, http.StatusOK, s.call(t, studentID, http.MethodDelete, base, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.call(t, studentID, http.MethodGet, base, nil, nil))
}

func TestServerHostedSessionExpires(t *testing.T) {
	s := newServer(t)
	quiz := s.createQuiz(t)

	var opened handlers.SessionResponse
	require.Equal(t, http.StatusCreated, s.call(t, studentID, http.MethodPost, "/api/sessions",
		gin.H{"quiz_id": services.FormatID(quiz.ID)}, &opened))
	base := "/api/sessions/" + opened.SessionID
	require.Equal(t, http.StatusOK, s.call(t, studentID, http.MethodPost, base+"/start", nil, nil))

	s.clock.Advance(2 * time.Minute)

	var state handlers.SessionResponse
	require.Equal(t, http.StatusOK, s.call(t, studentID, http.MethodGet, base, nil, &state))
	assert.Equal(t, session.StatusExpired, state.Status)
	assert.Equal(t, 0, state.Remaining)
	require.NotNil(t, state.Result)
	assert.True(t, state.Result.AutoSubmitted)
	assert.Equal(t, 120, state.Result.TimeSpent)

	assert.Equal(t, http.StatusNotFound, s.call(t, studentID, http.MethodPost, "/api/sessions",
		gin.H{"quiz_id": "999"}, nil))
}
