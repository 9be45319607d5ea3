package services

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"quizsession/scheduler"
	"quizsession/session"
)

var ErrSessionNotFound = errors.New("session not found")

// DraftStore is the per-student draft storage. DraftService implements it
// on redis.
type DraftStore interface {
	SaveAnswer(ctx context.Context, studentID uint, quizID, questionID, value string) error
	SaveProgress(ctx context.Context, studentID uint, quizID string, draft session.Draft) error
	LoadDraft(ctx context.Context, studentID uint, quizID string) (*session.Draft, error)
	ClearDraft(ctx context.Context, studentID uint, quizID string) error
}

// Grader grades a submission on behalf of a student.
type Grader interface {
	SubmitQuiz(ctx context.Context, studentID uint, quizID string, sub session.Submission) (*session.GradingResult, error)
}

// Broadcaster fans session events out to connected viewers.
type Broadcaster interface {
	Broadcast(sessionID string, ev session.Event)
}

// Session is a hosted quiz attempt.
type Session struct {
	ID         string
	StudentID  uint
	QuizID     string
	CreatedAt  time.Time
	Controller *session.Controller

	linger scheduler.Handle
}

type SessionOptions struct {
	Session session.Config
	// Linger is how long a finished session stays readable before it is
	// dropped.
	Linger time.Duration
}

// SessionManager hosts session controllers for students, one per student and
// quiz at a time.
type SessionManager struct {
	sched       scheduler.Scheduler
	quizzes     session.QuizSource
	drafts      DraftStore
	grader      Grader
	broadcaster Broadcaster
	opts        SessionOptions

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionManager(sched scheduler.Scheduler, quizzes session.QuizSource, drafts DraftStore, grader Grader, broadcaster Broadcaster, opts SessionOptions) *SessionManager {
	if opts.Linger <= 0 {
		opts.Linger = 10 * time.Minute
	}
	return &SessionManager{
		sched:       sched,
		quizzes:     quizzes,
		drafts:      drafts,
		grader:      grader,
		broadcaster: broadcaster,
		opts:        opts,
		sessions:    make(map[string]*Session),
	}
}

// Open loads quizID for the student and hosts it under a new session id. A
// student who already has an unfinished session for the quiz gets that one
// back.
func (m *SessionManager) Open(ctx context.Context, studentID uint, quizID string) (*Session, error) {
	m.mu.Lock()
	existing := m.unfinishedLocked(studentID, quizID)
	m.mu.Unlock()
	if existing != nil {
		glog.V(2).Infof("student %d resumes session %s", studentID, existing.ID)
		return existing, nil
	}

	s := &Session{
		ID:        uuid.NewString(),
		StudentID: studentID,
		QuizID:    quizID,
		CreatedAt: m.sched.Now(),
	}
	collab := session.Collaborators{
		Quizzes:     m.quizzes,
		Submissions: studentGrader{grader: m.grader, studentID: studentID},
		Notifier:    m.notifier(s.ID),
	}
	if m.drafts != nil {
		collab.Answers = studentDrafts{store: m.drafts, studentID: studentID}
	}
	s.Controller = session.NewController(m.sched, collab, m.opts.Session)

	if err := s.Controller.Load(ctx, quizID); err != nil {
		s.Controller.Close()
		return nil, err
	}

	m.mu.Lock()
	// a concurrent Open may have finished loading first
	if existing := m.unfinishedLocked(studentID, quizID); existing != nil {
		m.mu.Unlock()
		s.Controller.Close()
		glog.V(2).Infof("student %d resumes session %s opened concurrently", studentID, existing.ID)
		return existing, nil
	}
	m.sessions[s.ID] = s
	m.mu.Unlock()
	glog.Infof("opened session %s: student %d, quiz %s", s.ID, studentID, quizID)
	return s, nil
}

func (m *SessionManager) unfinishedLocked(studentID uint, quizID string) *Session {
	for _, s := range m.sessions {
		if s.StudentID == studentID && s.QuizID == quizID && !s.Controller.Status().IsTerminal() {
			return s
		}
	}
	return nil
}

// Get returns the session if it belongs to the student.
func (m *SessionManager) Get(sessionID string, studentID uint) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.StudentID != studentID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Snapshot implements StateSource for the hub.
func (m *SessionManager) Snapshot(sessionID string) (session.Snapshot, bool) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return session.Snapshot{}, false
	}
	return s.Controller.Snapshot(), true
}

// Close tears the session down. Answers already saved stay in the draft.
func (m *SessionManager) Close(sessionID string, studentID uint) error {
	s, err := m.Get(sessionID, studentID)
	if err != nil {
		return err
	}
	m.remove(s.ID)
	return nil
}

// Len reports the number of hosted sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown pauses every running session, saves pending drafts and closes
// all sessions.
func (m *SessionManager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		if s.Controller.Status() == session.StatusInProgress {
			if err := s.Controller.Pause(); err != nil {
				glog.Warningf("pausing session %s on shutdown: %v", s.ID, err)
			}
		}
		if err := s.Controller.FlushDraft(ctx); err != nil {
			glog.Warningf("saving draft of session %s on shutdown: %v", s.ID, err)
		}
		m.closeSession(s)
	}
	glog.Infof("closed %d sessions", len(all))
}

func (m *SessionManager) remove(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if ok {
		m.closeSession(s)
		glog.V(2).Infof("removed session %s", sessionID)
	}
}

func (m *SessionManager) closeSession(s *Session) {
	m.mu.Lock()
	if s.linger != nil {
		s.linger.Cancel()
		s.linger = nil
	}
	m.mu.Unlock()
	s.Controller.Close()
}

func (m *SessionManager) notifier(sessionID string) session.Notifier {
	return session.NotifierFunc(func(ev session.Event) {
		session.LogNotifier{}.Notify(ev)
		if m.broadcaster != nil {
			m.broadcaster.Broadcast(sessionID, ev)
		}
		if ev.Kind == session.EventStatus && ev.Status.IsTerminal() {
			m.scheduleRemoval(sessionID)
		}
	})
}

func (m *SessionManager) scheduleRemoval(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.linger != nil {
		return
	}
	s.linger = m.sched.AfterFunc(m.opts.Linger, func() { m.remove(sessionID) })
}

// studentDrafts binds a DraftStore to one student.
type studentDrafts struct {
	store     DraftStore
	studentID uint
}

func (d studentDrafts) SaveAnswer(ctx context.Context, quizID, questionID, value string) error {
	return d.store.SaveAnswer(ctx, d.studentID, quizID, questionID, value)
}

func (d studentDrafts) SaveProgress(ctx context.Context, quizID string, draft session.Draft) error {
	return d.store.SaveProgress(ctx, d.studentID, quizID, draft)
}

func (d studentDrafts) LoadDraft(ctx context.Context, quizID string) (*session.Draft, error) {
	return d.store.LoadDraft(ctx, d.studentID, quizID)
}

type studentGrader struct {
	grader    Grader
	studentID uint
}

func (g studentGrader) SubmitQuiz(ctx context.Context, quizID string, sub session.Submission) (*session.GradingResult, error) {
	return g.grader.SubmitQuiz(ctx, g.studentID, quizID, sub)
}
