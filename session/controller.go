package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"

	"quizsession/scheduler"
)

// Collaborators are the remote services a Controller talks to. Answers and
// Notifier may be nil.
type Collaborators struct {
	Quizzes     QuizSource
	Answers     AnswerSaver
	Submissions Submitter
	Notifier    Notifier
}

type Config struct {
	// AutoSaveDelay is the quiet period before a draft is saved.
	AutoSaveDelay time.Duration
	// Warnings are the remaining-time thresholds that raise a warning.
	Warnings []time.Duration
	// CallTimeout bounds background saves and the auto-submit call.
	CallTimeout time.Duration
}

var DefaultConfig = Config{
	AutoSaveDelay: 30 * time.Second,
	Warnings:      []time.Duration{5 * time.Minute, time.Minute},
	CallTimeout:   30 * time.Second,
}

// Controller drives one timed quiz attempt:
//
//	idle -> loading -> ready -> in_progress <-> paused
//	in_progress -> submitting -> submitted | expired
//
// A failed submission returns to in_progress. Methods are safe for
// concurrent use; collaborators and the notifier are called without the
// controller's lock held.
type Controller struct {
	sched scheduler.Scheduler
	deps  Collaborators
	cfg   Config

	mu        sync.Mutex
	status    Status
	closed    bool
	quiz      *Quiz
	questions map[string]*Question
	answers   *AnswerStore
	current   int
	hintShown bool
	startedAt time.Time
	total     int
	timer     *Countdown
	autosave  *AutoSaver
	warnings  []int
	warned    map[int]bool
	result    *GradingResult
	lastErr   error
}

func NewController(s scheduler.Scheduler, deps Collaborators, cfg Config) *Controller {
	if deps.Notifier == nil {
		deps.Notifier = LogNotifier{}
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig.CallTimeout
	}
	warnings := make([]int, 0, len(cfg.Warnings))
	for _, w := range cfg.Warnings {
		if secs := int(w / time.Second); secs > 0 {
			warnings = append(warnings, secs)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(warnings)))

	return &Controller{
		sched:    s,
		deps:     deps,
		cfg:      cfg,
		status:   StatusIdle,
		answers:  NewAnswerStore(),
		warnings: warnings,
		warned:   make(map[int]bool),
	}
}

// Load fetches the quiz and restores any saved draft. On failure nothing is
// committed, the session returns to idle and a *LoadError is returned.
func (c *Controller) Load(ctx context.Context, quizID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.status != StatusIdle {
		c.mu.Unlock()
		return ErrAlreadyLoaded
	}
	c.status = StatusLoading
	c.mu.Unlock()
	c.emit(Event{Kind: EventStatus, QuizID: quizID, Status: StatusLoading})

	quiz, err := c.deps.Quizzes.FetchQuiz(ctx, quizID)
	if err == nil && (quiz == nil || len(quiz.Questions) == 0) {
		err = ErrEmptyQuiz
	}
	if err != nil {
		lerr := &LoadError{QuizID: quizID, Err: err}
		c.mu.Lock()
		c.status = StatusIdle
		c.lastErr = lerr
		c.mu.Unlock()
		glog.Errorf("error loading quiz %s: %v", quizID, err)
		c.emit(Event{Kind: EventLoadFailed, QuizID: quizID, Status: StatusIdle, Error: lerr.Error()})
		return lerr
	}

	var draft *Draft
	if c.deps.Answers != nil {
		draft, err = c.deps.Answers.LoadDraft(ctx, quizID)
		if err != nil {
			glog.Warningf("could not load draft for quiz %s, starting fresh: %v", quizID, err)
			draft = nil
		}
	}

	now := c.sched.Now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	c.quiz = quiz
	c.questions = make(map[string]*Question, len(quiz.Questions))
	for i := range quiz.Questions {
		c.questions[quiz.Questions[i].ID] = &quiz.Questions[i]
	}
	minutes := quiz.DurationMinutes
	if minutes < 1 {
		minutes = 1
	}
	c.total = minutes * 60
	remaining := c.total

	c.answers.Restore(draft, now, func(id string) bool { _, ok := c.questions[id]; return ok })
	if draft != nil {
		if draft.CurrentQuestionIndex >= 0 && draft.CurrentQuestionIndex < len(quiz.Questions) {
			c.current = draft.CurrentQuestionIndex
		}
		switch {
		case draft.StartedAt != nil && !draft.StartedAt.IsZero():
			c.startedAt = *draft.StartedAt
			remaining = c.total - int(now.Sub(c.startedAt)/time.Second)
		case draft.ElapsedSeconds > 0:
			remaining = c.total - draft.ElapsedSeconds
		}
		if remaining > c.total {
			remaining = c.total
		}
		if remaining < 0 {
			remaining = 0
		}
		glog.V(2).Infof("restored draft for quiz %s: %d answers, %ds remaining", quizID, c.answers.Answered(), remaining)
	}
	for _, w := range c.warnings {
		if w >= remaining {
			c.warned[w] = true
		}
	}

	c.timer = NewCountdown(c.sched, remaining, c.onTick, c.onExpire)
	c.autosave = NewAutoSaver(c.sched, c.deps.Answers, quiz.ID, c.cfg.AutoSaveDelay, c.cfg.CallTimeout, c.onSaveStatus)
	c.status = StatusReady
	c.lastErr = nil
	c.mu.Unlock()

	c.emit(Event{Kind: EventStatus, QuizID: quiz.ID, Status: StatusReady, Remaining: remaining, Formatted: FormatRemaining(remaining)})
	return nil
}

// Start begins the countdown. A restored start timestamp is kept.
func (c *Controller) Start() error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.status != StatusReady {
		c.mu.Unlock()
		return ErrNotReady
	}
	if c.startedAt.IsZero() {
		c.startedAt = c.sched.Now()
	}
	c.status = StatusInProgress
	c.timer.Start()
	ev := c.statusEventLocked()
	c.mu.Unlock()

	c.emit(ev)
	return nil
}

// Answer records value as the answer to questionID, writes it through and
// schedules a draft save.
func (c *Controller) Answer(questionID, value string) error {
	c.mu.Lock()
	q, err := c.mutableQuestionLocked(questionID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if q.Type.HasOptions() && value != "" && !q.hasOption(value) {
		c.mu.Unlock()
		return ErrInvalidOption
	}
	now := c.sched.Now()
	c.answers.Set(questionID, value, now)
	draft := c.draftLocked(now)
	progress := c.progressEventLocked()
	c.mu.Unlock()

	c.persistAnswer(questionID, value, draft)
	c.emit(progress)
	return nil
}

// ClearAnswer removes the answer to questionID.
func (c *Controller) ClearAnswer(questionID string) error {
	c.mu.Lock()
	if _, err := c.mutableQuestionLocked(questionID); err != nil {
		c.mu.Unlock()
		return err
	}
	now := c.sched.Now()
	c.answers.Clear(questionID, now)
	draft := c.draftLocked(now)
	progress := c.progressEventLocked()
	c.mu.Unlock()

	c.persistAnswer(questionID, "", draft)
	c.emit(progress)
	return nil
}

// ToggleFlag flips the review flag on questionID and returns the new value.
// Flags only travel with draft saves.
func (c *Controller) ToggleFlag(questionID string) (bool, error) {
	c.mu.Lock()
	if _, err := c.mutableQuestionLocked(questionID); err != nil {
		c.mu.Unlock()
		return false, err
	}
	now := c.sched.Now()
	flagged := c.answers.ToggleFlag(questionID, now)
	draft := c.draftLocked(now)
	c.mu.Unlock()

	c.autosave.Schedule(draft)
	return flagged, nil
}

// GoTo moves to the question at index. Out of range indexes are rejected
// and leave the position unchanged.
func (c *Controller) GoTo(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usableLocked(); err != nil {
		return err
	}
	if c.quiz == nil || c.status.IsTerminal() || c.status == StatusSubmitting {
		return ErrNotInProgress
	}
	if index < 0 || index >= len(c.quiz.Questions) {
		return ErrIndexOutOfRange
	}
	c.current = index
	c.hintShown = false
	return nil
}

func (c *Controller) Next() error {
	return c.GoTo(c.CurrentIndex() + 1)
}

func (c *Controller) Previous() error {
	return c.GoTo(c.CurrentIndex() - 1)
}

// RevealHint shows the hint of the current question until the student
// navigates away.
func (c *Controller) RevealHint() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usableLocked(); err != nil {
		return "", err
	}
	if c.status != StatusInProgress {
		return "", ErrNotInProgress
	}
	hint := c.quiz.Questions[c.current].Hint
	if hint == "" {
		return "", ErrNoHint
	}
	c.hintShown = true
	return hint, nil
}

// Pause stops the countdown and saves the draft. Pausing a paused session
// does nothing.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	switch c.status {
	case StatusPaused:
		c.mu.Unlock()
		return nil
	case StatusInProgress:
	default:
		c.mu.Unlock()
		return ErrNotInProgress
	}
	c.status = StatusPaused
	c.timer.Stop()
	draft := c.draftLocked(c.sched.Now())
	ev := c.statusEventLocked()
	c.mu.Unlock()

	c.emit(ev)
	c.autosave.Schedule(draft)
	c.sched.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
		defer cancel()
		if err := c.autosave.Flush(ctx); err != nil {
			glog.Warningf("saving draft on pause: %v", err)
		}
	})
	return nil
}

// Resume restarts the countdown from exactly where it stopped. Resuming a
// session that is not paused does nothing.
func (c *Controller) Resume() error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.status != StatusPaused {
		c.mu.Unlock()
		return nil
	}
	c.status = StatusInProgress
	c.timer.Start()
	ev := c.statusEventLocked()
	c.mu.Unlock()

	c.emit(ev)
	return nil
}

// Submit hands every answer to the grader. While the call is outstanding the
// countdown and draft saves are held and further submits are rejected. Once
// dispatched the call is not cancelled with ctx; it is bounded by
// CallTimeout. On failure the session goes back to in progress so the
// student can retry.
func (c *Controller) Submit(ctx context.Context, auto bool) (*GradingResult, error) {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	switch c.status {
	case StatusInProgress:
	case StatusSubmitting:
		c.mu.Unlock()
		return nil, ErrSubmitInFlight
	case StatusSubmitted, StatusExpired:
		c.mu.Unlock()
		return nil, ErrAlreadySubmitted
	default:
		c.mu.Unlock()
		return nil, ErrNotInProgress
	}
	c.status = StatusSubmitting
	c.timer.Stop()
	quizID := c.quiz.ID
	sub := c.submissionLocked(auto)
	autosave := c.autosave
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CallTimeout)
	defer cancel()

	glog.Infof("submitting quiz %s: %d answers, %ds spent, auto=%t", quizID, len(sub.Answers), sub.TimeSpent, auto)
	c.emit(Event{Kind: EventStatus, QuizID: quizID, Status: StatusSubmitting, AutoSubmit: auto})

	// the grader clears the stored draft, so no save may land after it
	held, err := autosave.Hold(ctx)
	if err != nil {
		glog.Warningf("quiz %s: draft saves still running at submit: %v", quizID, err)
	}

	res, err := c.deps.Submissions.SubmitQuiz(ctx, quizID, sub)
	if err != nil {
		autosave.Release(held)
		serr := &SubmitError{QuizID: quizID, Auto: auto, Err: err}
		c.mu.Lock()
		c.status = StatusInProgress
		if !c.closed && !c.timer.Expired() {
			c.timer.Start()
		}
		c.lastErr = serr
		ev := c.statusEventLocked()
		c.mu.Unlock()

		glog.Errorf("error submitting quiz %s: %v", quizID, err)
		c.emit(Event{Kind: EventSubmitFailed, QuizID: quizID, Status: StatusInProgress, AutoSubmit: auto, Error: serr.Error()})
		c.emit(ev)
		return nil, serr
	}
	if res == nil {
		res = &GradingResult{QuizID: quizID, TimeSpent: sub.TimeSpent}
	}
	res.AutoSubmitted = auto

	c.mu.Lock()
	c.status = StatusSubmitted
	if auto {
		c.status = StatusExpired
	}
	c.result = res
	c.lastErr = nil
	c.autosave.Stop()
	status := c.status
	c.mu.Unlock()

	c.emit(Event{Kind: EventStatus, QuizID: quizID, Status: status, AutoSubmit: auto})
	c.emit(Event{Kind: EventSubmitted, QuizID: quizID, Status: status, AutoSubmit: auto, Result: res})
	return res, nil
}

// FlushDraft saves any draft still waiting for its quiet period.
func (c *Controller) FlushDraft(ctx context.Context) error {
	c.mu.Lock()
	a := c.autosave
	c.mu.Unlock()
	if a == nil {
		return nil
	}
	return a.Flush(ctx)
}

// Close tears the session down: the countdown and any pending draft save
// are cancelled. An outstanding submission is left to finish.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	if c.autosave != nil {
		c.autosave.Stop()
	}
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked()
}

func (c *Controller) FormatRemaining() string {
	return FormatRemaining(c.Remaining())
}

// Progress is the answered fraction at full precision.
func (c *Controller) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ProgressRatio(c.answers.Answered(), c.questionCountLocked())
}

// ProgressPercent is Progress rounded for display.
func (c *Controller) ProgressPercent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ProgressPercent(c.answers.Answered(), c.questionCountLocked())
}

func (c *Controller) AnswerFor(questionID string) (Answer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answers.Get(questionID)
}

// Result is the grading result once the session is submitted.
func (c *Controller) Result() *GradingResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

func (c *Controller) SaveStatus() SaveStatus {
	c.mu.Lock()
	a := c.autosave
	c.mu.Unlock()
	if a == nil {
		return SaveIdle
	}
	return a.Status()
}

// Snapshot is a point-in-time view of a session for display.
type Snapshot struct {
	QuizID          string         `json:"quizId"`
	Title           string         `json:"title"`
	Status          Status         `json:"status"`
	QuestionIDs     []string       `json:"questionIds"`
	CurrentIndex    int            `json:"currentIndex"`
	CurrentQuestion *Question      `json:"currentQuestion,omitempty"`
	HintShown       bool           `json:"hintShown"`
	StartedAt       *time.Time     `json:"startedAt,omitempty"`
	Duration        int            `json:"duration"`
	Remaining       int            `json:"remaining"`
	Formatted       string         `json:"formatted"`
	Answers         []Answer       `json:"answers"`
	Flagged         []string       `json:"flagged"`
	Answered        int            `json:"answered"`
	Total           int            `json:"total"`
	Progress        float64        `json:"progress"`
	ProgressPercent int            `json:"progressPercent"`
	SaveStatus      SaveStatus     `json:"saveStatus"`
	Result          *GradingResult `json:"result,omitempty"`
	LastError       string         `json:"lastError,omitempty"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.remainingLocked()
	answered := c.answers.Answered()
	total := c.questionCountLocked()
	s := Snapshot{
		Status:          c.status,
		CurrentIndex:    c.current,
		HintShown:       c.hintShown,
		Duration:        c.total,
		Remaining:       remaining,
		Formatted:       FormatRemaining(remaining),
		Answers:         c.answers.All(),
		Flagged:         c.answers.Flagged(),
		Answered:        answered,
		Total:           total,
		Progress:        ProgressRatio(answered, total),
		ProgressPercent: ProgressPercent(answered, total),
		SaveStatus:      SaveIdle,
		Result:          c.result,
	}
	if c.quiz != nil {
		s.QuizID = c.quiz.ID
		s.Title = c.quiz.Title
		s.QuestionIDs = make([]string, len(c.quiz.Questions))
		for i, q := range c.quiz.Questions {
			s.QuestionIDs[i] = q.ID
		}
		q := c.quiz.Questions[c.current]
		s.CurrentQuestion = &q
	}
	if !c.startedAt.IsZero() {
		t := c.startedAt
		s.StartedAt = &t
	}
	if c.autosave != nil {
		s.SaveStatus = c.autosave.Status()
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

func (c *Controller) onTick(remaining int) {
	c.mu.Lock()
	if c.closed || c.status != StatusInProgress {
		c.mu.Unlock()
		return
	}
	events := []Event{{
		Kind:      EventTick,
		QuizID:    c.quiz.ID,
		Status:    c.status,
		Remaining: remaining,
		Formatted: FormatRemaining(remaining),
	}}
	for _, w := range c.warnings {
		if remaining <= w && !c.warned[w] {
			c.warned[w] = true
			events = append(events, Event{
				Kind:      EventWarning,
				QuizID:    c.quiz.ID,
				Status:    c.status,
				Remaining: remaining,
				Formatted: FormatRemaining(remaining),
				Threshold: w,
				Message:   fmt.Sprintf("%s remaining", describeThreshold(w)),
			})
		}
	}
	c.mu.Unlock()

	for _, ev := range events {
		c.emit(ev)
	}
}

func (c *Controller) onExpire() {
	c.mu.Lock()
	quizID := ""
	if c.quiz != nil {
		quizID = c.quiz.ID
	}
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	glog.Infof("time is up for quiz %s, submitting", quizID)
	c.sched.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
		defer cancel()
		if _, err := c.Submit(ctx, true); err != nil {
			glog.Warningf("auto-submit of quiz %s did not complete: %v", quizID, err)
		}
	})
}

func (c *Controller) onSaveStatus(s SaveStatus, err error) {
	ev := Event{Kind: EventSaveStatus, SaveStatus: s}
	c.mu.Lock()
	if c.quiz != nil {
		ev.QuizID = c.quiz.ID
	}
	c.mu.Unlock()
	if err != nil {
		ev.Error = err.Error()
	}
	c.emit(ev)
}

func (c *Controller) persistAnswer(questionID, value string, draft Draft) {
	c.autosave.Schedule(draft)
	c.sched.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
		defer cancel()
		if err := c.autosave.SaveAnswer(ctx, questionID, value); err != nil {
			glog.Warningf("%v", err)
		}
	})
}

func (c *Controller) emit(ev Event) {
	c.deps.Notifier.Notify(ev)
}

func (c *Controller) usableLocked() error {
	if c.closed {
		return ErrSessionClosed
	}
	return nil
}

func (c *Controller) mutableQuestionLocked(questionID string) (*Question, error) {
	if err := c.usableLocked(); err != nil {
		return nil, err
	}
	if c.status != StatusInProgress {
		return nil, ErrNotInProgress
	}
	q, ok := c.questions[questionID]
	if !ok {
		return nil, ErrUnknownQuestion
	}
	return q, nil
}

func (c *Controller) remainingLocked() int {
	if c.timer == nil {
		return c.total
	}
	return c.timer.Remaining()
}

func (c *Controller) questionCountLocked() int {
	if c.quiz == nil {
		return 0
	}
	return len(c.quiz.Questions)
}

func (c *Controller) draftLocked(now time.Time) Draft {
	d := Draft{
		Answers:              c.answers.Values(),
		CurrentQuestionIndex: c.current,
		FlaggedQuestions:     c.answers.Flagged(),
		LastSaved:            now,
		ElapsedSeconds:       c.total - c.remainingLocked(),
	}
	if !c.startedAt.IsZero() {
		t := c.startedAt
		d.StartedAt = &t
	}
	return d
}

func (c *Controller) submissionLocked(auto bool) Submission {
	sub := Submission{
		Answers:      make([]SubmittedAnswer, 0, c.answers.Len()),
		TimeSpent:    c.total - c.remainingLocked(),
		IsAutoSubmit: auto,
	}
	if !c.startedAt.IsZero() {
		t := c.startedAt
		sub.StartedAt = &t
	}
	// flag-only entries carry no answer; the grader counts them as skipped
	for _, q := range c.quiz.Questions {
		if a, ok := c.answers.Get(q.ID); ok && a.Value != "" {
			sub.Answers = append(sub.Answers, SubmittedAnswer{QuestionID: q.ID, Value: a.Value, Flagged: a.Flagged})
		}
	}
	return sub
}

func (c *Controller) statusEventLocked() Event {
	remaining := c.remainingLocked()
	return Event{
		Kind:      EventStatus,
		QuizID:    c.quiz.ID,
		Status:    c.status,
		Remaining: remaining,
		Formatted: FormatRemaining(remaining),
	}
}

func (c *Controller) progressEventLocked() Event {
	return Event{
		Kind:     EventProgress,
		QuizID:   c.quiz.ID,
		Status:   c.status,
		Progress: ProgressPercent(c.answers.Answered(), c.questionCountLocked()),
	}
}
