package session

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"quizsession/scheduler"
)

type SaveStatus string

const (
	SaveIdle    SaveStatus = "idle"
	SavePending SaveStatus = "pending"
	SaveSaving  SaveStatus = "saving"
	SaveSaved   SaveStatus = "saved"
	SaveError   SaveStatus = "error"
)

// AutoSaver pushes answers and drafts to an AnswerSaver in the background.
// Every answer is written through immediately; whole drafts are debounced so
// a burst of edits becomes one save of the latest draft. The status reflects
// the most recently started save. While held, nothing reaches the saver.
type AutoSaver struct {
	sched    scheduler.Scheduler
	saver    AnswerSaver
	quizID   string
	delay    time.Duration
	timeout  time.Duration
	onStatus func(SaveStatus, error)

	mu        sync.Mutex
	pending   scheduler.Handle
	latest    *Draft
	held      bool
	inflight  sync.WaitGroup
	seq       uint64
	status    SaveStatus
	lastSaved time.Time
	lastErr   error
}

func NewAutoSaver(s scheduler.Scheduler, saver AnswerSaver, quizID string, delay, timeout time.Duration, onStatus func(SaveStatus, error)) *AutoSaver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AutoSaver{
		sched:    s,
		saver:    saver,
		quizID:   quizID,
		delay:    delay,
		timeout:  timeout,
		onStatus: onStatus,
		status:   SaveIdle,
	}
}

// Schedule replaces the pending draft with d and restarts the quiet period.
func (a *AutoSaver) Schedule(d Draft) {
	if a.saver == nil {
		return
	}
	a.mu.Lock()
	a.latest = &d
	if a.pending != nil {
		a.pending.Cancel()
		a.pending = nil
	}
	if a.held {
		a.mu.Unlock()
		return
	}
	a.pending = a.sched.AfterFunc(a.delay, a.flushFromTimer)
	changed := a.status != SavePending
	a.status = SavePending
	a.mu.Unlock()

	if changed {
		a.report(SavePending, nil)
	}
}

// Flush saves the pending draft now, if there is one.
func (a *AutoSaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	d := a.latest
	a.latest = nil
	if a.pending != nil {
		a.pending.Cancel()
		a.pending = nil
	}
	a.mu.Unlock()

	if d == nil {
		return nil
	}
	return a.saveProgress(ctx, *d)
}

// Hold stops saves from reaching the saver and waits for saves already
// under way to return. The pending draft is handed back unsaved.
func (a *AutoSaver) Hold(ctx context.Context) (*Draft, error) {
	a.mu.Lock()
	a.held = true
	d := a.latest
	a.latest = nil
	if a.pending != nil {
		a.pending.Cancel()
		a.pending = nil
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return d, nil
	case <-ctx.Done():
		return d, ctx.Err()
	}
}

// Release lets saves through again and schedules d, if any.
func (a *AutoSaver) Release(d *Draft) {
	a.mu.Lock()
	a.held = false
	a.mu.Unlock()
	if d != nil {
		a.Schedule(*d)
	}
}

// SaveAnswer writes one answer through to the saver.
func (a *AutoSaver) SaveAnswer(ctx context.Context, questionID, value string) error {
	if a.saver == nil {
		return nil
	}
	seq, ok := a.begin()
	if !ok {
		return nil
	}
	defer a.inflight.Done()
	err := a.saver.SaveAnswer(ctx, a.quizID, questionID, value)
	if err != nil {
		err = &AnswerSaveError{QuizID: a.quizID, QuestionID: questionID, Err: err}
	}
	a.finish(seq, err)
	return err
}

// Stop drops the pending draft without saving it.
func (a *AutoSaver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending != nil {
		a.pending.Cancel()
		a.pending = nil
	}
	a.latest = nil
	if a.status == SavePending {
		a.status = SaveIdle
	}
}

func (a *AutoSaver) Status() SaveStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *AutoSaver) LastSaved() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSaved
}

func (a *AutoSaver) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

func (a *AutoSaver) flushFromTimer() {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.Flush(ctx); err != nil {
		glog.Warningf("autosave: %v", err)
	}
}

func (a *AutoSaver) saveProgress(ctx context.Context, d Draft) error {
	seq, ok := a.begin()
	if !ok {
		return nil
	}
	defer a.inflight.Done()
	d.LastSaved = a.sched.Now()
	err := a.saver.SaveProgress(ctx, a.quizID, d)
	if err != nil {
		err = &AnswerSaveError{QuizID: a.quizID, Err: err}
	}
	a.finish(seq, err)
	return err
}

// begin registers a save. It reports false while held.
func (a *AutoSaver) begin() (uint64, bool) {
	a.mu.Lock()
	if a.held {
		a.mu.Unlock()
		return 0, false
	}
	a.inflight.Add(1)
	a.seq++
	seq := a.seq
	a.status = SaveSaving
	a.mu.Unlock()

	a.report(SaveSaving, nil)
	return seq, true
}

func (a *AutoSaver) finish(seq uint64, err error) {
	a.mu.Lock()
	if seq != a.seq {
		// a newer save started; it owns the status
		a.mu.Unlock()
		return
	}
	status := SaveSaved
	if err != nil {
		status = SaveError
		a.lastErr = err
	} else {
		a.lastSaved = a.sched.Now()
		a.lastErr = nil
	}
	if err == nil && a.latest != nil {
		status = SavePending
	}
	a.status = status
	a.mu.Unlock()

	a.report(status, err)
}

func (a *AutoSaver) report(s SaveStatus, err error) {
	if a.onStatus != nil {
		a.onStatus(s, err)
	}
}
