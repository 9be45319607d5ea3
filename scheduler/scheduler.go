// Package scheduler provides cancellable delayed callbacks and background
// work behind an interface, so timer driven code can run against real time
// in production and against a virtual clock in tests.
package scheduler

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Handle cancels a callback registered with AfterFunc.
type Handle interface {
	// Cancel prevents the callback from running. It reports whether the
	// call was prevented; false means it already ran or was cancelled.
	Cancel() bool
}

// Scheduler is the time source and callback runner used by sessions.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Handle
	// Go runs fn in the background. Callers must not hold locks that fn
	// needs, since some implementations run it inline.
	Go(fn func())
}

// Clock schedules callbacks on a k8s clock. Callbacks and background work
// each run on their own goroutine.
type Clock struct {
	clock clock.WithDelayedExecution
	wg    sync.WaitGroup
}

// NewClock returns a Clock backed by c. A nil c means real time.
func NewClock(c clock.WithDelayedExecution) *Clock {
	if c == nil {
		c = clock.RealClock{}
	}
	return &Clock{clock: c}
}

func (s *Clock) Now() time.Time {
	return s.clock.Now()
}

func (s *Clock) AfterFunc(d time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}
	// fake clocks may fire while holding their own lock, so the callback
	// always hops to a fresh goroutine before touching the clock again
	t := s.clock.AfterFunc(d, func() { s.Go(fn) })
	return timerHandle{t: t}
}

func (s *Clock) Go(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Wait blocks until all callbacks and background work started so far have
// returned.
func (s *Clock) Wait() {
	s.wg.Wait()
}

type timerHandle struct {
	t clock.Timer
}

func (h timerHandle) Cancel() bool {
	return h.t.Stop()
}
