package scheduler

import (
	"sync"
	"time"
)

// Virtual is a manually advanced scheduler. Nothing runs until Advance is
// called; due callbacks then run one at a time on the caller's goroutine in
// deadline order, with Now set to each callback's deadline. Go runs inline.
type Virtual struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	tasks []*virtualTask
}

type virtualTask struct {
	v        *Virtual
	at       time.Time
	seq      uint64
	fn       func()
	done     bool
	canceled bool
}

// NewVirtual returns a Virtual clock reading start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

func (v *Virtual) AfterFunc(d time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	t := &virtualTask{v: v, at: v.now.Add(d), seq: v.seq, fn: fn}
	v.tasks = append(v.tasks, t)
	return t
}

func (v *Virtual) Go(fn func()) {
	fn()
}

// Advance moves the clock forward by d, running every callback that falls
// due, including callbacks scheduled by callbacks inside the window.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	target := v.now.Add(d)
	v.mu.Unlock()

	for {
		v.mu.Lock()
		t := v.nextDueLocked(target)
		if t == nil {
			v.now = target
			v.mu.Unlock()
			return
		}
		if t.at.After(v.now) {
			v.now = t.at
		}
		t.done = true
		v.mu.Unlock()

		t.fn()
	}
}

// RunPending runs callbacks that are due now without moving the clock.
func (v *Virtual) RunPending() {
	v.Advance(0)
}

// Pending reports how many callbacks are waiting to run.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, t := range v.tasks {
		if !t.done && !t.canceled {
			n++
		}
	}
	return n
}

func (v *Virtual) nextDueLocked(target time.Time) *virtualTask {
	var (
		best *virtualTask
		live = v.tasks[:0]
	)
	for _, t := range v.tasks {
		if t.done || t.canceled {
			continue
		}
		live = append(live, t)
		if t.at.After(target) {
			continue
		}
		if best == nil || t.at.Before(best.at) || (t.at.Equal(best.at) && t.seq < best.seq) {
			best = t
		}
	}
	v.tasks = live
	return best
}

func (t *virtualTask) Cancel() bool {
	t.v.mu.Lock()
	defer t.v.mu.Unlock()
	if t.done || t.canceled {
		return false
	}
	t.canceled = true
	return true
}
