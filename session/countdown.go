package session

import (
	"sync"
	"time"

	"quizsession/scheduler"
)

// Countdown decrements a second counter once per scheduler tick. It never
// goes below zero, and reaching zero calls onExpire exactly once. Callbacks
// run outside the countdown's lock.
type Countdown struct {
	sched    scheduler.Scheduler
	onTick   func(remaining int)
	onExpire func()

	mu        sync.Mutex
	remaining int
	running   bool
	expired   bool
	gen       uint64
	handle    scheduler.Handle
}

func NewCountdown(s scheduler.Scheduler, remaining int, onTick func(int), onExpire func()) *Countdown {
	if remaining < 0 {
		remaining = 0
	}
	return &Countdown{
		sched:     s,
		onTick:    onTick,
		onExpire:  onExpire,
		remaining: remaining,
	}
}

// Start arms the countdown from its current value. It reports false when
// already running or expired.
func (c *Countdown) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running || c.expired {
		return false
	}
	c.running = true
	c.gen++
	gen := c.gen
	if c.remaining == 0 {
		c.handle = c.sched.AfterFunc(0, func() { c.expire(gen) })
		return true
	}
	c.arm(gen)
	return true
}

// Stop cancels the pending tick. It reports false when not running.
func (c *Countdown) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return false
	}
	c.running = false
	c.gen++
	if c.handle != nil {
		c.handle.Cancel()
		c.handle = nil
	}
	return true
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// arm must be called with c.mu held.
func (c *Countdown) arm(gen uint64) {
	c.handle = c.sched.AfterFunc(time.Second, func() { c.tick(gen) })
}

func (c *Countdown) tick(gen uint64) {
	c.mu.Lock()
	if !c.running || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.remaining--
	remaining := c.remaining
	done := remaining == 0
	if done {
		c.running = false
		c.expired = true
		c.handle = nil
	} else {
		c.arm(gen)
	}
	c.mu.Unlock()

	if c.onTick != nil {
		c.onTick(remaining)
	}
	if done && c.onExpire != nil {
		c.onExpire()
	}
}

func (c *Countdown) expire(gen uint64) {
	c.mu.Lock()
	if !c.running || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.expired = true
	c.handle = nil
	c.mu.Unlock()

	if c.onExpire != nil {
		c.onExpire()
	}
}
