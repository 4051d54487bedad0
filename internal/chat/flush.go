package chat

import (
	"sync"
	"time"
)

// DelayedTask runs fn once, delay after it was scheduled.
//
// Scheduling an already pending task does nothing, so the first call in a burst sets the deadline.
type DelayedTask struct {
	delay time.Duration
	fn    func()

	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
}

// NewDelayedTask creates an idle [DelayedTask].
func NewDelayedTask(delay time.Duration, fn func()) *DelayedTask {
	return &DelayedTask{delay: delay, fn: fn}
}

// Schedule arms the task unless it is already pending. It reports whether it armed the task.
func (d *DelayedTask) Schedule() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		return false
	}

	seq := d.seq
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.seq != seq || d.timer == nil {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.seq++
		d.mu.Unlock()

		d.fn()
	})
	return true
}

// Cancel disarms a pending task. It reports whether a run was prevented.
func (d *DelayedTask) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.seq++
	return true
}

// Pending reports whether the task is armed.
func (d *DelayedTask) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
