// Package debounce delays a call until a quiet period has elapsed since the
// last trigger.
package debounce

import (
	"sync"
	"time"
)

// Timer is the handle returned by a Scheduler.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. RealScheduler uses time.AfterFunc.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler is the wall-clock Scheduler.
var RealScheduler Scheduler = realScheduler{}

// Debouncer restarts its delay on every Trigger; only the last triggered
// function runs.
type Debouncer struct {
	delay     time.Duration
	scheduler Scheduler

	mu    sync.Mutex
	gen   uint64
	timer Timer
}

// New returns a Debouncer. A nil scheduler means RealScheduler.
func New(delay time.Duration, scheduler Scheduler) *Debouncer {
	if scheduler == nil {
		scheduler = RealScheduler
	}
	return &Debouncer{delay: delay, scheduler: scheduler}
}

// Delay returns the configured quiet period.
func (d *Debouncer) Delay() time.Duration { return d.delay }

// Trigger schedules f after the delay, cancelling anything pending. The
// returned func cancels this particular trigger if it has not fired yet.
func (d *Debouncer) Trigger(f func()) (cancel func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.gen++
	gen := d.gen
	d.timer = d.scheduler.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.gen != gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		f()
	})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.gen == gen {
			d.stopLocked()
			d.gen++
		}
	}
}

// Cancel drops any pending call.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.gen++
}

// Pending reports whether a call is waiting to fire.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
