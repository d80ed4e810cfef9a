// Package trickle implements the Trickle algorithm (RFC 6206): an adaptive
// timer that suppresses redundant transmissions while a neighborhood agrees
// on some piece of state, and resets to the minimum interval as soon as it
// hears an inconsistency.
//
// Timer schedules each transmission point and each interval end with
// time.AfterFunc, so callbacks run on the goroutines those timers start.
// All state transitions are guarded by one mutex, and a generation number
// discards stale timers, so Start/Stop/HearConsistent/HearInconsistent are
// safe to call concurrently with the callback.
package trickle

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Config holds a Timer's fixed parameters.
type Config struct {
	// Imin is the minimum interval.
	Imin time.Duration

	// Doublings is the number of times Imin may double to reach Imax.
	Doublings uint

	// K is the redundancy constant.  K == 0 disables suppression: the
	// callback always fires.
	K uint

	// Fire is called, on a goroutine started by time.AfterFunc, when the trickle
	// interval's transmission point arrives and the redundancy check
	// passes.
	Fire func()
}

// Imax returns Imin * 2^Doublings.
func (c Config) Imax() time.Duration {
	return c.Imin << c.Doublings
}

// Timer is an RFC 6206 Trickle timer.  The zero Timer is not usable; build
// one with [New].
type Timer struct {
	conf Config

	mu      sync.Mutex
	i       time.Duration
	point   time.Duration // transmission-point offset chosen for the current interval.
	c       uint
	timer   *time.Timer
	stopped bool
	gen     uint64 // incremented on every Stop/reset to invalidate stale timers.
}

// New builds a Timer from conf.  The timer is not running until [Timer.Start]
// is called.
func New(conf Config) (t *Timer) {
	return &Timer{conf: conf, i: conf.Imin, stopped: true}
}

// Start begins the Trickle algorithm: I is set to a random value in
// [Imin, Imax] and the first interval begins.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = false
	t.i = randDuration(t.conf.Imin, t.conf.Imax())
	t.beginInterval()
}

// Stop cancels the timer.  It is idempotent and safe to call from any
// goroutine, including from within the Fire callback.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopAndInvalidate()
}

func (t *Timer) stopAndInvalidate() {
	t.stopped = true
	t.gen++

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// HearConsistent records a consistency observation: c += 1.
func (t *Timer) HearConsistent() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.c++
}

// HearInconsistent resets the timer to Imin and restarts the current
// interval, unless it is already at Imin, in which case it is a no-op.
func (t *Timer) HearInconsistent() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || t.i == t.conf.Imin {
		return
	}

	t.i = t.conf.Imin
	t.beginInterval()
}

// beginInterval starts a new interval: c is reset, a transmission point t is
// chosen uniformly from [I/2, I], and the transmission-point timer is armed;
// the interval-end timer is armed when that point is reached.  Must be
// called with mu held.
func (t *Timer) beginInterval() {
	t.c = 0
	t.gen++
	gen := t.gen

	if t.timer != nil {
		t.timer.Stop()
	}

	t.point = randDuration(t.i/2, t.i)
	t.timer = time.AfterFunc(t.point, func() { t.onTransmissionPoint(gen) })
}

func (t *Timer) onTransmissionPoint(gen uint64) {
	t.mu.Lock()

	if t.stopped || gen != t.gen {
		t.mu.Unlock()

		return
	}

	fire := t.conf.K == 0 || t.c < t.conf.K
	remaining := t.i - t.point

	t.timer = time.AfterFunc(remaining, func() { t.onIntervalEnd(gen) })
	t.mu.Unlock()

	if fire && t.conf.Fire != nil {
		t.conf.Fire()
	}
}

func (t *Timer) onIntervalEnd(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || gen != t.gen {
		return
	}

	next := t.i * 2
	if max := t.conf.Imax(); next > max {
		next = max
	}

	t.i = next
	t.beginInterval()
}

// I returns the timer's current interval, for tests and diagnostics.
func (t *Timer) I() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.i
}

func randDuration(lo, hi time.Duration) (d time.Duration) {
	if hi <= lo {
		return lo
	}

	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}
