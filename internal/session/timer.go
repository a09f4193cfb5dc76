package session

import "time"

// Clock reports the current time. Sessions read time only through a Clock
// so tests can drive timers without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock
func SystemClock() Clock {
	return systemClock{}
}

// Timer is a polled interval timer. Nothing fires on its own: the owner
// checks Expired between receive polls.
type Timer struct {
	clock    Clock
	start    time.Time
	interval time.Duration
}

// NewTimer creates a timer that starts now
func NewTimer(clock Clock, interval time.Duration) *Timer {
	t := &Timer{clock: clock}
	t.Set(interval)
	return t
}

// Set changes the interval and restarts the timer
func (t *Timer) Set(interval time.Duration) {
	t.interval = interval
	t.start = t.clock.Now()
}

// Reset restarts the timer with its current interval
func (t *Timer) Reset() {
	t.start = t.clock.Now()
}

// Expired reports whether the interval has elapsed since the last start
func (t *Timer) Expired() bool {
	return t.clock.Now().Sub(t.start) >= t.interval
}

// Interval returns the configured interval
func (t *Timer) Interval() time.Duration {
	return t.interval
}

// Remaining returns the time left before expiry, zero once expired
func (t *Timer) Remaining() time.Duration {
	left := t.interval - t.clock.Now().Sub(t.start)
	if left < 0 {
		return 0
	}
	return left
}
