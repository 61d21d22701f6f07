// Package clock abstracts wall-clock time and timers.
//
// Every time-based policy in tandem (session heartbeat, notification
// freshness window, refresh debounce interval, server timestamps) reads time
// through a Clock so tests can drive it deterministically with
// testutil.FakeClock instead of sleeping.
package clock

import "time"

// Clock provides the current time and cancellable one-shot timers.
//
// Thread-safety: implementations must be safe for concurrent use.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f in its own goroutine after d has elapsed.
	// The returned Timer can cancel the call.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending call created by Clock.AfterFunc.
type Timer interface {
	// Stop prevents the call from firing.
	// Returns false if the call already fired or was already stopped.
	Stop() bool
}

// Real is the Clock backed by the time package.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// UnixMilli returns the clock's current time as Unix milliseconds.
// All persisted timestamps in tandem use this representation.
func UnixMilli(c Clock) int64 {
	return c.Now().UnixMilli()
}
