// Package clock abstracts wall time and one-shot timers so that polling code
// can be driven by a virtual clock in tests.
//
// # Architecture boundaries
//
// This package only schedules callbacks. It does NOT know about login
// handshakes, HTTP, or Redis.
//
// # What this package must NOT do
//
//   - Start goroutines from [Fake]; virtual callbacks run on the caller of [Fake.Advance].
//   - Import chamaWeb or any of its subpackages.
package clock

import "time"

// Timer is a handle to one scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It returns false if the
	// callback already ran or the timer was already stopped.
	Stop() bool
}

// Clock supplies the current time and one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// Real returns a [Clock] backed by the time package.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
