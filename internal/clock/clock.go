// Package clock abstracts time so that timers and polling loops can be
// driven deterministically in tests.
//
// Production code uses Real(); tests use Fake() and call Advance.
package clock

import "time"

// Clock is the subset of the time package used by lifeline.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the time once d elapsed.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d elapsed. The returned Timer can cancel the call.
	AfterFunc(d time.Duration, f func()) *Timer

	// Sleep blocks for at least d.
	Sleep(d time.Duration)
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stop func() bool
}

// Stop prevents the call from happening. Returns false if the call already
// happened or the timer was already stopped.
func (t *Timer) Stop() bool { return t.stop() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stop: t.Stop}
}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
