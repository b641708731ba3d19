// Package clock provides the monotonic time source shared by signal generators
// and the sampling loop.
package clock

import (
	"sync"
	"time"
)

// Clock reports elapsed time since a fixed origin. Implementations must be
// monotonic and non-decreasing.
type Clock interface {
	Now() time.Duration
}

type monotonic struct {
	origin time.Time
}

// Monotonic returns a Clock anchored at the moment of the call. It relies on the
// monotonic reading carried by time.Time, so wall-clock adjustments do not
// affect it.
func Monotonic() Clock {
	return &monotonic{origin: time.Now()}
}

func (m *monotonic) Now() time.Duration {
	return time.Since(m.origin)
}

// Fake is a manually driven Clock. Every call to Now advances it by Step after
// reporting, which lets a busy loop make progress without real time passing.
type Fake struct {
	mu   sync.Mutex
	now  time.Duration
	Step time.Duration
}

// NewFake returns a Fake clock starting at zero that advances step per Now call.
func NewFake(step time.Duration) *Fake {
	return &Fake{Step: step}
}

func (f *Fake) Now() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now
	f.now += f.Step

	return now
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	if d <= 0 {
		return
	}

	f.mu.Lock()
	f.now += d
	f.mu.Unlock()
}

// Peek returns the current reading without advancing.
func (f *Fake) Peek() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}
