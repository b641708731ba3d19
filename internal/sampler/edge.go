package sampler

import (
	"time"

	"codeberg.org/mutker/sigjitter/internal/signal"
)

// Transition is a change of observed level.
type Transition struct {
	// Delay is the time since the previous transition, or since the recorder's
	// origin for the first one when the recorder was not primed.
	Delay time.Duration
	State signal.Bit
	// At is the observation time relative to the recorder's origin.
	At time.Duration
}

// EdgeRecorder folds a stream of reads into transitions.
type EdgeRecorder struct {
	origin      time.Duration
	prevTime    time.Duration
	prevState   signal.Bit
	known       bool
	transitions []Transition
}

// NewEdgeRecorder returns a recorder whose first delay is measured from origin.
func NewEdgeRecorder(origin time.Duration) *EdgeRecorder {
	return &EdgeRecorder{
		origin:   origin,
		prevTime: origin,
	}
}

// Prime seeds the recorder with a transition observed before its window, so
// the first recorded delay is a full, phase-aligned interval.
func (r *EdgeRecorder) Prime(state signal.Bit, at time.Duration) {
	r.prevState = state
	r.prevTime = at
	r.known = true
}

// Primed reports whether a previous level is known.
func (r *EdgeRecorder) Primed() bool {
	return r.known
}

// Observe records state as seen at now. It reports whether a transition was
// recorded. The first observation of an unprimed recorder only sets the level.
func (r *EdgeRecorder) Observe(state signal.Bit, now time.Duration) bool {
	if !r.known {
		r.prevState = state
		r.known = true
		return false
	}

	if state == r.prevState {
		return false
	}

	r.transitions = append(r.transitions, Transition{
		Delay: now - r.prevTime,
		State: state,
		At:    now - r.origin,
	})
	r.prevTime = now
	r.prevState = state

	return true
}

// Len returns the number of recorded transitions.
func (r *EdgeRecorder) Len() int {
	return len(r.transitions)
}

// Transitions returns a copy of the recorded transitions in time order.
func (r *EdgeRecorder) Transitions() []Transition {
	out := make([]Transition, len(r.transitions))
	copy(out, r.transitions)
	return out
}
