// Package sampler runs the busy-poll acquisition loop over a digital source and
// records state transitions with their inter-transition delays.
package sampler

import (
	"context"
	"math/rand"
	"time"

	"codeberg.org/mutker/sigjitter/internal/clock"
	"codeberg.org/mutker/sigjitter/internal/errors"
	"codeberg.org/mutker/sigjitter/internal/signal"
)

const (
	ErrInvalidOptions = errors.ErrorCode("sampler_invalid_options")

	// ctxCheckMask sets how often, in reads, the loop polls its context.
	ctxCheckMask = 1<<12 - 1
)

// Options configures a Loop.
type Options struct {
	// Duration is the length of the timed window.
	Duration time.Duration

	// PreRoll waits for a first transition before opening the window so that
	// every recorded delay is phase aligned.
	PreRoll bool

	// PreRollTimeout bounds the wait for the first transition. Defaults to
	// Duration.
	PreRollTimeout time.Duration

	// Pacer, when set, is called after every read in the timed window.
	Pacer Pacer
}

// Pacer inserts a delay between reads.
type Pacer interface {
	Pause()
}

// RandomPacer sleeps a uniform random duration in [0, Max) per call, which
// makes the read cadence irregular.
type RandomPacer struct {
	Max   time.Duration
	Rand  signal.Rand
	Sleep func(time.Duration)
}

// NewRandomPacer returns a RandomPacer using a time-seeded generator and time.Sleep.
func NewRandomPacer(maxDelay time.Duration) *RandomPacer {
	return &RandomPacer{
		Max:   maxDelay,
		Rand:  rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // cadence simulation
		Sleep: time.Sleep,
	}
}

func (p *RandomPacer) Pause() {
	p.Sleep(time.Duration(p.Rand.Float64() * float64(p.Max)))
}

// Capture is the raw result of one run of the loop.
type Capture struct {
	Transitions []Transition
	// Reads counts reads inside the timed window; pre-roll reads are excluded.
	Reads   int
	Elapsed time.Duration
	// Aligned is true when the window opened on a pre-roll transition.
	Aligned bool
}

// SamplesPerSecond is the achieved read rate over the timed window.
func (c *Capture) SamplesPerSecond() float64 {
	if c.Elapsed <= 0 {
		return 0
	}
	return float64(c.Reads) / c.Elapsed.Seconds()
}

// Loop polls a Source as fast as the host allows.
type Loop struct {
	src  signal.Source
	clk  clock.Clock
	opts Options
}

// New returns a Loop over src. The source must be fresh and owned by this loop.
func New(src signal.Source, clk clock.Clock, opts Options) (*Loop, error) {
	errFactory := errors.New()

	if src == nil || clk == nil {
		return nil, errFactory.WithData(ErrInvalidOptions, "source and clock are required")
	}
	if opts.Duration <= 0 {
		return nil, errFactory.WithData(ErrInvalidOptions, "duration must be positive")
	}
	if opts.PreRollTimeout <= 0 {
		opts.PreRollTimeout = opts.Duration
	}

	return &Loop{src: src, clk: clk, opts: opts}, nil
}

// Run samples until the elapsed window exceeds the configured duration.
// Cancelling ctx aborts the run with ErrCanceled.
func (l *Loop) Run(ctx context.Context) (*Capture, error) {
	var (
		aligned    bool
		alignState signal.Bit
		alignedAt  time.Duration
	)
	if l.opts.PreRoll {
		state, at, err := l.align(ctx)
		if err != nil {
			return nil, err
		}
		aligned, alignState, alignedAt = true, state, at
	}

	start := l.clk.Now()
	rec := NewEdgeRecorder(start)
	if aligned {
		rec.Prime(alignState, alignedAt)
	}

	reads := 0
	var now time.Duration
	for {
		now = l.clk.Now()

		state := l.src.Read()
		reads++

		if l.opts.Pacer != nil {
			l.opts.Pacer.Pause()
		}

		rec.Observe(state, now)

		if now-start > l.opts.Duration {
			break
		}

		// A paced loop reads slowly enough to poll ctx every time.
		if l.opts.Pacer != nil || reads&ctxCheckMask == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.New().Wrap(errors.ErrCanceled, err)
			}
		}
	}

	return &Capture{
		Transitions: rec.Transitions(),
		Reads:       reads,
		Elapsed:     now - start,
		Aligned:     aligned,
	}, nil
}

// align spins until the source changes level and returns the new level and
// the time it was seen.
func (l *Loop) align(ctx context.Context) (signal.Bit, time.Duration, error) {
	errFactory := errors.New()
	deadline := l.clk.Now() + l.opts.PreRollTimeout

	prev := l.src.Read()
	for i := 1; ; i++ {
		now := l.clk.Now()
		state := l.src.Read()

		if state != prev {
			return state, now, nil
		}

		if now > deadline {
			return 0, 0, errFactory.WithData(errors.ErrPreRollTimeout, l.opts.PreRollTimeout.String())
		}

		if i&ctxCheckMask == 0 {
			if err := ctx.Err(); err != nil {
				return 0, 0, errFactory.Wrap(errors.ErrCanceled, err)
			}
		}
	}
}
