// Package signal provides digital sources for the sampling loop: synthetic
// square-wave generators with optional perturbations, and a passthrough to a
// DAQ task's digital line.
package signal

import (
	"math/rand"
	"strings"
	"time"

	"codeberg.org/mutker/sigjitter/internal/clock"
	"codeberg.org/mutker/sigjitter/internal/daq"
	"codeberg.org/mutker/sigjitter/internal/errors"
)

const (
	ErrUnknownKind   = errors.ErrorCode("signal_unknown_kind")
	ErrInvalidParams = errors.ErrorCode("signal_invalid_params")

	DefaultNoiseProbability = 0.000075
	DefaultFlukeProbability = 0.000075
)

// Bit is a digital line level.
type Bit uint8

const (
	Low  Bit = 0
	High Bit = 1
)

// Flip returns the opposite level.
func (b Bit) Flip() Bit {
	return b ^ 1
}

// Source is the single capability the sampling loop consumes. A Source may keep
// internal state and must not be shared between runs.
type Source interface {
	Read() Bit
}

// Kind selects a Source implementation.
type Kind string

const (
	// KindSquare flips on a fixed half-period schedule.
	KindSquare Kind = "square"
	// KindJitter offsets every scheduled flip by a uniform random amount.
	KindJitter Kind = "jitter"
	// KindRandomness adds independent spurious flips on top of the schedule.
	KindRandomness Kind = "randomness"
	// KindFluke injects single-read glitches that revert on the next read.
	KindFluke Kind = "fluke"
	// KindDAQ reads the digital line of a DAQ task.
	KindDAQ Kind = "daq"
)

// Kinds lists every selectable kind.
func Kinds() []Kind {
	return []Kind{KindSquare, KindJitter, KindRandomness, KindFluke, KindDAQ}
}

// ParseKind maps a configured name onto a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}

	return "", errors.New().WithData(ErrUnknownKind, s)
}

// Rand is the randomness a generator draws from. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Params configures a Source.
type Params struct {
	Clock      clock.Clock
	HalfPeriod time.Duration

	// MaxJitter is the jitter budget; KindJitter offsets flips by up to twice it.
	MaxJitter time.Duration

	NoiseProbability float64
	FlukeProbability float64

	// Rand defaults to a time-seeded generator.
	Rand Rand

	// Task is required for KindDAQ.
	Task *daq.Task
}

// New builds a fresh Source of the given kind.
func New(kind Kind, p Params) (Source, error) {
	errFactory := errors.New()

	if kind == KindDAQ {
		if p.Task == nil {
			return nil, errFactory.WithData(ErrInvalidParams, "daq source requires a task")
		}
		return FromTask(p.Task)
	}

	if p.Clock == nil {
		return nil, errFactory.WithData(ErrInvalidParams, "clock is required")
	}
	if p.HalfPeriod <= 0 {
		return nil, errFactory.WithData(ErrInvalidParams, "half period must be positive")
	}
	if p.Rand == nil {
		p.Rand = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // simulation only
	}

	g := &generator{
		clk:  p.Clock,
		half: p.HalfPeriod,
		rng:  p.Rand,
	}

	switch kind {
	case KindSquare:
	case KindJitter:
		if p.MaxJitter <= 0 {
			return nil, errFactory.WithData(ErrInvalidParams, "jitter source requires a positive max jitter")
		}
		g.spread = 2 * p.MaxJitter
	case KindRandomness:
		g.noise = probability(p.NoiseProbability, DefaultNoiseProbability)
	case KindFluke:
		g.fluke = probability(p.FlukeProbability, DefaultFlukeProbability)
	default:
		return nil, errFactory.WithData(ErrUnknownKind, string(kind))
	}

	// The first read flips immediately; the schedule is anchored there.
	g.next = g.clk.Now()

	return g, nil
}

func probability(p, fallback float64) float64 {
	if p <= 0 || p > 1 {
		return fallback
	}
	return p
}

// generator is a square wave with optional perturbations. Exactly one of
// spread, noise and fluke is non-zero for the perturbed kinds.
type generator struct {
	clk   clock.Clock
	half  time.Duration
	next  time.Duration
	state Bit
	rng   Rand

	spread time.Duration
	noise  float64
	fluke  float64

	reverting bool
}

func (g *generator) Read() Bit {
	if g.reverting {
		g.state = g.state.Flip()
		g.reverting = false
		return g.state
	}

	if g.fluke > 0 && g.rng.Float64() < g.fluke {
		g.state = g.state.Flip()
		g.reverting = true
		return g.state
	}

	if g.noise > 0 && g.rng.Float64() < g.noise {
		g.state = g.state.Flip()
		return g.state
	}

	now := g.clk.Now()
	for now >= g.next {
		g.state = g.state.Flip()
		g.next += g.interval()
	}

	return g.state
}

// interval is the delay until the flip after the one just applied. A read that
// arrives late applies every missed flip so the level matches the schedule.
func (g *generator) interval() time.Duration {
	if g.spread == 0 {
		return g.half
	}

	offset := time.Duration((2*g.rng.Float64() - 1) * float64(g.spread))
	if d := g.half + offset; d > 0 {
		return d
	}

	return time.Nanosecond
}

type taskSource struct {
	ch daq.Channel
}

// FromTask returns a Source reading the task's first digital input.
func FromTask(task *daq.Task) (Source, error) {
	ch, err := task.DigitalChannel()
	if err != nil {
		return nil, err
	}

	return &taskSource{ch: ch}, nil
}

func (s *taskSource) Read() Bit {
	if s.ch.Sample() != 0 {
		return High
	}
	return Low
}
