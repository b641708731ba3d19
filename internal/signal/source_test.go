package signal_test

import (
	"math/rand"
	"testing"
	"time"

	"codeberg.org/mutker/sigjitter/internal/clock"
	"codeberg.org/mutker/sigjitter/internal/daq"
	"codeberg.org/mutker/sigjitter/internal/errors"
	"codeberg.org/mutker/sigjitter/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRand replays values, then returns fallback forever.
type scriptedRand struct {
	values   []float64
	fallback float64
	calls    int
}

func (s *scriptedRand) Float64() float64 {
	defer func() { s.calls++ }()
	if s.calls < len(s.values) {
		return s.values[s.calls]
	}
	return s.fallback
}

func TestParseKind(t *testing.T) {
	for _, k := range signal.Kinds() {
		got, err := signal.ParseKind(" " + string(k) + " ")
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	got, err := signal.ParseKind("FLUKE")
	require.NoError(t, err)
	assert.Equal(t, signal.KindFluke, got)

	_, err = signal.ParseKind("sawtooth")
	assert.True(t, errors.HasCode(err, signal.ErrUnknownKind))
}

func TestBitFlip(t *testing.T) {
	assert.Equal(t, signal.High, signal.Low.Flip())
	assert.Equal(t, signal.Low, signal.High.Flip())
}

func TestSquareWaveFlipsOnSchedule(t *testing.T) {
	clk := clock.NewFake(time.Millisecond)
	src, err := signal.New(signal.KindSquare, signal.Params{Clock: clk, HalfPeriod: 10 * time.Millisecond})
	require.NoError(t, err)

	var flips []int
	prev := signal.Low
	for i := 0; i < 100; i++ {
		state := src.Read()
		if state != prev {
			flips = append(flips, i)
			prev = state
		}
	}

	require.GreaterOrEqual(t, len(flips), 9)
	assert.Equal(t, 0, flips[0], "first read flips immediately")
	for i := 2; i < len(flips); i++ {
		assert.Equal(t, 10, flips[i]-flips[i-1], "flip %d", i)
	}
}

func TestSquareWaveCatchesUpAfterLateRead(t *testing.T) {
	clk := clock.NewFake(0)
	src, err := signal.New(signal.KindSquare, signal.Params{Clock: clk, HalfPeriod: 10 * time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, signal.High, src.Read())

	clk.Advance(25 * time.Millisecond)
	assert.Equal(t, signal.High, src.Read(), "two missed flips cancel out")

	clk.Advance(5 * time.Millisecond)
	assert.Equal(t, signal.Low, src.Read())
}

func TestJitterOffsetsEachScheduledFlip(t *testing.T) {
	clk := clock.NewFake(0)
	rng := &scriptedRand{values: []float64{0.5, 1.0, 0.0}, fallback: 0.5}
	src, err := signal.New(signal.KindJitter, signal.Params{
		Clock:      clk,
		HalfPeriod: time.Second,
		MaxJitter:  10 * time.Millisecond,
		Rand:       rng,
	})
	require.NoError(t, err)

	assert.Equal(t, signal.High, src.Read())

	clk.Advance(999 * time.Millisecond)
	assert.Equal(t, signal.High, src.Read())
	clk.Advance(time.Millisecond)
	assert.Equal(t, signal.Low, src.Read(), "offset 0 keeps the nominal half period")

	clk.Advance(1019 * time.Millisecond)
	assert.Equal(t, signal.Low, src.Read())
	clk.Advance(time.Millisecond)
	assert.Equal(t, signal.High, src.Read(), "maximum offset delays the flip by 2x the budget")

	clk.Advance(979 * time.Millisecond)
	assert.Equal(t, signal.High, src.Read())
	clk.Advance(time.Millisecond)
	assert.Equal(t, signal.Low, src.Read(), "minimum offset advances the flip by 2x the budget")
}

func TestRandomnessFlipPersists(t *testing.T) {
	clk := clock.NewFake(0)
	rng := &scriptedRand{values: []float64{0.9, 0.0}, fallback: 0.9}
	src, err := signal.New(signal.KindRandomness, signal.Params{
		Clock:            clk,
		HalfPeriod:       time.Second,
		NoiseProbability: 0.5,
		Rand:             rng,
	})
	require.NoError(t, err)

	assert.Equal(t, signal.High, src.Read())
	assert.Equal(t, signal.Low, src.Read(), "spurious flip")
	assert.Equal(t, signal.Low, src.Read(), "spurious flip is not reverted")

	clk.Advance(time.Second)
	assert.Equal(t, signal.High, src.Read(), "schedule keeps flipping from the new level")
}

func TestFlukeRevertsOnNextRead(t *testing.T) {
	clk := clock.NewFake(0)
	rng := &scriptedRand{values: []float64{0.9, 0.1}, fallback: 0.9}
	src, err := signal.New(signal.KindFluke, signal.Params{
		Clock:            clk,
		HalfPeriod:       time.Second,
		FlukeProbability: 0.5,
		Rand:             rng,
	})
	require.NoError(t, err)

	assert.Equal(t, signal.High, src.Read())
	assert.Equal(t, signal.Low, src.Read(), "glitch")
	assert.Equal(t, signal.High, src.Read(), "glitch reverted")
	assert.Equal(t, 2, rng.calls, "the revert read draws no randomness")
	assert.Equal(t, signal.High, src.Read())
}

func TestDefaultProbabilities(t *testing.T) {
	clk := clock.NewFake(0)
	rng := &scriptedRand{values: []float64{0.9, signal.DefaultNoiseProbability / 2}, fallback: 0.9}
	src, err := signal.New(signal.KindRandomness, signal.Params{Clock: clk, HalfPeriod: time.Second, Rand: rng})
	require.NoError(t, err)

	assert.Equal(t, signal.High, src.Read())
	assert.Equal(t, signal.Low, src.Read(), "draw below the default probability flips")
}

func TestFreshSourcesDoNotShareState(t *testing.T) {
	clk := clock.NewFake(0)
	params := signal.Params{Clock: clk, HalfPeriod: time.Second}

	a, err := signal.New(signal.KindSquare, params)
	require.NoError(t, err)
	assert.Equal(t, signal.High, a.Read())

	b, err := signal.New(signal.KindSquare, params)
	require.NoError(t, err)
	assert.Equal(t, signal.High, b.Read(), "a new source starts its own schedule")
	assert.Equal(t, signal.High, a.Read())
}

func TestNewValidation(t *testing.T) {
	clk := clock.NewFake(0)

	_, err := signal.New(signal.KindSquare, signal.Params{HalfPeriod: time.Second})
	assert.True(t, errors.HasCode(err, signal.ErrInvalidParams))

	_, err = signal.New(signal.KindSquare, signal.Params{Clock: clk})
	assert.True(t, errors.HasCode(err, signal.ErrInvalidParams))

	_, err = signal.New(signal.KindJitter, signal.Params{Clock: clk, HalfPeriod: time.Second})
	assert.True(t, errors.HasCode(err, signal.ErrInvalidParams))

	_, err = signal.New(signal.Kind("triangle"), signal.Params{Clock: clk, HalfPeriod: time.Second})
	assert.True(t, errors.HasCode(err, signal.ErrUnknownKind))

	_, err = signal.New(signal.KindDAQ, signal.Params{})
	assert.True(t, errors.HasCode(err, signal.ErrInvalidParams))
}

func TestDAQPassthrough(t *testing.T) {
	dev := daq.NewDevice("Dev1", daq.WithRand(rand.New(rand.NewSource(7))))
	task := dev.NewTask()
	defer task.Close()

	_, err := signal.New(signal.KindDAQ, signal.Params{Task: task})
	assert.True(t, errors.HasCode(err, daq.ErrNoChannel))

	require.NoError(t, task.AddDIChannel("Dev1/port0/line0"))
	src, err := signal.New(signal.KindDAQ, signal.Params{Task: task})
	require.NoError(t, err)

	seen := map[signal.Bit]int{}
	for i := 0; i < 1000; i++ {
		seen[src.Read()]++
	}
	assert.Len(t, seen, 2)
}
