package runner_test

import (
	"testing"

	"codeberg.org/mutker/sigjitter/internal/errors"
	"codeberg.org/mutker/sigjitter/internal/runner"
	"codeberg.org/mutker/sigjitter/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(scs []runner.Scenario) []string {
	out := make([]string, len(scs))
	for i, sc := range scs {
		out[i] = sc.Name
	}
	return out
}

func TestSelectAll(t *testing.T) {
	scs, err := runner.Select([]string{"signal-jitter", "all"})
	require.NoError(t, err)
	assert.Equal(t, names(runner.Scenarios()), names(scs))
	assert.Len(t, scs, 6)
}

func TestSelectKeepsSuiteOrder(t *testing.T) {
	scs, err := runner.Select([]string{"daq-sampling", " Signal-Jitter ", "daq-sampling"})
	require.NoError(t, err)
	assert.Equal(t, []string{"signal-jitter", "daq-sampling"}, names(scs))
}

func TestSelectErrors(t *testing.T) {
	_, err := runner.Select([]string{"signal-jitter", "sawtooth"})
	assert.True(t, errors.HasCode(err, errors.ErrInvalidScenario))

	_, err = runner.Select(nil)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidScenario))
}

func TestForSource(t *testing.T) {
	tests := map[signal.Kind]string{
		signal.KindSquare:     "signal-jitter",
		signal.KindJitter:     "signal-jitter-noise",
		signal.KindRandomness: "signal-randomness",
		signal.KindFluke:      "signal-single-sample-noise",
		signal.KindDAQ:        "daq-sampling",
	}

	for kind, want := range tests {
		sc, err := runner.ForSource(kind)
		require.NoError(t, err, kind)
		assert.Equal(t, want, sc.Name)
	}

	_, err := runner.ForSource(signal.Kind("sawtooth"))
	assert.True(t, errors.HasCode(err, errors.ErrInvalidScenario))
}

func TestScenarioModes(t *testing.T) {
	sc, ok := runner.Lookup("daq-sampling-irregular")
	require.True(t, ok)
	assert.Equal(t, runner.ModeThroughput, sc.Mode)
	assert.True(t, sc.Irregular)
	assert.Equal(t, "throughput", sc.Mode.String())

	_, ok = runner.Lookup("nope")
	assert.False(t, ok)
}
