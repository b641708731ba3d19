package logger_test

import (
	"bytes"
	"testing"

	"codeberg.org/mutker/sigjitter/internal/errors"
	"codeberg.org/mutker/sigjitter/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logger.LogLevel
	}{
		{"debug", logger.DebugLevel},
		{"INFO", logger.InfoLevel},
		{"", logger.InfoLevel},
		{"warning", logger.WarnLevel},
		{"warn", logger.WarnLevel},
		{"error", logger.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := logger.ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := logger.ParseLevel("verbose")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestNewWritesStructuredFields(t *testing.T) {
	logger.SetLogLevel(logger.DebugLevel)
	t.Cleanup(func() { logger.SetLogLevel(logger.InfoLevel) })

	var buf bytes.Buffer
	log := logger.New(&buf)

	log.Info().Str("scenario", "signal-jitter").Msg("run complete")
	assert.Contains(t, buf.String(), "run complete")
	assert.Contains(t, buf.String(), "signal-jitter")

	buf.Reset()
	log.ErrorWithCode(errors.New().New(errors.ErrUnderSampled)).Msg("throughput")
	assert.Contains(t, buf.String(), "under_sampled")
}

func TestLevelFiltering(t *testing.T) {
	logger.SetLogLevel(logger.WarnLevel)
	t.Cleanup(func() { logger.SetLogLevel(logger.InfoLevel) })

	var buf bytes.Buffer
	log := logger.New(&buf)

	log.Debug().Msg("hidden")
	log.Info().Msg("hidden too")
	assert.Empty(t, buf.String())

	log.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNopDiscards(t *testing.T) {
	log := logger.Nop()
	assert.NotPanics(t, func() {
		log.Error().Str("k", "v").Msg("dropped")
	})
}
