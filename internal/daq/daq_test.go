package daq_test

import (
	"math/rand"
	"testing"

	"codeberg.org/mutker/sigjitter/internal/daq"
	"codeberg.org/mutker/sigjitter/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDevice() *daq.Device {
	return daq.NewDevice("", daq.WithRand(rand.New(rand.NewSource(1))))
}

func TestDeviceDefaults(t *testing.T) {
	dev := newDevice()
	assert.Equal(t, daq.DefaultDeviceName, dev.Name())
	assert.Equal(t, "DAQ Dev1", dev.String())
}

func TestReadAnalogRange(t *testing.T) {
	dev := newDevice()
	for i := 0; i < 10000; i++ {
		v := dev.ReadAnalog("Dev1/ai0")
		require.GreaterOrEqual(t, v, -5.0)
		require.LessOrEqual(t, v, 5.0)
	}
}

func TestReadDigitalIsBit(t *testing.T) {
	dev := newDevice()
	seen := map[uint8]bool{}
	for i := 0; i < 1000; i++ {
		v := dev.ReadDigital("Dev1/port0/line0")
		require.LessOrEqual(t, v, uint8(1))
		seen[v] = true
	}
	assert.Len(t, seen, 2, "both levels should appear over 1000 reads")
}

func TestChannelSampleDispatchesOnKind(t *testing.T) {
	task := newDevice().NewTask()
	require.NoError(t, task.AddDIChannel("Dev1/port0/line0"))
	require.NoError(t, task.AddAIChannel("Dev1/ai0"))

	channels := task.Channels()
	require.Len(t, channels, 2)
	assert.Equal(t, daq.Digital, channels[0].Kind)
	assert.Equal(t, daq.Analog, channels[1].Kind)

	for i := 0; i < 100; i++ {
		d := channels[0].Sample()
		assert.True(t, d == 0 || d == 1)
		a := channels[1].Sample()
		assert.True(t, a >= -5 && a <= 5)
	}
}

func TestTaskChannelErrors(t *testing.T) {
	task := newDevice().NewTask()

	_, err := task.Read()
	assert.True(t, errors.HasCode(err, daq.ErrNoChannel))

	_, err = task.DigitalChannel()
	assert.True(t, errors.HasCode(err, daq.ErrNoChannel))

	require.NoError(t, task.AddAIChannel("Dev1/ai0"))
	_, err = task.DigitalChannel()
	assert.True(t, errors.HasCode(err, daq.ErrNoChannel), "analog channels do not satisfy a digital lookup")

	err = task.AddAIChannel("Dev1/ai0")
	assert.True(t, errors.HasCode(err, daq.ErrDuplicateChannel))

	values, err := task.Read()
	require.NoError(t, err)
	assert.Len(t, values, 1)

	require.NoError(t, task.Close())
	_, err = task.Read()
	assert.True(t, errors.HasCode(err, daq.ErrTaskClosed))
	assert.True(t, errors.HasCode(task.AddDIChannel("x"), daq.ErrTaskClosed))
}

func TestChannelKindString(t *testing.T) {
	assert.Equal(t, "digital", daq.Digital.String())
	assert.Equal(t, "analog", daq.Analog.String())
	assert.Equal(t, "ChannelKind(7)", daq.ChannelKind(7).String())
}
