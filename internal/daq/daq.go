package daq

import (
	"math/rand"
	"sync"
	"time"

	"codeberg.org/mutker/sigjitter/internal/errors"
)

const (
	DefaultDeviceName = "Dev1"

	// ADC characteristics of the emulated device
	adcResolution = 14
	adcRange      = 10.0
)

const (
	ErrNoChannel        = errors.ErrorCode("daq_no_channel")
	ErrDuplicateChannel = errors.ErrorCode("daq_duplicate_channel")
	ErrTaskClosed       = errors.ErrorCode("daq_task_closed")
)

// Device emulates a DAQ board. Analog reads return a random 14-bit conversion
// scaled to ±5 V and digital reads return a random bit.
type Device struct {
	name string
	mu   sync.Mutex
	rng  *rand.Rand
}

// Option configures a Device.
type Option func(*Device)

// WithRand replaces the device's random source, mainly for deterministic tests.
func WithRand(rng *rand.Rand) Option {
	return func(d *Device) {
		d.rng = rng
	}
}

// NewDevice returns an emulated device.
func NewDevice(name string, opts ...Option) *Device {
	if name == "" {
		name = DefaultDeviceName
	}

	d := &Device{
		name: name,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // emulation only
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) String() string {
	return "DAQ " + d.name
}

// ReadAnalog returns a voltage in [-5.0, +5.0]. The channel only mirrors the
// driver's call shape.
func (d *Device) ReadAnalog(_ string) float64 {
	d.mu.Lock()
	code := d.rng.Intn(1<<adcResolution + 1)
	d.mu.Unlock()

	value := float64(code) / float64(1<<adcResolution)
	return value*adcRange - adcRange/2
}

// ReadDigital returns 0 (low) or 1 (high).
func (d *Device) ReadDigital(_ string) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint8(d.rng.Intn(2))
}
