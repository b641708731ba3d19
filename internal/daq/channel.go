package daq

import (
	"fmt"
	"sync"

	"codeberg.org/mutker/sigjitter/internal/errors"
)

// ChannelKind tags a channel as digital or analog.
type ChannelKind int

const (
	Digital ChannelKind = iota
	Analog
)

func (k ChannelKind) String() string {
	switch k {
	case Digital:
		return "digital"
	case Analog:
		return "analog"
	default:
		return fmt.Sprintf("ChannelKind(%d)", int(k))
	}
}

// Channel is a physical line on a device. Both kinds expose the same Sample
// operation; digital lines report 0 or 1.
type Channel struct {
	Kind ChannelKind
	Name string
	dev  *Device
}

func (c Channel) Sample() float64 {
	switch c.Kind {
	case Digital:
		return float64(c.dev.ReadDigital(c.Name))
	case Analog:
		return c.dev.ReadAnalog(c.Name)
	default:
		return 0
	}
}

// Task groups the channels read together, mirroring the driver's task API.
type Task struct {
	dev      *Device
	mu       sync.Mutex
	channels []Channel
	closed   bool
}

// NewTask opens a task on the device. Close it when done.
func (d *Device) NewTask() *Task {
	return &Task{dev: d}
}

// AddDIChannel registers a digital input line.
func (t *Task) AddDIChannel(name string) error {
	return t.add(Digital, name)
}

// AddAIChannel registers an analog input line.
func (t *Task) AddAIChannel(name string) error {
	return t.add(Analog, name)
}

func (t *Task) add(kind ChannelKind, name string) error {
	errFactory := errors.New()
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errFactory.New(ErrTaskClosed)
	}

	for _, ch := range t.channels {
		if ch.Name == name {
			return errFactory.WithData(ErrDuplicateChannel, name)
		}
	}

	t.channels = append(t.channels, Channel{Kind: kind, Name: name, dev: t.dev})

	return nil
}

// Channels returns a copy of the registered channels in registration order.
func (t *Task) Channels() []Channel {
	t.mu.Lock()
	defer t.mu.Unlock()

	channels := make([]Channel, len(t.channels))
	copy(channels, t.channels)

	return channels
}

// DigitalChannel returns the first registered digital input.
func (t *Task) DigitalChannel() (Channel, error) {
	errFactory := errors.New()
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return Channel{}, errFactory.New(ErrTaskClosed)
	}

	for _, ch := range t.channels {
		if ch.Kind == Digital {
			return ch, nil
		}
	}

	return Channel{}, errFactory.WithData(ErrNoChannel, Digital.String())
}

// Read samples every registered channel once, in registration order.
func (t *Task) Read() ([]float64, error) {
	errFactory := errors.New()
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, errFactory.New(ErrTaskClosed)
	}
	if len(t.channels) == 0 {
		return nil, errFactory.New(ErrNoChannel)
	}

	values := make([]float64, len(t.channels))
	for i, ch := range t.channels {
		values[i] = ch.Sample()
	}

	return values, nil
}

func (t *Task) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	t.channels = nil

	return nil
}
