// Package pid guards a device against concurrent runners with a PID file per
// device.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/sigjitter/internal/errors"
)

const filePrefix = "sigjitter-"

// Path returns the PID file used for device inside dir.
func Path(dir, device string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, device)

	return filepath.Join(dir, filePrefix+name+".pid")
}

// Acquire takes the lock for device in the system temp directory.
func Acquire(device string) (release func() error, err error) {
	return AcquireIn(os.TempDir(), device)
}

// AcquireIn writes the current process ID to the device's PID file in dir. It
// fails with ErrAlreadyRunning while another live process holds the file; a
// file left by a dead process is taken over. The returned func removes the
// file.
func AcquireIn(dir, device string) (release func() error, err error) {
	errFactory := errors.New()
	path := Path(dir, device)

	if _, err := os.Stat(path); err == nil {
		// PID file exists, check if the process is running
		bytes, err := os.ReadFile(path)
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInternal, err)
		}

		pid, err := strconv.Atoi(strings.TrimSpace(string(bytes)))
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInternal, err)
		}

		process, err := os.FindProcess(pid)
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInternal, err)
		}

		if err := process.Signal(syscall.Signal(0)); err == nil {
			return nil, errFactory.WithData(errors.ErrAlreadyRunning, struct {
				Device string
				PID    int
			}{
				Device: device,
				PID:    pid,
			})
		}
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	return func() error { return remove(path) }, nil
}

func remove(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := os.Remove(path); err != nil {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}
