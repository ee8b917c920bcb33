package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a bounded read expires without data.
	ErrTimeout = errors.New("read timed out")

	// ErrDisconnected is returned when the link reaches end of stream,
	// usually because the device was unplugged or crashed.
	ErrDisconnected = errors.New("device disconnected")
)

// OpenError reports a failure to acquire the serial port.
type OpenError struct {
	Address string
	Err     error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("failed to open serial port %s: %v", e.Address, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// IOError wraps any transport failure that is neither a timeout nor a
// disconnect.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("serial %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is, or wraps, ErrTimeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
