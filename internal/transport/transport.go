// Package transport provides the byte-level link to the virtual prototype.
//
// A Link is read one byte at a time with an explicit timeout per read, so
// callers decide per operation whether a wait is bounded or unbounded.
// Serial talks to real hardware through go.bug.st/serial; Replay feeds a
// captured transcript for dry runs.
package transport

import (
	"errors"
	"io"
	"time"

	"go.bug.st/serial"
)

// NoTimeout makes ReceiveByte block until data arrives or the link closes.
var NoTimeout = serial.NoTimeout

// Link is an exclusively owned, half-duplex byte channel to the device.
// Implementations are not safe for concurrent use.
type Link interface {
	// ReceiveByte returns the next inbound byte, waiting at most timeout.
	ReceiveByte(timeout time.Duration) (byte, error)

	// Write transmits all of p or returns an error.
	Write(p []byte) (int, error)

	// ResetInputBuffer discards every inbound byte received so far.
	ResetInputBuffer() error

	Close() error
}

// classifyRead maps the result of a raw read onto the link error taxonomy.
// A read that returned data is never an error; callers keep any error that
// came with it for the next read.
// A read that returns no data is a timeout only when the wait was bounded;
// under an unbounded wait it can only mean the stream ended.
func classifyRead(n int, err error, timeout time.Duration) error {
	var portErr *serial.PortError

	switch {
	case n > 0:
		return nil
	case errors.Is(err, io.EOF):
		return ErrDisconnected
	case errors.As(err, &portErr) && portErr.Code() == serial.PortClosed:
		return ErrDisconnected
	case err != nil:
		return &IOError{Op: "read", Err: err}
	case timeout == NoTimeout:
		return ErrDisconnected
	default:
		return ErrTimeout
	}
}
