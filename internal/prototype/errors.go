package prototype

import (
	"errors"
	"fmt"
)

// ErrNotInBios is returned when the device does not answer the BIOS probe
// and waiting for a manual reset has been disabled.
var ErrNotInBios = errors.New("device is not in BIOS")

// UnknownCommandError is returned when a Command outside the protocol
// table is sent.
type UnknownCommandError struct {
	Command Command
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %d", int(e.Command))
}

// UnknownSequenceError is returned when waiting for a Sequence outside the
// protocol table.
type UnknownSequenceError struct {
	Sequence Sequence
}

func (e *UnknownSequenceError) Error() string {
	return fmt.Sprintf("unknown sequence %d", int(e.Sequence))
}
