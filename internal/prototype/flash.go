package prototype

import (
	"fmt"
	"io"
	"time"

	"vpflash/internal/status"
)

// State is a step of the flashing handshake.
type State int

const (
	Opened State = iota
	Unconfirmed
	ConfirmedBios
	ProgramRequested
	Uploaded
	Running
)

var stateNames = []string{
	Opened:           "Opened",
	Unconfirmed:      "Unconfirmed",
	ConfirmedBios:    "ConfirmedBios",
	ProgramRequested: "ProgramRequested",
	Uploaded:         "Uploaded",
	Running:          "Running",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ResetPolicy decides what happens when the device is not at its BIOS
// prompt.
type ResetPolicy int

const (
	// ResetAuto probes the device and waits for a manual reset only if the
	// probe gets no answer.
	ResetAuto ResetPolicy = iota
	// ResetAlways skips the probe and always waits for a manual reset.
	ResetAlways
	// ResetNever probes the device and fails with ErrNotInBios if it does
	// not answer.
	ResetNever
)

func (p ResetPolicy) String() string {
	switch p {
	case ResetAuto:
		return "auto"
	case ResetAlways:
		return "always"
	case ResetNever:
		return "never"
	}
	return fmt.Sprintf("ResetPolicy(%d)", int(p))
}

// Payload is the program streamed to the device.
type Payload interface {
	io.Reader

	// Label describes the transfer in status output, e.g. "Sending file".
	Label() string
}

// Result reports how far a handshake got.
type Result struct {
	State        State
	BytesWritten int64
	ResetAwaited bool
	Elapsed      time.Duration
}

// Status labels announced for each phase.
const (
	labelVerify      = "Verifying device state"
	labelResetWait   = "Not in BIOS, waiting for manual device reset"
	labelForcedReset = "Waiting for manual device reset"
	labelProgram     = "Requesting program write"
	labelRun         = "Requesting run"
)

// Flasher runs the upload handshake on one Device.
type Flasher struct {
	dev      *Device
	reporter *status.Reporter
	policy   ResetPolicy
	state    State
	now      func() time.Time
}

// NewFlasher creates a Flasher. reporter may be nil.
func NewFlasher(dev *Device, reporter *status.Reporter, policy ResetPolicy) *Flasher {
	return &Flasher{
		dev:      dev,
		reporter: reporter,
		policy:   policy,
		state:    Opened,
		now:      time.Now,
	}
}

// State returns the state the handshake has reached.
func (f *Flasher) State() State {
	return f.state
}

// Flash brings the device into programming mode, streams payload, waits for
// the upload to be acknowledged and starts the program. The first failure
// aborts the handshake; the device is left as it is.
func (f *Flasher) Flash(payload Payload) (Result, error) {
	start := f.now()

	var res Result
	err := f.run(payload, &res)

	res.State = f.state
	res.Elapsed = f.now().Sub(start)
	return res, err
}

func (f *Flasher) run(payload Payload, res *Result) error {
	if err := f.confirmBios(res); err != nil {
		return err
	}

	// The device answers a program request with a marker once it is ready
	// to receive.
	err := f.reporter.Run(labelProgram, func() error {
		if err := f.dev.SendCommand(Program); err != nil {
			return err
		}
		return f.dev.WaitForSequence(Programming)
	})
	if err != nil {
		return fmt.Errorf("request program write: %w", err)
	}
	f.transition(ProgramRequested)

	// The program carries its own termination sequence; the device reports
	// the end of the upload once it has seen it.
	n, err := status.Do(f.reporter, payload.Label(), func() (int64, error) {
		n, err := f.dev.WriteStream(payload)
		if err != nil {
			return n, err
		}
		return n, f.dev.WaitForSequence(UploadComplete)
	})
	res.BytesWritten = n
	if err != nil {
		return fmt.Errorf("upload program: %w", err)
	}
	f.reporter.Note("%d bytes written", n)
	f.transition(Uploaded)

	if err := f.reporter.Run(labelRun, func() error { return f.dev.SendCommand(Run) }); err != nil {
		return fmt.Errorf("request run: %w", err)
	}
	f.transition(Running)

	return nil
}

func (f *Flasher) confirmBios(res *Result) error {
	label := labelForcedReset

	if f.policy != ResetAlways {
		inBios, err := status.Do(f.reporter, labelVerify, f.dev.InBios)
		if err != nil {
			return fmt.Errorf("verify device state: %w", err)
		}
		if inBios {
			f.transition(ConfirmedBios)
			return nil
		}
		label = labelResetWait
	}

	f.transition(Unconfirmed)
	if f.policy == ResetNever {
		return ErrNotInBios
	}

	res.ResetAwaited = true
	if err := f.reporter.Run(label, f.dev.WaitForReset); err != nil {
		return fmt.Errorf("wait for reset: %w", err)
	}
	f.transition(ConfirmedBios)

	return nil
}

func (f *Flasher) transition(to State) {
	f.dev.logger.Debug("handshake state", "from", f.state, "to", to)
	f.state = to
}
