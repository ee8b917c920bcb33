// Package prototype drives the BIOS of the OpenRISC based virtual prototype.
//
// A Device wraps the serial link and speaks the fixed command/marker
// protocol; a Flasher runs the handshake that puts the device into
// programming mode, streams a program and starts it:
//
//	dev, err := prototype.Open("/dev/ttyUSB0", prototype.DefaultBaudRate)
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//
//	res, err := prototype.NewFlasher(dev, reporter, prototype.ResetAuto).Flash(payload)
//
// Every wait for a marker is bounded by the device timeout, except the wait
// for a manual reset, which blocks until the operator resets the device or
// the link goes away.
package prototype

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"vpflash/internal/matcher"
	"vpflash/internal/transport"
)

// Device is the single session with a prototype. It is not safe for
// concurrent use.
type Device struct {
	link    transport.Link
	timeout time.Duration
	logger  *slog.Logger
}

// Open opens the serial port at address and wraps it in a Device.
func Open(address string, baudRate int, opts ...Option) (*Device, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	link, err := transport.OpenSerial(transport.SerialConfig{
		Address:  address,
		BaudRate: baudRate,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	return newDevice(link, cfg), nil
}

// New wraps an already open link.
func New(link transport.Link, opts ...Option) *Device {
	if link == nil {
		panic("link cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return newDevice(link, cfg)
}

func newDevice(link transport.Link, cfg Config) *Device {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Device{
		link:    link,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Timeout returns the bounded response timeout.
func (d *Device) Timeout() time.Duration {
	return d.timeout
}

// SendCommand transmits the bytes of cmd verbatim.
func (d *Device) SendCommand(cmd Command) error {
	b := cmd.Bytes()
	if b == nil {
		return &UnknownCommandError{Command: cmd}
	}

	d.logger.Debug("send command", "command", cmd)
	if _, err := d.link.Write(b); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	return nil
}

// WaitForSequence blocks until seq has been received, the bounded timeout
// expires or the link fails.
func (d *Device) WaitForSequence(seq Sequence) error {
	return d.waitFor(seq, d.timeout)
}

func (d *Device) waitFor(seq Sequence, timeout time.Duration) error {
	marker := seq.Bytes()
	if marker == nil {
		return &UnknownSequenceError{Sequence: seq}
	}

	consumed, err := matcher.ReadUntil(d.link, marker, timeout)
	if err != nil {
		d.logger.Debug("sequence not received", "sequence", seq, "consumed", consumed, "error", err)
		return fmt.Errorf("wait for %s: %w", seq, err)
	}

	d.logger.Debug("sequence received", "sequence", seq, "consumed", consumed)
	return nil
}

// InBios probes whether the device sits at its BIOS prompt. A device that
// stays silent for the bounded timeout is reported as not in BIOS; any other
// failure is returned as an error.
func (d *Device) InBios() (bool, error) {
	if err := d.SendCommand(ShowHelp); err != nil {
		return false, err
	}

	err := d.WaitForSequence(HelpScreen)
	switch {
	case err == nil:
		return true, nil
	case transport.IsTimeout(err):
		d.logger.Debug("no help screen within timeout", "timeout", d.timeout)
		return false, nil
	default:
		return false, err
	}
}

// WaitForReset discards pending input and waits, without a timeout, for the
// help screen the BIOS prints after a reset.
func (d *Device) WaitForReset() error {
	if err := d.link.ResetInputBuffer(); err != nil {
		return fmt.Errorf("clear input: %w", err)
	}

	d.logger.Debug("waiting for manual reset")
	return d.waitFor(HelpScreen, transport.NoTimeout)
}

// WriteStream copies r to the device and returns the number of bytes sent.
func (d *Device) WriteStream(r io.Reader) (int64, error) {
	n, err := io.Copy(d.link, r)
	if err != nil {
		return n, fmt.Errorf("stream payload: %w", err)
	}

	d.logger.Debug("payload streamed", "bytes", n)
	return n, nil
}

// Close releases the link.
func (d *Device) Close() error {
	return d.link.Close()
}
