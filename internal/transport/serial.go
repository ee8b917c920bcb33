package transport

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.bug.st/serial"
)

const readChunkSize = 256

// SerialConfig holds configuration for opening a serial port.
type SerialConfig struct {
	Address  string
	BaudRate int
	Logger   *slog.Logger
}

// Serial implements Link on top of a hardware serial port.
type Serial struct {
	port    serial.Port
	address string
	logger  *slog.Logger

	// timeout currently programmed on the port
	timeout time.Duration

	buf     []byte
	pending []byte

	// error that arrived together with the last chunk, reported once the
	// chunk has been consumed
	readErr error
}

// OpenSerial opens the port in 8N1 mode at the configured baud rate.
func OpenSerial(cfg SerialConfig) (*Serial, error) {
	if cfg.Address == "" {
		return nil, &OpenError{Address: cfg.Address, Err: fmt.Errorf("serial port path is required")}
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Address, mode)
	if err != nil {
		return nil, &OpenError{Address: cfg.Address, Err: err}
	}

	return newSerial(port, cfg.Address, cfg.Logger), nil
}

func newSerial(port serial.Port, address string, logger *slog.Logger) *Serial {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Serial{
		port:    port,
		address: address,
		logger:  logger.With("port", address),
		// go.bug.st/serial opens ports in blocking mode
		timeout: NoTimeout,
		buf:     make([]byte, readChunkSize),
	}
}

// Address returns the serial port name.
func (s *Serial) Address() string {
	return s.address
}

func (s *Serial) ReceiveByte(timeout time.Duration) (byte, error) {
	if len(s.pending) == 0 {
		if s.readErr != nil {
			err := s.readErr
			s.readErr = nil
			return 0, err
		}

		if err := s.setReadTimeout(timeout); err != nil {
			return 0, err
		}

		n, err := s.port.Read(s.buf)
		if err := classifyRead(n, err, timeout); err != nil {
			return 0, err
		}
		if err != nil {
			s.readErr = classifyRead(0, err, timeout)
			s.logger.Debug("read error after data", "error", err)
		}

		s.pending = s.buf[:n]
		s.logger.Debug("RX", "data", fmt.Sprintf("%q", s.pending))
	}

	b := s.pending[0]
	s.pending = s.pending[1:]
	return b, nil
}

func (s *Serial) Write(p []byte) (int, error) {
	s.logger.Debug("TX", "bytes", len(p), "data", preview(p))

	written := 0
	for written < len(p) {
		n, err := s.port.Write(p[written:])
		written += n
		if err != nil {
			return written, &IOError{Op: "write", Err: err}
		}
		if n == 0 {
			return written, &IOError{Op: "write", Err: io.ErrShortWrite}
		}
	}

	return written, nil
}

func (s *Serial) ResetInputBuffer() error {
	s.pending = nil
	if err := s.port.ResetInputBuffer(); err != nil {
		return &IOError{Op: "reset input buffer", Err: err}
	}
	return nil
}

// Close waits for queued output to reach the wire, then releases the port.
func (s *Serial) Close() error {
	if err := s.port.Drain(); err != nil {
		s.logger.Debug("drain before close failed", "error", err)
	}
	return s.port.Close()
}

func (s *Serial) setReadTimeout(timeout time.Duration) error {
	if timeout == s.timeout {
		return nil
	}
	if err := s.port.SetReadTimeout(timeout); err != nil {
		return &IOError{Op: "set timeout", Err: err}
	}
	s.timeout = timeout
	return nil
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, &IOError{Op: "list ports", Err: err}
	}
	return ports, nil
}

// preview renders at most the first 32 bytes of p for logs.
func preview(p []byte) string {
	if len(p) <= 32 {
		return fmt.Sprintf("%q", p)
	}
	return fmt.Sprintf("%q...", p[:32])
}
