package transport

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Replay is a Link fed from a captured device transcript. Outbound bytes are
// echoed to out instead of reaching a device, which makes it useful for dry
// runs of the handshake.
//
// Once the transcript is exhausted, reads behave like a silent device: a
// bounded wait times out and an unbounded wait reports a disconnect.
type Replay struct {
	data []byte
	pos  int
	out  io.Writer
	sent int64
}

// NewReplay creates a Replay over transcript. out may be nil.
func NewReplay(transcript []byte, out io.Writer) *Replay {
	if out == nil {
		out = io.Discard
	}
	return &Replay{data: transcript, out: out}
}

// OpenReplay loads a transcript file captured from a device.
func OpenReplay(path string, out io.Writer) (*Replay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &OpenError{Address: path, Err: err}
	}
	return NewReplay(data, out), nil
}

func (r *Replay) ReceiveByte(timeout time.Duration) (byte, error) {
	if r.pos >= len(r.data) {
		return 0, classifyRead(0, nil, timeout)
	}

	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *Replay) Write(p []byte) (int, error) {
	r.sent += int64(len(p))
	if _, err := fmt.Fprintf(r.out, "\033[1mTX: %s\033[0m\n", preview(p)); err != nil {
		return 0, &IOError{Op: "write", Err: err}
	}
	return len(p), nil
}

// ResetInputBuffer is a no-op: a transcript holds no stale bytes, only the
// device output that follows.
func (r *Replay) ResetInputBuffer() error {
	return nil
}

func (r *Replay) Close() error {
	return nil
}

// Sent returns the number of bytes written to the replay so far.
func (r *Replay) Sent() int64 {
	return r.sent
}

// Remaining returns the number of transcript bytes not yet read.
func (r *Replay) Remaining() int {
	return len(r.data) - r.pos
}
