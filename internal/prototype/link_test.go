package prototype

import (
	"bytes"
	"io"
	"strings"
	"time"

	"vpflash/internal/transport"
)

// gap marks a stretch of silence in a fakeLink script that is longer than
// any bounded timeout.
var gap []byte

// fakeLink is a scripted device. Data chunks before the first gap have
// already arrived; a gap makes a bounded read time out once and is skipped
// by an unbounded read. When the script is exhausted the link reports
// readErr if set, otherwise it behaves like a silent device.
type fakeLink struct {
	script   [][]byte
	readErr  error
	sent     bytes.Buffer
	maxSent  int
	writeErr error
	resets   int
	waited   []time.Duration
	closed   bool
}

func newFakeLink(script ...[]byte) *fakeLink {
	l := &fakeLink{}
	for _, chunk := range script {
		if chunk == nil {
			l.script = append(l.script, nil)
			continue
		}
		l.script = append(l.script, append([]byte(nil), chunk...))
	}
	return l
}

func (l *fakeLink) ReceiveByte(timeout time.Duration) (byte, error) {
	if len(l.waited) == 0 || l.waited[len(l.waited)-1] != timeout {
		l.waited = append(l.waited, timeout)
	}

	for len(l.script) > 0 {
		chunk := l.script[0]
		switch {
		case chunk == nil && timeout != transport.NoTimeout:
			l.script = l.script[1:]
			return 0, transport.ErrTimeout
		case len(chunk) == 0:
			l.script = l.script[1:]
		default:
			l.script[0] = chunk[1:]
			return chunk[0], nil
		}
	}

	switch {
	case l.readErr != nil:
		return 0, l.readErr
	case timeout == transport.NoTimeout:
		return 0, transport.ErrDisconnected
	default:
		return 0, transport.ErrTimeout
	}
}

func (l *fakeLink) Write(p []byte) (int, error) {
	if l.writeErr != nil && l.maxSent >= 0 && l.sent.Len()+len(p) > l.maxSent {
		n := l.maxSent - l.sent.Len()
		l.sent.Write(p[:n])
		return n, l.writeErr
	}
	return l.sent.Write(p)
}

func (l *fakeLink) ResetInputBuffer() error {
	l.resets++
	for len(l.script) > 0 && l.script[0] != nil {
		l.script = l.script[1:]
	}
	return nil
}

func (l *fakeLink) Close() error {
	l.closed = true
	return nil
}

type testPayload struct {
	io.Reader
	label string
}

func (p testPayload) Label() string {
	return p.label
}

func payload(s string) Payload {
	return testPayload{Reader: strings.NewReader(s), label: "Sending file"}
}
