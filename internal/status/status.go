// Package status announces handshake phases and their outcome.
//
// The protocol driver never prints anything itself. It wraps each phase in
// Run or Do, which emit a begin event, run the operation and emit OK or
// ERROR, handing the operation's own result back untouched. Sinks decide
// where the events go: the console, an MQTT broker, websocket clients.
package status

import (
	"fmt"
	"time"
)

// Outcome is the state of a phase carried by an Event.
type Outcome int

const (
	Begin Outcome = iota
	OK
	Failed
	Info
)

var outcomeNames = map[Outcome]string{
	Begin:  "begin",
	OK:     "ok",
	Failed: "error",
	Info:   "info",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Event describes one step of a flashing session.
type Event struct {
	Session string    `json:"session"`
	Label   string    `json:"label"`
	Outcome Outcome   `json:"outcome"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// Summary is the final report of a session.
type Summary struct {
	Session      string        `json:"session"`
	Port         string        `json:"port"`
	Source       string        `json:"source"`
	State        string        `json:"state"`
	BytesWritten int64         `json:"bytesWritten"`
	ResetAwaited bool          `json:"resetAwaited"`
	Elapsed      time.Duration `json:"elapsed"`
	Error        string        `json:"error,omitempty"`
}

// Sink receives events. Implementations must not block for long: they are
// called synchronously from the handshake.
type Sink interface {
	Publish(Event)
	Finish(Summary)
}

// Multi fans events out to several sinks in order.
type Multi []Sink

func (m Multi) Publish(ev Event) {
	for _, s := range m {
		s.Publish(ev)
	}
}

func (m Multi) Finish(sum Summary) {
	for _, s := range m {
		s.Finish(sum)
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(Event)  {}
func (Nop) Finish(Summary) {}

// Reporter stamps events with a session ID and the current time before
// handing them to a sink. A nil *Reporter runs operations silently.
type Reporter struct {
	session string
	sink    Sink
	now     func() time.Time
}

// NewReporter creates a Reporter for one session.
func NewReporter(session string, sink Sink) *Reporter {
	if sink == nil {
		sink = Nop{}
	}
	return &Reporter{session: session, sink: sink, now: time.Now}
}

// Session returns the session ID stamped on every event.
func (r *Reporter) Session() string {
	if r == nil {
		return ""
	}
	return r.session
}

// Run announces label, runs op and reports its outcome. op's error is
// returned as is.
func (r *Reporter) Run(label string, op func() error) error {
	_, err := Do(r, label, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// Do is Run for operations that also produce a value.
func Do[T any](r *Reporter, label string, op func() (T, error)) (T, error) {
	if r == nil {
		return op()
	}

	r.emit(label, Begin, nil)
	v, err := op()
	if err != nil {
		r.emit(label, Failed, err)
	} else {
		r.emit(label, OK, nil)
	}
	return v, err
}

// Note emits an informational line that is not tied to an operation.
func (r *Reporter) Note(format string, args ...any) {
	if r == nil {
		return
	}
	r.emit(fmt.Sprintf(format, args...), Info, nil)
}

// Finish forwards the session summary to the sink.
func (r *Reporter) Finish(sum Summary) {
	if r == nil {
		return
	}
	sum.Session = r.session
	r.sink.Finish(sum)
}

func (r *Reporter) emit(label string, outcome Outcome, err error) {
	ev := Event{
		Session: r.session,
		Label:   label,
		Outcome: outcome,
		Time:    r.now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	r.sink.Publish(ev)
}
