package prototype

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpflash/internal/status"
	"vpflash/internal/transport"
)

type recordingSink struct {
	events []status.Event
}

func (s *recordingSink) Publish(ev status.Event) { s.events = append(s.events, ev) }
func (s *recordingSink) Finish(status.Summary)   {}

func (s *recordingSink) trace() []string {
	var out []string
	for _, ev := range s.events {
		out = append(out, ev.Outcome.String()+" "+ev.Label)
	}
	return out
}

func flash(t *testing.T, link *fakeLink, policy ResetPolicy, body string) (Result, *recordingSink, error) {
	t.Helper()

	sink := &recordingSink{}
	f := NewFlasher(New(link), status.NewReporter("test", sink), policy)
	res, err := f.Flash(payload(body))
	require.Equal(t, res.State, f.State())
	return res, sink, err
}

func TestFlash_EndToEnd(t *testing.T) {
	link := newFakeLink(helpScreen, programming, uploadComplete)

	res, sink, err := flash(t, link, ResetAuto, "DEADBEEF")
	require.NoError(t, err)

	assert.Equal(t, "*h*pDEADBEEF$", link.sent.String())
	assert.Equal(t, Running, res.State)
	assert.Equal(t, int64(8), res.BytesWritten)
	assert.False(t, res.ResetAwaited)
	assert.Zero(t, link.resets)

	assert.Equal(t, []string{
		"begin Verifying device state",
		"ok Verifying device state",
		"begin Requesting program write",
		"ok Requesting program write",
		"begin Sending file",
		"ok Sending file",
		"info 8 bytes written",
		"begin Requesting run",
		"ok Requesting run",
	}, sink.trace())
}

func TestFlash_ReportsElapsedTime(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{start, start.Add(1500 * time.Millisecond)}

	f := NewFlasher(New(newFakeLink(helpScreen, programming, uploadComplete)), nil, ResetAuto)
	f.now = func() time.Time {
		tm := ticks[0]
		ticks = ticks[1:]
		return tm
	}

	res, err := f.Flash(payload("DEADBEEF"))
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, res.Elapsed)
	assert.Empty(t, ticks)
}

func TestFlash_IsDeterministic(t *testing.T) {
	var sent []string
	for i := 0; i < 2; i++ {
		link := newFakeLink(helpScreen, programming, uploadComplete)
		_, _, err := flash(t, link, ResetAuto, "DEADBEEF")
		require.NoError(t, err)
		sent = append(sent, link.sent.String())
	}
	require.Equal(t, sent[0], sent[1])
}

func TestFlash_WaitsForResetWhenSilent(t *testing.T) {
	link := newFakeLink(gap, gap, helpScreen, programming, uploadComplete)

	res, sink, err := flash(t, link, ResetAuto, "DEADBEEF")
	require.NoError(t, err)

	assert.Equal(t, "*h*pDEADBEEF$", link.sent.String())
	assert.True(t, res.ResetAwaited)
	assert.Equal(t, 1, link.resets)
	assert.Equal(t, []time.Duration{DefaultTimeout, transport.NoTimeout, DefaultTimeout}, link.waited)
	assert.Contains(t, sink.trace(), "ok Not in BIOS, waiting for manual device reset")
}

func TestFlash_ResetAlwaysSkipsProbe(t *testing.T) {
	link := newFakeLink(gap, helpScreen, programming, uploadComplete)

	res, sink, err := flash(t, link, ResetAlways, "DEADBEEF")
	require.NoError(t, err)

	assert.Equal(t, "*pDEADBEEF$", link.sent.String())
	assert.True(t, res.ResetAwaited)
	assert.Equal(t, "begin Waiting for manual device reset", sink.trace()[0])
}

func TestFlash_ResetNeverFails(t *testing.T) {
	link := newFakeLink(gap)

	res, _, err := flash(t, link, ResetNever, "DEADBEEF")
	require.ErrorIs(t, err, ErrNotInBios)

	assert.Equal(t, Unconfirmed, res.State)
	assert.Equal(t, "*h", link.sent.String())
	assert.Zero(t, link.resets)
}

func TestFlash_ProbeIOErrorIsFatal(t *testing.T) {
	cause := &transport.IOError{Op: "read", Err: errors.New("overrun")}
	link := &fakeLink{readErr: cause}

	res, sink, err := flash(t, link, ResetAuto, "DEADBEEF")
	require.ErrorIs(t, err, cause)

	assert.Equal(t, Opened, res.State)
	assert.Equal(t, "*h", link.sent.String())
	assert.Equal(t, "error Verifying device state", sink.trace()[1])
}

func TestFlash_ProgrammingTimeoutIsFatal(t *testing.T) {
	link := newFakeLink(helpScreen)

	res, sink, err := flash(t, link, ResetAuto, "DEADBEEF")
	require.ErrorIs(t, err, transport.ErrTimeout)
	require.Contains(t, err.Error(), "request program write")

	assert.Equal(t, ConfirmedBios, res.State)
	assert.Equal(t, "*h*p", link.sent.String())
	assert.Equal(t, "error Requesting program write", sink.trace()[len(sink.trace())-1])
}

func TestFlash_DisconnectBeforeUploadDone(t *testing.T) {
	link := newFakeLink(helpScreen, programming, []byte("Upload"))
	link.readErr = transport.ErrDisconnected

	res, _, err := flash(t, link, ResetAuto, "DEADBEEF")
	require.ErrorIs(t, err, transport.ErrDisconnected)

	assert.Equal(t, ProgramRequested, res.State)
	assert.Equal(t, int64(8), res.BytesWritten)
	assert.Equal(t, "*h*pDEADBEEF", link.sent.String())
}

func TestFlash_WriteFailureDuringStream(t *testing.T) {
	cause := &transport.IOError{Op: "write", Err: errors.New("unplugged")}
	link := newFakeLink(helpScreen, programming, uploadComplete)
	link.writeErr = cause
	link.maxSent = len("*h*pDEAD")

	res, _, err := flash(t, link, ResetAuto, "DEADBEEF")
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "upload program")

	assert.Equal(t, ProgramRequested, res.State)
	assert.Equal(t, int64(4), res.BytesWritten)
}

func TestFlash_StreamsReplayTranscript(t *testing.T) {
	var tx bytes.Buffer
	transcript := append(append(append([]byte{}, helpScreen...), programming...), uploadComplete...)
	replay := transport.NewReplay(transcript, &tx)

	res, err := NewFlasher(New(replay), nil, ResetAuto).Flash(payload("DEADBEEF"))
	require.NoError(t, err)

	assert.Equal(t, Running, res.State)
	assert.Equal(t, int64(len("*h*pDEADBEEF$")), replay.Sent())
	assert.Contains(t, tx.String(), `TX: "$"`)
}
