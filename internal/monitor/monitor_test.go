package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpflash/internal/logging"
	"vpflash/internal/status"
)

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) (received, status.Event) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))

	var ev status.Event
	if msg.Type == "status" {
		var raw map[string]any
		require.NoError(t, json.Unmarshal(msg.Data, &raw))
		ev.Label, _ = raw["label"].(string)
		ev.Session, _ = raw["session"].(string)
	}
	return msg, ev
}

func TestMonitor_ReplaysHistoryThenStreams(t *testing.T) {
	m := New(logging.Discard())
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	reporter := status.NewReporter("abc", m)
	require.NoError(t, reporter.Run("Verifying device state", func() error { return nil }))

	conn := dial(t, srv)

	_, ev := readMessage(t, conn)
	assert.Equal(t, "Verifying device state", ev.Label)
	assert.Equal(t, "abc", ev.Session)
	_, _ = readMessage(t, conn)

	reporter.Note("8 bytes written")
	_, ev = readMessage(t, conn)
	assert.Equal(t, "8 bytes written", ev.Label)

	reporter.Finish(status.Summary{State: "Running", BytesWritten: 8})
	msg, _ := readMessage(t, conn)
	assert.Equal(t, "result", msg.Type)
	assert.Contains(t, string(msg.Data), `"state":"Running"`)
}

func TestMonitor_StatusEndpoint(t *testing.T) {
	m := New(logging.Discard())
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	status.NewReporter("abc", m).Note("hello")

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var history []received
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	require.Len(t, history, 1)
	assert.Equal(t, "status", history[0].Type)
}

func TestMonitor_HistoryIsBounded(t *testing.T) {
	m := New(logging.Discard())
	r := status.NewReporter("abc", m)
	for i := 0; i < historyLimit+10; i++ {
		r.Note("line %d", i)
	}

	require.Len(t, m.history, historyLimit)
	first := m.history[0].Data.(status.Event)
	assert.Equal(t, "line 10", first.Label)
}

func TestMonitor_StartAndShutdown(t *testing.T) {
	m := New(logging.Discard())
	require.NoError(t, m.Start("127.0.0.1:0"))
	require.NotEmpty(t, m.Addr())

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+m.Addr()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	m.Publish(status.Event{Label: "Requesting run"})
	_, ev := readMessage(t, conn)
	require.Equal(t, "Requesting run", ev.Label)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	// the client sees the connection close
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}
