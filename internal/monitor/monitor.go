// Package monitor serves a live view of a flashing session over websockets.
//
// Browsers connect to /ws and receive every status event as JSON, starting
// with the events that happened before they connected. /api/status returns
// the same history as a single JSON array.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vpflash/internal/status"
)

const (
	historyLimit = 256
	clientBuffer = historyLimit + 64
	writeTimeout = 5 * time.Second
)

// Message is the envelope sent to websocket clients.
type Message struct {
	Type string `json:"type"` // "status" or "result"
	Data any    `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan Message
}

// Monitor is a status.Sink that broadcasts to websocket clients. Publishing
// never blocks on a slow client; such clients are dropped.
type Monitor struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	history  []Message
	upgrader websocket.Upgrader
	logger   *slog.Logger

	server *http.Server
	addr   string
}

var _ status.Sink = (*Monitor)(nil)

// New creates a Monitor. Call Start to serve it, or mount Handler yourself.
func New(logger *slog.Logger) *Monitor {
	return &Monitor{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Handler returns the monitor's HTTP routes.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", m.handleWebSocket)
	mux.HandleFunc("/api/status", m.handleStatus)
	return mux
}

// Start listens on addr and serves in the background.
func (m *Monitor) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	m.addr = ln.Addr().String()
	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := m.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			m.logger.Error("monitor server stopped", "error", err)
		}
	}()

	m.logger.Info("status monitor listening", "addr", m.addr)
	return nil
}

// Addr returns the address the monitor listens on once started.
func (m *Monitor) Addr() string {
	return m.addr
}

// Shutdown disconnects all clients and stops the server.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for c := range m.clients {
		m.removeLocked(c)
	}
	m.mu.Unlock()

	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

func (m *Monitor) Publish(ev status.Event) {
	m.broadcast(Message{Type: "status", Data: ev})
}

func (m *Monitor) Finish(sum status.Summary) {
	m.broadcast(Message{Type: "result", Data: sum})
}

func (m *Monitor) broadcast(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, msg)
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}

	for c := range m.clients {
		select {
		case c.send <- msg:
		default:
			m.logger.Warn("dropping slow monitor client", "remote", c.conn.RemoteAddr().String())
			m.removeLocked(c)
		}
	}
}

func (m *Monitor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan Message, clientBuffer)}

	// Send history to the new client before any live event
	m.mu.Lock()
	for _, msg := range m.history {
		c.send <- msg
	}
	m.clients[c] = struct{}{}
	m.mu.Unlock()

	go m.writeLoop(c)

	// Keep connection alive until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			m.remove(c)
			return
		}
	}
}

func (m *Monitor) writeLoop(c *client) {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			m.logger.Debug("monitor client write failed", "error", err)
			m.remove(c)
			return
		}
	}

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
		time.Now().Add(time.Second))
}

func (m *Monitor) handleStatus(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	history := append([]Message(nil), m.history...)
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(history); err != nil {
		m.logger.Debug("failed to write status history", "error", err)
	}
}

func (m *Monitor) remove(c *client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(c)
}

func (m *Monitor) removeLocked(c *client) {
	if _, ok := m.clients[c]; ok {
		delete(m.clients, c)
		close(c.send)
	}
}
