// Package stream pushes wizard state to browsers over WebSocket.
package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/velo-booking/internal/session"
	"github.com/wolfman30/velo-booking/pkg/logging"
)

// Source returns the current state of a wizard.
type Source interface {
	CurrentView(ctx context.Context, wizardID string) (any, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, wizardID string) (any, error)

func (f SourceFunc) CurrentView(ctx context.Context, wizardID string) (any, error) {
	return f(ctx, wizardID)
}

// InboundMessage is what the browser sends.
type InboundMessage struct {
	Type string `json:"type"` // "ping"
}

// OutboundMessage is what we send to the browser.
type OutboundMessage struct {
	Type  string `json:"type"` // "state", "error", "pong"
	State any    `json:"state,omitempty"`
	Text  string `json:"text,omitempty"`
}

const (
	sendBuffer   = 16
	writeTimeout = 5 * time.Second
)

// Redactor is implemented by states that hide fields from watchers without
// a staff session.
type Redactor interface {
	Redacted() any
}

// wsConn owns one socket. Only writeLoop writes to it after registration.
type wsConn struct {
	conn  *websocket.Conn
	admin bool
	send  chan OutboundMessage
	done  chan struct{}
	once  sync.Once
}

func newWSConn(conn *websocket.Conn, admin bool) *wsConn {
	return &wsConn{
		conn:  conn,
		admin: admin,
		send:  make(chan OutboundMessage, sendBuffer),
		done:  make(chan struct{}),
	}
}

// enqueue never blocks; it reports false when the buffer is full or the
// connection is closed.
func (c *wsConn) enqueue(msg OutboundMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *wsConn) writeLoop() error {
	for {
		select {
		case <-c.done:
			return nil
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := websocket.JSON.Send(c.conn, msg); err != nil {
				c.close()
				return err
			}
		}
	}
}

func (c *wsConn) state(v any) OutboundMessage {
	if r, ok := v.(Redactor); ok && !c.admin {
		v = r.Redacted()
	}
	return OutboundMessage{Type: "state", State: v}
}

// Hub fans wizard views out to every connection watching that wizard.
type Hub struct {
	source Source
	logger *logging.Logger

	mu       sync.RWMutex
	sessions map[string]map[*wsConn]struct{}
}

// NewHub creates a hub.
func NewHub(source Source, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		source:   source,
		logger:   logger,
		sessions: make(map[string]map[*wsConn]struct{}),
	}
}

// SetSource replaces the source; used when the hub is built before the
// registry it reads from.
func (h *Hub) SetSource(source Source) {
	h.mu.Lock()
	h.source = source
	h.mu.Unlock()
}

// Publish queues v for every connection watching wizardID. It never blocks:
// a watcher whose buffer is full is disconnected.
func (h *Hub) Publish(wizardID string, v any) {
	h.mu.RLock()
	conns := make([]*wsConn, 0, len(h.sessions[wizardID]))
	for c := range h.sessions[wizardID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if !c.enqueue(c.state(v)) {
			h.logger.Warn("stream: dropping slow watcher", "wizard_id", wizardID)
			c.close()
		}
	}
}

// Watchers returns the number of open connections for wizardID.
func (h *Hub) Watchers(wizardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[wizardID])
}

// HandleWebSocket upgrades GET /api/wizards/{wizardID}/stream.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	wizardID := chi.URLParam(r, "wizardID")
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r, wizardID)
	}).ServeHTTP(w, r)
}

func (h *Hub) serveWS(conn *websocket.Conn, r *http.Request, wizardID string) {
	h.mu.RLock()
	source := h.source
	h.mu.RUnlock()
	if source == nil || wizardID == "" {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "unknown wizard"})
		return
	}
	view, err := source.CurrentView(r.Context(), wizardID)
	if err != nil {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "unknown wizard"})
		return
	}

	// The HTTP server's deadlines still apply to the hijacked connection;
	// writes get their own deadline in writeLoop.
	_ = conn.SetDeadline(time.Time{})

	wsc := newWSConn(conn, session.FromContext(r.Context()).IsAdmin())
	h.mu.Lock()
	if h.sessions[wizardID] == nil {
		h.sessions[wizardID] = make(map[*wsConn]struct{})
	}
	h.sessions[wizardID][wsc] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.sessions[wizardID], wsc)
		if len(h.sessions[wizardID]) == 0 {
			delete(h.sessions, wizardID)
		}
		h.mu.Unlock()
		wsc.close()
	}()

	go func() {
		if err := wsc.writeLoop(); err != nil {
			h.logger.Debug("stream: write failed", "wizard_id", wizardID, "error", err)
		}
	}()

	wsc.enqueue(wsc.state(view))
	h.logger.Info("stream: connection opened", "wizard_id", wizardID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("stream: connection closed", "wizard_id", wizardID, "error", err)
			return
		}
		if msg.Type == "ping" && !wsc.enqueue(OutboundMessage{Type: "pong"}) {
			return
		}
	}
}
