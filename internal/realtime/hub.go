// Package realtime owns live websocket sessions: who is online on this
// node, pushing events to them, and sharing both across nodes through
// Redis and NATS.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Publish when uid has no live session
// on this node.
var ErrNotConnected = errors.New("realtime: user not connected")

// PresenceSink is told when a user's first session opens and last
// session closes on this node.
type PresenceSink interface {
	Mark(ctx context.Context, uid string) error
	Clear(ctx context.Context, uid string) error
}

// Hub tracks the websocket sessions of this node. A user may hold
// several sessions (tabs); they count as online while any is open.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Connection // uid -> connection id -> connection
	upgrader websocket.Upgrader
	sink     PresenceSink
	logger   *log.Logger
}

// NewHub creates a Hub accepting websocket upgrades from allowedOrigins.
func NewHub(allowedOrigins []string, logger *log.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]map[string]*Connection),
		upgrader: createUpgrader(allowedOrigins),
		logger:   logger.With("component", "realtime"),
	}
}

// createUpgrader creates a WebSocket upgrader with the given allowed origins
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowedMap[origin]
		},
	}
}

// SetSink registers where presence changes are mirrored. Call before
// serving connections.
func (h *Hub) SetSink(sink PresenceSink) {
	h.sink = sink
}

// ServeWS upgrades the request into a session for uid and blocks until
// the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, uid string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "uid", uid, "err", err)
		return
	}

	conn := NewConnection(uid, ws)
	h.Attach(conn)
	go conn.writeLoop()

	err = conn.readLoop()
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		h.logger.Debug("websocket read error", "uid", uid, "err", err)
	}
	h.Detach(conn)
	conn.Close(websocket.CloseNormalClosure, "")
}

// Attach registers conn.
func (h *Hub) Attach(conn *Connection) {
	h.mu.Lock()
	conns := h.sessions[conn.UserID]
	if conns == nil {
		conns = make(map[string]*Connection)
		h.sessions[conn.UserID] = conns
	}
	conns[conn.ID] = conn
	first := len(conns) == 1
	h.mu.Unlock()

	h.logger.Debug("session attached", "uid", conn.UserID, "session", conn.ID)
	if first && h.sink != nil {
		if err := h.sink.Mark(context.Background(), conn.UserID); err != nil {
			h.logger.Warn("presence mark failed", "uid", conn.UserID, "err", err)
		}
	}
}

// Detach forgets conn if it is still registered.
func (h *Hub) Detach(conn *Connection) {
	h.mu.Lock()
	conns := h.sessions[conn.UserID]
	if _, ok := conns[conn.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(conns, conn.ID)
	last := len(conns) == 0
	if last {
		delete(h.sessions, conn.UserID)
	}
	h.mu.Unlock()

	h.logger.Debug("session detached", "uid", conn.UserID, "session", conn.ID)
	if last && h.sink != nil {
		if err := h.sink.Clear(context.Background(), conn.UserID); err != nil {
			h.logger.Warn("presence clear failed", "uid", conn.UserID, "err", err)
		}
	}
}

// IsOnline reports whether uid has a session on this node.
func (h *Hub) IsOnline(_ context.Context, uid string) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[uid]) > 0, nil
}

// OnlineUsers lists the users with a session on this node.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.sessions))
	for uid := range h.sessions {
		out = append(out, uid)
	}
	return out
}

// Publish sends event as JSON to every session of uid on this node.
func (h *Hub) Publish(_ context.Context, uid string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if h.deliver(uid, payload) == 0 {
		return ErrNotConnected
	}
	return nil
}

// deliver writes payload to uid's sessions and returns how many took it.
func (h *Hub) deliver(uid string, payload []byte) int {
	// スナップショットしてからロックを外す
	h.mu.RLock()
	snapshot := make([]*Connection, 0, len(h.sessions[uid]))
	for _, conn := range h.sessions[uid] {
		snapshot = append(snapshot, conn)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, conn := range snapshot {
		if err := conn.Send(payload); err != nil {
			h.Detach(conn)
			continue
		}
		delivered++
	}
	return delivered
}

// Close terminates every session.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Connection
	for _, conns := range h.sessions {
		for _, conn := range conns {
			all = append(all, conn)
		}
	}
	h.sessions = make(map[string]map[string]*Connection)
	h.mu.Unlock()

	for _, conn := range all {
		conn.Close(websocket.CloseGoingAway, "server shutdown")
	}
}
