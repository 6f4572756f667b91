package devserver

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// maxClientReadSize bounds messages accepted from clients; browsers never
// send anything meaningful over this channel, but an unbounded ReadLimit
// is an easy DoS vector.
const maxClientReadSize = 64 * 1024

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     isLocalOrigin,
}

// isLocalOrigin rejects cross-origin WebSocket upgrades from anywhere but
// localhost or the request's own Host, the same check bennypowers-cem's
// serve package applies to its live-reload socket.
func isLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	reqHost := r.Host
	if i := strings.IndexByte(reqHost, ':'); i != -1 {
		reqHost = reqHost[:i]
	}
	if host == reqHost {
		return true
	}
	switch {
	case host == "localhost" || host == "127.0.0.1" || host == "::1" || host == "[::1]":
		return true
	case strings.HasSuffix(host, ".localhost"):
		return true
	case strings.HasPrefix(host, "127."):
		return true
	default:
		return false
	}
}

// reloadEvent mirrors please_js/dev's sseEvent shape, renamed to match a
// WebSocket push rather than an SSE one.
type reloadEvent struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
	Updated []string `json:"updated,omitempty"`
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// liveReload fans build-completion events out to every connected browser
// tab, grounded on bennypowers-cem/serve/websocket.go's websocketManager
// (connection-wrapper-with-write-mutex, snapshot-then-broadcast, drop
// failed connections after the fact rather than holding the table lock
// across network writes).
type liveReload struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]*wsConn
	log   *zap.Logger
}

func newLiveReload(log *zap.Logger) *liveReload {
	return &liveReload{conns: make(map[*websocket.Conn]*wsConn), log: log}
}

func (lr *liveReload) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		lr.log.Warn("live reload upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxClientReadSize)

	wrapped := &wsConn{conn: conn}
	lr.mu.Lock()
	lr.conns[conn] = wrapped
	count := len(lr.conns)
	lr.mu.Unlock()
	lr.log.Debug("live reload client connected", zap.Int("total", count))

	defer func() {
		lr.mu.Lock()
		delete(lr.conns, conn)
		lr.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (lr *liveReload) broadcast(evt reloadEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}

	lr.mu.RLock()
	snapshot := make([]*wsConn, 0, len(lr.conns))
	for _, c := range lr.conns {
		snapshot = append(snapshot, c)
	}
	lr.mu.RUnlock()

	var dead []*websocket.Conn
	for _, c := range snapshot {
		c.mu.Lock()
		err := c.conn.WriteMessage(websocket.TextMessage, payload)
		c.mu.Unlock()
		if err != nil {
			dead = append(dead, c.conn)
		}
	}

	if len(dead) > 0 {
		lr.mu.Lock()
		for _, c := range dead {
			delete(lr.conns, c)
			_ = c.Close()
		}
		lr.mu.Unlock()
	}
}

func (lr *liveReload) closeAll() {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	for conn, wrapped := range lr.conns {
		wrapped.mu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(500 * time.Millisecond))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down"))
		wrapped.mu.Unlock()
		_ = conn.Close()
	}
	lr.conns = make(map[*websocket.Conn]*wsConn)
}
