package api

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := u.Hostname()
		return host == "localhost" || host == "127.0.0.1" || host == "::1" || strings.EqualFold(u.Host, r.Host)
	},
}

func handleListOperations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, deps.Ops.Capacity())
		writeJSON(w, http.StatusOK, deps.Ops.Recent(limit))
	}
}

// safeConn serializes writes; gorilla connections allow one writer at a time.
type safeConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (sc *safeConn) writeJSON(v any) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	sc.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return sc.conn.WriteJSON(v)
}

func (sc *safeConn) ping() error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return sc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait))
}

// handleOperationStream pushes operation log entries over a WebSocket.
// ?backlog=N first replays the N most recent entries, oldest first.
func handleOperationStream(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		backlog := parseIntParam(r, "backlog", 0, deps.Ops.Capacity())

		entries, cancel := deps.Ops.Subscribe()
		defer cancel()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			deps.Logger.Debug("operation stream upgrade failed", "error", err)
			return
		}
		sc := &safeConn{conn: conn}
		defer conn.Close()

		if backlog > 0 {
			recent := deps.Ops.Recent(backlog)
			for i := len(recent) - 1; i >= 0; i-- {
				if err := sc.writeJSON(recent[i]); err != nil {
					return
				}
			}
		}

		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			conn.SetReadLimit(4096)
			conn.SetReadDeadline(time.Now().Add(streamPongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(streamPongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(streamPingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-readDone:
				return
			case e, ok := <-entries:
				if !ok {
					return
				}
				if err := sc.writeJSON(e); err != nil {
					deps.Logger.Debug("operation stream write failed", "error", err)
					return
				}
			case <-ticker.C:
				if err := sc.ping(); err != nil {
					return
				}
			}
		}
	}
}
