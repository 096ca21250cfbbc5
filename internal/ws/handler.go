// Package ws streams log-bus events to websocket clients: buffered history
// first, then live messages until either side hangs up.
package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"account_factory/internal/logbus"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

type Handler struct {
	bus          *logbus.Bus
	allowOrigins []string
	upgrader     websocket.Upgrader
}

func NewHandler(bus *logbus.Bus, allowOrigins []string) *Handler {
	h := &Handler{
		bus:          bus,
		allowOrigins: allowOrigins,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: h.checkOrigin,
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if !h.replay(conn) {
		return
	}

	ch, cancel := h.bus.Subscribe(256)
	defer cancel()

	// The client never sends application data; the read loop only notices
	// the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.stream(conn, ch, gone)
}

// replay writes the buffered history so a late client sees how the current
// jobs got where they are.
func (h *Handler) replay(conn *websocket.Conn) bool {
	for _, msg := range h.bus.Snapshot() {
		if !writeDeadline(conn, msg) {
			return false
		}
	}
	return true
}

func (h *Handler) stream(conn *websocket.Conn, ch <-chan logbus.Message, gone <-chan struct{}) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !writeDeadline(conn, msg) {
				return
			}
		}
	}
}

func writeDeadline(conn *websocket.Conn, msg logbus.Message) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg) == nil
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowOrigins) == 0 {
		return false
	}
	for _, o := range h.allowOrigins {
		if o == "*" {
			return true
		}
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
