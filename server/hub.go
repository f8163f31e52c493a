package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	carousel "github.com/VantageDataChat/GoCarousel"
)

const writeWait = 5 * time.Second

// Hub fans export progress out to every connected websocket client.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	last    *carousel.Status
}

// NewHub creates an empty hub. The editing surface is local, so any origin is
// accepted.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client. A newly connected
// client first receives the latest status.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		carousel.Logger().Warn("websocket upgrade failed", "err", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	if h.last != nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(h.last); err != nil {
			carousel.Logger().Warn("websocket replay failed", "err", err)
		}
	}
	h.mu.Unlock()

	// Clients never send anything meaningful; reading detects the close.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends st to every client. Clients that cannot keep up are dropped.
func (h *Hub) Broadcast(st carousel.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &st
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(st); err != nil {
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}
