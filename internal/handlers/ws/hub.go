package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/noteduco342/unichat-backend/internal/metrics"
)

// ClientConnection wraps a session with its connection health
type ClientConnection struct {
	Session    *Session
	Conn       *websocket.Conn
	LastPong   time.Time
	PingTicker *time.Ticker
	CloseChan  chan struct{}
}

// Hub tracks every connected session. A user may hold several at once.
type Hub struct {
	clients      map[string]*ClientConnection
	clientsMux   sync.RWMutex
	pingInterval time.Duration
	pongTimeout  time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	hub := &Hub{
		clients:      make(map[string]*ClientConnection),
		pingInterval: 30 * time.Second,
		pongTimeout:  90 * time.Second,
		stop:         make(chan struct{}),
	}

	go hub.connectionHealthChecker()

	return hub
}

// Register adds a session with health monitoring
func (h *Hub) Register(s *Session, conn *websocket.Conn) {
	clientConn := &ClientConnection{
		Session:    s,
		Conn:       conn,
		LastPong:   time.Now(),
		PingTicker: time.NewTicker(h.pingInterval),
		CloseChan:  make(chan struct{}),
	}

	conn.SetReadLimit(maxFrameBytes)
	conn.SetPongHandler(func(appData string) error {
		h.clientsMux.Lock()
		if client, exists := h.clients[s.ID]; exists {
			client.LastPong = time.Now()
		}
		h.clientsMux.Unlock()
		return conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(h.pongTimeout))

	h.clientsMux.Lock()
	h.clients[s.ID] = clientConn
	count := len(h.clients)
	h.clientsMux.Unlock()
	metrics.Sessions.Inc()

	go h.pingRoutine(clientConn)

	slog.Info("session connected", "user_id", s.UserID, "session_id", s.ID, "sessions", count)
}

// Unregister removes a session
func (h *Hub) Unregister(sessionID string) {
	h.clientsMux.Lock()
	client, exists := h.clients[sessionID]
	if exists {
		client.PingTicker.Stop()
		close(client.CloseChan)
		delete(h.clients, sessionID)
	}
	count := len(h.clients)
	h.clientsMux.Unlock()

	if exists {
		metrics.Sessions.Dec()
		slog.Info("session disconnected", "user_id", client.Session.UserID, "session_id", sessionID, "sessions", count)
	}
}

// SendToUser writes a frame to every session of userID
func (h *Hub) SendToUser(userID string, frameType string, payload interface{}) {
	h.clientsMux.RLock()
	sessions := make([]*Session, 0, 1)
	for _, client := range h.clients {
		if client.Session.UserID == userID {
			sessions = append(sessions, client.Session)
		}
	}
	h.clientsMux.RUnlock()

	for _, s := range sessions {
		if err := s.Send(frameType, payload); err != nil {
			slog.Debug("send to session", "user_id", userID, "session_id", s.ID, "error", err)
		}
	}
}

// IsOnline checks if a user has a session
func (h *Hub) IsOnline(userID string) bool {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	for _, client := range h.clients {
		if client.Session.UserID == userID {
			return true
		}
	}
	return false
}

// Count returns the number of connected sessions
func (h *Hub) Count() int {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	return len(h.clients)
}

// Close stops the health checker
func (h *Hub) Close() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// pingRoutine sends periodic ping messages to keep connection alive
func (h *Hub) pingRoutine(client *ClientConnection) {
	for {
		select {
		case <-client.CloseChan:
			return
		case <-client.PingTicker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				slog.Warn("ping failed", "session_id", client.Session.ID, "error", err)
				h.Unregister(client.Session.ID)
				return
			}
		}
	}
}

// connectionHealthChecker removes sessions that stopped answering pings
func (h *Hub) connectionHealthChecker() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
		}

		h.clientsMux.RLock()
		dead := make([]*ClientConnection, 0)
		now := time.Now()
		for _, client := range h.clients {
			if now.Sub(client.LastPong) > h.pongTimeout {
				dead = append(dead, client)
			}
		}
		h.clientsMux.RUnlock()

		for _, client := range dead {
			slog.Warn("removing dead session", "session_id", client.Session.ID)
			h.Unregister(client.Session.ID)
			// Unblocks the read loop, which then closes the session.
			_ = client.Conn.Close()
		}
	}
}
