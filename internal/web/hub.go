package web

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"StoryLoom/server/internal/models"
)

// Client is one WebSocket connection subscribed to a session.
type Client struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *SessionHub
	mu        sync.Mutex
	closed    bool
}

// SessionHub fans session updates out to the WebSocket clients watching
// each session. It implements the game service's notifier.
type SessionHub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *models.Session
	mu         sync.RWMutex
}

// NewSessionHub creates a hub.
func NewSessionHub() *SessionHub {
	return &SessionHub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		broadcast:  make(chan *models.Session, 1000),
	}
}

// Run starts the hub's event loop.
func (h *SessionHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case sess := <-h.broadcast:
			h.broadcastSession(sess)
		}
	}
}

// SessionUpdated queues a session snapshot for broadcast. Never blocks;
// under pressure the snapshot is dropped and clients catch up on the
// next update.
func (h *SessionHub) SessionUpdated(sess *models.Session) {
	select {
	case h.broadcast <- sess:
	default:
		log.Printf("[Hub] broadcast channel full, dropping update for %s", sess.ID)
	}
}

func (h *SessionHub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	log.Printf("[Hub] client connected: %s watching %s (total: %d)", client.ID, client.SessionID, len(h.clients))

	go client.writePump()
}

func (h *SessionHub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
		log.Printf("[Hub] client disconnected: %s (total: %d)", client.ID, len(h.clients))
	}
}

func (h *SessionHub) broadcastSession(sess *models.Session) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(map[string]interface{}{
		"type": "session_updated",
		"data": sess,
		"time": time.Now().Unix(),
	})
	if err != nil {
		log.Printf("[Hub] failed to marshal session update: %v", err)
		return
	}

	for _, client := range h.clients {
		if client.SessionID != sess.ID {
			continue
		}
		select {
		case client.Send <- data:
		default:
			log.Printf("[Hub] client send buffer full: %s", client.ID)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *SessionHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.mu.Lock()
			if !ok {
				c.closed = true
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.mu.Unlock()
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()

		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}

// Close closes the client connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.Conn.Close()
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Hub] unexpected close from %s: %v", c.ID, err)
			}
			break
		}
	}
}
