// Package live pushes session updates (recalc status transitions, match
// result changes) to websocket subscribers. Clients join a room per session.
package live

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Dosada05/ladder-system/models"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

const (
	EventRecalcStatus = "RECALC_STATUS"
	EventMatchUpdated = "MATCH_UPDATED"
)

type Event struct {
	Type      string      `json:"type"`
	SessionID int         `json:"session_id"`
	Payload   interface{} `json:"payload"`
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	room string
}

type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		logger: logger,
	}
}

// Join registers a new client for a session room and starts its pumps.
func (h *Hub) Join(sessionID int, conn *websocket.Conn) {
	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		room: strconv.Itoa(sessionID),
	}

	h.mu.Lock()
	if h.rooms[client.room] == nil {
		h.rooms[client.room] = make(map[*Client]struct{})
	}
	h.rooms[client.room][client] = struct{}{}
	h.mu.Unlock()

	go client.writePump()
	go client.readPump()
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.rooms[client.room]
	if !ok {
		return
	}
	if _, ok := clients[client]; ok {
		delete(clients, client)
		close(client.send)
	}
	if len(clients) == 0 {
		delete(h.rooms, client.room)
	}
}

// broadcast fans an event out to every client in the session's room.
// Slow clients are skipped, not waited on.
func (h *Hub) broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal live event", slog.Any("error", err))
		return
	}

	room := strconv.Itoa(event.SessionID)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[room] {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("dropping live event for slow client", slog.String("room", room))
		}
	}
}

// RecalcStatusChanged implements services.RecalcNotifier.
func (h *Hub) RecalcStatusChanged(sessionID int, status models.RecalcStatus) {
	h.broadcast(Event{
		Type:      EventRecalcStatus,
		SessionID: sessionID,
		Payload:   map[string]string{"recalc_status": string(status)},
	})
}

// MatchUpdated implements services.RecalcNotifier.
func (h *Hub) MatchUpdated(sessionID int, match *models.Match) {
	h.broadcast(Event{
		Type:      EventMatchUpdated,
		SessionID: sessionID,
		Payload:   match,
	})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// Inbound messages are ignored; the read loop only tracks liveness.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
