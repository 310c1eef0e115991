package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/projector"
	"github.com/gorilla/websocket"
)

const (
	clientBuffer = 256
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

type streamMessage struct {
	Type  string                `json:"type"`
	Book  *projector.BookUpdate `json:"book,omitempty"`
	Trade *projector.TradeEvent `json:"trade,omitempty"`
}

// Hub keeps the WebSocket clients and broadcasts projections to them. It is a
// projector sink; a slow client loses messages instead of stalling the projector.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	// instrument filters the stream; empty receives every instrument.
	instrument string
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
	}
}

func (h *Hub) Name() string { return "websocket" }

func (h *Hub) OnTrade(_ context.Context, ev projector.TradeEvent) error {
	return h.broadcast(ev.Instrument, streamMessage{Type: "trade", Trade: &ev})
}

func (h *Hub) OnBookUpdate(_ context.Context, ev projector.BookUpdate) error {
	return h.broadcast(ev.Instrument, streamMessage{Type: "book", Book: &ev})
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(instrument string, message streamMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.instrument != "" && client.instrument != instrument {
			continue
		}
		select {
		case client.send <- data:
		default:
		}
	}
	return nil
}

// Stop disconnects every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump only keeps the connection alive; clients do not send commands.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
