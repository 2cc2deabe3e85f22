package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// Client is one connected event-feed consumer and the set of guilds it
// follows.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte

	mu     sync.Mutex
	guilds map[string]bool
}

// NewClient wraps an upgraded connection.
func NewClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		Hub:    h,
		Conn:   conn,
		Send:   make(chan []byte, 64),
		guilds: make(map[string]bool),
	}
}

// Subscribed reports whether the client follows the guild.
func (c *Client) Subscribed(guildID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guilds[guildID]
}

func (c *Client) setSubscribed(guildID string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.guilds[guildID] = true
	} else {
		delete(c.guilds, guildID)
	}
}

// ReadPump consumes subscribe/unsubscribe messages from the connection.
// It runs in its own goroutine per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read", "tag", "ws", "err", err)
			}
			break
		}
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg subscribeMsg
	if err := json.Unmarshal(message, &msg); err != nil {
		slog.Warn("bad client message", "tag", "ws", "err", err)
		return
	}
	switch msg.Type {
	case "subscribe":
		if msg.Guild != "" {
			c.setSubscribed(msg.Guild, true)
		}
	case "unsubscribe":
		c.setSubscribed(msg.Guild, false)
	default:
		slog.Warn("unknown client message type", "tag", "ws", "type", msg.Type)
	}
}

// WritePump pumps events from the send channel to the connection and keeps
// the connection alive with pings. It runs in its own goroutine per
// connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
