// Package ws pushes guild rating events to connected front-end clients so
// they can refresh leaderboard views without polling.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"scrim-rating-server/wsutil"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development; restrict in production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub maintains the set of connected clients and fans out guild events to
// the clients subscribed to each guild.
type Hub struct {
	Clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	Events     chan Event
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		Clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Events:     make(chan Event, 64),
	}
}

// Run is the hub's main loop; run it as a goroutine. It returns when ctx
// is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("hub stopping", "tag", "ws")
			return
		case client := <-h.Register:
			h.Clients[client] = true
			slog.Info("client connected", "tag", "ws", "total", len(h.Clients))
		case client := <-h.Unregister:
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				close(client.Send)
				slog.Info("client disconnected", "tag", "ws", "total", len(h.Clients))
			}
		case ev := <-h.Events:
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Warn("marshal event", "tag", "ws", "err", err)
				continue
			}
			for client := range h.Clients {
				if client.Subscribed(ev.Guild) {
					wsutil.SafeSend(client.Send, data)
				}
			}
		}
	}
}

// Broadcast queues an event for fan-out. Non-blocking: if the hub is
// backed up the event is dropped, since the feed is advisory.
func (h *Hub) Broadcast(ev Event) {
	select {
	case h.Events <- ev:
	default:
		slog.Warn("event queue full, dropping", "tag", "ws", "type", ev.Type, "guild", ev.Guild)
	}
}

// ServeWS handles WebSocket upgrade requests and registers a new client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade", "tag", "ws", "err", err)
		return
	}

	client := NewClient(h, conn)
	h.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
