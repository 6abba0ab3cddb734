package websocket

import (
	"encoding/json"
	"sync"

	"plant-diagnostics-web/internal/pkg/logger"
)

// Hub tracks connected browser clients and fans prediction traffic out to
// them. One hub per gateway process; the relay service feeds it from the
// pub/sub channel.
type Hub struct {
	// Registered clients map: UserID -> List of Clients (multi-tab)
	clients map[int][]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Lock for safe map access
	mu sync.RWMutex

	// Dedicated Logger
	logger logger.ILogger
}

func NewHub(log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[int][]*Client),
		logger:     log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = append(h.clients[client.UserID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"user_id": client.UserID})

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.UserID]; ok {
				for i, c := range clients {
					if c == client {
						h.clients[client.UserID] = append(clients[:i], clients[i+1:]...)
						close(client.Send)
						break
					}
				}
				if len(h.clients[client.UserID]) == 0 {
					delete(h.clients, client.UserID)
					h.logger.Info("Hub", "Client completely unregistered", map[string]interface{}{"user_id": client.UserID})
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a typed message to ALL connected clients (the live feed).
func (h *Hub) Broadcast(messageType string, payload interface{}) {
	data, _ := json.Marshal(map[string]interface{}{
		"type": messageType,
		"data": payload,
	})

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.clients {
		for _, client := range clients {
			h.deliver(client, data)
		}
	}
}

// Send delivers a typed message to every tab one user has open.
func (h *Hub) Send(userID int, messageType string, payload interface{}) {
	data, _ := json.Marshal(map[string]interface{}{
		"type": messageType,
		"data": payload,
	})

	h.mu.RLock()
	clients, found := h.clients[userID]
	h.mu.RUnlock()
	if !found {
		return
	}
	for _, client := range clients {
		h.deliver(client, data)
	}
}

func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		h.logger.Warn("Hub", "Client Send buffer full, dropping message", map[string]interface{}{"user_id": client.UserID})
		go func() { h.unregister <- client }()
	}
}
