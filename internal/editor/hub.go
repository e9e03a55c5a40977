// internal/editor/hub.go
package editor

import (
	"encoding/json"

	"go.uber.org/zap"
)

// blipKey identifies one blip's connection set, combining all three address
// components since a client id space that only keyed on blipID would
// collide across distinct wavelets sharing a blip name.
func blipKey(waveID, waveletID, blipID string) string {
	return waveID + "/" + waveletID + "/" + blipID
}

// Hub maintains active client connections and broadcasts messages
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages from clients
	broadcast chan []byte

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Blip-specific client tracking
	blipClients map[string]map[*Client]bool

	logger *zap.Logger
}

// NewHub creates a new Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		broadcast:   make(chan []byte),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		clients:     make(map[*Client]bool),
		blipClients: make(map[string]map[*Client]bool),
		logger:      logger,
	}
}

// run starts the hub's main loop
func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case message := <-h.broadcast:
			h.handleBroadcast(message)
		}
	}
}

// handleRegister handles client registration
func (h *Hub) handleRegister(client *Client) {
	h.clients[client] = true

	key := client.blipKey()
	if key != "" {
		if h.blipClients[key] == nil {
			h.blipClients[key] = make(map[*Client]bool)
		}
		h.blipClients[key][client] = true
	}

	h.logger.Info("client connected", zap.String("client", client.id), zap.Int("total", len(h.clients)))

	if key != "" {
		h.notifyUserJoined(client)
	}
}

// handleUnregister handles client disconnection
func (h *Hub) handleUnregister(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)

		key := client.blipKey()
		if key != "" && h.blipClients[key] != nil {
			delete(h.blipClients[key], client)

			if len(h.blipClients[key]) == 0 {
				delete(h.blipClients, key)
			}

			h.notifyUserLeft(client)
		}

		if client.service != nil {
			client.service.RemoveClientFromBlip(client)
		}

		h.logger.Info("client disconnected", zap.String("client", client.id), zap.Int("total", len(h.clients)))
	}
}

// handleBroadcast handles message broadcasting
func (h *Hub) handleBroadcast(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		h.logger.Warn("unmarshal broadcast message", zap.Error(err))
		return
	}

	key := blipKey(msg.WaveID, msg.WaveletID, msg.BlipID)
	switch msg.Type {
	case MsgOperationApplied, MsgCursorPosition, MsgSelection, MsgTypingStart, MsgTypingStop:
		h.broadcastToBlip(key, message, msg.ClientID)
	default:
		if key != "" {
			h.broadcastToBlip(key, message, msg.ClientID)
		}
	}
}

// broadcastToBlip sends a message to all clients connected to a specific blip
func (h *Hub) broadcastToBlip(key string, message []byte, excludeClientID string) {
	clients := h.blipClients[key]
	if clients == nil {
		return
	}

	for client := range clients {
		if client.id != excludeClientID {
			select {
			case client.send <- message:
			default:
				close(client.send)
				delete(h.clients, client)
				delete(clients, client)
			}
		}
	}
}

// broadcastToAll sends a message to all connected clients
func (h *Hub) broadcastToAll(message []byte, excludeClientID string) {
	for client := range h.clients {
		if client.id != excludeClientID {
			select {
			case client.send <- message:
			default:
				close(client.send)
				delete(h.clients, client)
			}
		}
	}
}

// notifyUserJoined notifies other clients on the same blip that a new
// participant joined
func (h *Hub) notifyUserJoined(newClient *Client) {
	notification := Message{
		Type:      MsgUserJoined,
		ClientID:  newClient.id,
		WaveID:    newClient.waveID,
		WaveletID: newClient.waveletID,
		BlipID:    newClient.blipID,
		Data: map[string]interface{}{
			"userId":   newClient.id,
			"username": newClient.username,
			"color":    newClient.color,
		},
	}

	data, err := json.Marshal(notification)
	if err != nil {
		h.logger.Warn("marshal join notification", zap.Error(err))
		return
	}

	h.broadcastToBlip(newClient.blipKey(), data, newClient.id)
	h.sendActiveUsers(newClient)
}

// notifyUserLeft notifies other clients on the same blip that a participant
// left
func (h *Hub) notifyUserLeft(leftClient *Client) {
	notification := Message{
		Type:      MsgUserLeft,
		ClientID:  leftClient.id,
		WaveID:    leftClient.waveID,
		WaveletID: leftClient.waveletID,
		BlipID:    leftClient.blipID,
		Data: map[string]interface{}{
			"userId": leftClient.id,
		},
	}

	data, err := json.Marshal(notification)
	if err != nil {
		h.logger.Warn("marshal leave notification", zap.Error(err))
		return
	}

	h.broadcastToBlip(leftClient.blipKey(), data, leftClient.id)
}

// sendActiveUsers sends the list of active participants to a client
func (h *Hub) sendActiveUsers(client *Client) {
	users := []map[string]interface{}{}

	if clients := h.blipClients[client.blipKey()]; clients != nil {
		for c := range clients {
			if c.id != client.id {
				users = append(users, map[string]interface{}{
					"userId":   c.id,
					"username": c.username,
					"color":    c.color,
				})
			}
		}
	}

	message := Message{
		Type: MsgActiveUsers,
		Data: users,
	}

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Warn("marshal active users", zap.Error(err))
		return
	}

	select {
	case client.send <- data:
	default:
	}
}

// shutdown gracefully shuts down the hub
func (h *Hub) shutdown() {
	for client := range h.clients {
		close(client.send)
		client.conn.Close()
	}
	h.logger.Info("hub shutdown complete")
}

// GetStats returns statistics about the hub
func (h *Hub) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"total_clients": len(h.clients),
		"total_blips":   len(h.blipClients),
		"blips_detail":  make(map[string]int),
	}

	for key, clients := range h.blipClients {
		stats["blips_detail"].(map[string]int)[key] = len(clients)
	}

	return stats
}
