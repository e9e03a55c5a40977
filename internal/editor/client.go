// internal/editor/client.go
package editor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client represents a connected participant's WebSocket connection to one
// wave/wavelet/blip.
type Client struct {
	id string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	waveID    string
	waveletID string
	blipID    string

	service *Service

	username string
	color    string
}

// blipKey identifies the blip this client is connected to, for Hub
// tracking.
func (c *Client) blipKey() string {
	return blipKey(c.waveID, c.waveletID, c.blipID)
}

// readPump pumps messages from the websocket connection to the session.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.service.logger.Warn("websocket read error", zap.String("client", c.id), zap.Error(err))
			}
			break
		}

		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		c.processMessage(message)
	}
}

// writePump pumps messages from the session to the websocket connection.
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

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
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

// processMessage dispatches one inbound frame by message type.
func (c *Client) processMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		c.service.logger.Warn("unmarshal client message", zap.String("client", c.id), zap.Error(err))
		c.sendError("invalid message format")
		return
	}

	msg.ClientID = c.id
	msg.WaveID, msg.WaveletID, msg.BlipID = c.waveID, c.waveletID, c.blipID

	if c.service != nil {
		c.service.metrics.MessagesReceivedTotal.WithLabelValues(msg.Type).Inc()
	}

	switch msg.Type {
	case MsgTextUpdate:
		c.handleTextUpdate(msg)

	case MsgAcknowledge:
		c.handleAcknowledge(msg)

	case MsgCursorPosition:
		c.handleCursorPosition(msg)

	case MsgSelection:
		c.handleSelection(msg)

	case MsgRequestDocument:
		c.handleDocumentRequest()

	case MsgTypingStart:
		c.handleTypingStart(msg)

	case MsgTypingStop:
		c.handleTypingStop(msg)

	case MsgPing:
		return

	default:
		c.sendError(fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

// handleTextUpdate routes a participant's raw content snapshot through the
// diff generator and the session's reconciliation path.
func (c *Client) handleTextUpdate(msg Message) {
	if c.service == nil {
		return
	}
	c.service.ApplyTextUpdate(c, msg.Version, msg.Content)
	c.service.metrics.MessagesSentTotal.WithLabelValues(MsgOperationApplied).Inc()
}

// handleAcknowledge records that this participant has caught up to the
// version it reports.
func (c *Client) handleAcknowledge(msg Message) {
	if c.service != nil {
		c.service.Acknowledge(c, msg.Version)
	}
}

func (c *Client) handleTypingStart(msg Message) {
	msg.Data = map[string]interface{}{"userId": c.id, "username": c.username, "color": c.color}
	c.broadcastRaw(msg)
}

func (c *Client) handleTypingStop(msg Message) {
	msg.Data = map[string]interface{}{"userId": c.id}
	c.broadcastRaw(msg)
}

// handleCursorPosition updates the shared cursor map for this blip and
// relays the new position to other participants.
func (c *Client) handleCursorPosition(msg Message) {
	if cm := c.service.cursorManager(c.waveID, c.waveletID); cm != nil {
		cm.UpdateCursorPosition(c.id, c.username, c.color, c.blipID, msg.Position)
	}

	msg.Data = map[string]interface{}{
		"userId": c.id, "username": c.username, "color": c.color, "position": msg.Position,
	}
	c.broadcastRaw(msg)
}

// handleSelection updates the shared selection map for this blip and
// relays it to other participants.
func (c *Client) handleSelection(msg Message) {
	sel, ok := msg.Data.(map[string]interface{})
	if !ok {
		return
	}
	start, _ := sel["start"].(float64)
	end, _ := sel["end"].(float64)

	if cm := c.service.cursorManager(c.waveID, c.waveletID); cm != nil {
		cm.UpdateSelection(c.id, c.username, c.color, c.blipID, int(start), int(end))
	}

	msg.Data = map[string]interface{}{
		"userId": c.id, "username": c.username, "color": c.color,
		"selection": SelectionRange{ClientID: c.id, Username: c.username, Start: int(start), End: int(end), Color: c.color},
	}
	c.broadcastRaw(msg)
}

func (c *Client) handleDocumentRequest() {
	if c.service != nil {
		c.service.sendDocumentState(c)
	}
}

func (c *Client) broadcastRaw(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.service.logger.Warn("marshal broadcast message", zap.String("client", c.id), zap.Error(err))
		return
	}
	c.hub.broadcast <- data
}

// sendError sends an error message to the client.
func (c *Client) sendError(errorMsg string) {
	msg := Message{Type: MsgError, Data: map[string]interface{}{"message": errorMsg}}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// sendInitMessage tells the client its assigned id and display color.
func (c *Client) sendInitMessage() {
	initMsg := Message{
		Type:     MsgInit,
		ClientID: c.id,
		Data:     map[string]interface{}{"username": c.username, "color": c.color},
	}
	data, err := json.Marshal(initMsg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// SendMessage sends a message to the client directly, bypassing the hub.
func (c *Client) SendMessage(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("client %s not ready to receive", c.id)
	}
}

// colors cycles through a small fixed palette for cursor display.
var colors = []string{"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FFEAA7", "#DDA0DD", "#98D8C8", "#FFA07A"}

// NewClient creates a new client bound to one wave/wavelet/blip.
func NewClient(hub *Hub, conn *websocket.Conn, service *Service, waveID, waveletID, blipID, clientID string) *Client {
	color := colors[time.Now().UnixNano()%int64(len(colors))]
	return &Client{
		id:        clientID,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		waveID:    waveID,
		waveletID: waveletID,
		blipID:    blipID,
		service:   service,
		username:  "User-" + clientID,
		color:     color,
	}
}
