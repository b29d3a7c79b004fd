package websocket

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"geminichat/internal/microservices/chatroom"
	"geminichat/internal/microservices/http-api/dto"
	"geminichat/internal/microservices/http-api/service"

	"github.com/gorilla/websocket"
)

// Individual client connection handler

const ( // ping pong(2-way heartbeat) to keep connection alive
	WriteWait      = 10 * time.Second    // max time write a message to the peer
	PongWait       = 60 * time.Second    // max time to wait for pong from peer => no pong = no connection
	PingPeriod     = (PongWait * 9) / 10 // send pings at 90% of pong wait to allow for network jitter
	MaxMessageSize = 8 << 20             // inbound frames may carry a data URL image
	SendBuffer     = 64                  // queued outbound frames before a client counts as slow
)

type Client struct {
	ID          string          // unique client ID
	RoomID      string          // chat room ID
	Conn        *websocket.Conn // WebSocket connection
	SendChannel chan []byte     // channel for outbound(chan <-) messages
	Hub         *Hub            // reference to the central Hub
	sessions    service.SessionService
	logger      *slog.Logger

	view View  // source of the history snapshot sent on registration
	seen int64 // newest Seq contained in that snapshot; Run goroutine only
}

// View is the part of a room controller the hub snapshots
type View interface {
	Window() []chatroom.Message
	State() chatroom.ViewState
}

// constructor new client
func NewClient(id, roomID string, conn *websocket.Conn, hub *Hub, sessions service.SessionService, view View) *Client {
	return &Client{
		ID:          id,
		RoomID:      roomID,
		Conn:        conn,
		SendChannel: make(chan []byte, SendBuffer),
		Hub:         hub,
		sessions:    sessions,
		logger:      hub.logger.With("room_id", roomID, "client_id", id),
		view:        view,
	}
}

// ReadPump: reads inbound frames until the peer goes away
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.leave(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket_read_failed", "error", err)
			}
			return
		}
		msg, err := MessageFromJSON(data)
		if err != nil {
			c.SendMessage(NewSystemMessage(c.RoomID, "malformed frame"))
			continue
		}
		c.handle(msg)
	}
}

// handle applies one inbound frame to the room view; resulting events come
// back through the hub like everyone else's
func (c *Client) handle(msg *Message) {
	ctx, cancel := context.WithTimeout(context.Background(), WriteWait)
	defer cancel()

	ctrl, err := c.sessions.Open(ctx, c.RoomID)
	if err != nil {
		c.SendMessage(NewSystemMessage(c.RoomID, err.Error()))
		return
	}

	switch msg.Type {
	case TypeChat:
		attachment, err := dto.ParseDataURL(msg.Image)
		if err != nil {
			c.SendMessage(NewSystemMessage(c.RoomID, err.Error()))
			return
		}
		if _, err := ctrl.AppendUserMessage(ctx, msg.Content, attachment); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("websocket_send_degraded", "error", err)
		}
	case TypeOlder:
		ctrl.LoadOlderPage()
	case TypeHistory:
		c.SendMessage(NewHistoryMessage(c.RoomID, ctrl.Window(), ctrl.State()))
	default:
		c.SendMessage(NewSystemMessage(c.RoomID, "unknown frame type "+string(msg.Type)))
	}
}

// WritePump: drains SendChannel to the socket and keeps the heartbeat going
func (c *Client) WritePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.SendChannel:
			c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				// hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket_write_failed", "error", err)
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues a frame for this client only
func (c *Client) SendMessage(msg *Message) {
	data, err := msg.ToJSON()
	if err != nil {
		return
	}
	c.Hub.sendTo(c, data)
}
