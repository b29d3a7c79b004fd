package websocket

import (
	"context"
	"log/slog"

	"geminichat/internal/metrics"
	"geminichat/internal/microservices/chatroom"
)

// Central hub managing all connections and rooms.
// Each WebSocket connection runs in its own goroutines
// but membership changes and fan-out go through Run to avoid races.

type roomFrame struct {
	roomID string
	data   []byte
	seq    int64 // Seq of the appended message, 0 for other frames
}

type clientFrame struct {
	client *Client
	data   []byte
}

type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	broadcast  chan roomFrame
	direct     chan clientFrame
	rooms      map[string]*Room
	done       chan struct{}
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan roomFrame, 256),
		direct:     make(chan clientFrame, 64),
		rooms:      make(map[string]*Room),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run owns room membership until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.Register:
			room, ok := h.rooms[client.RoomID]
			if !ok {
				room = NewRoom(client.RoomID)
				h.rooms[client.RoomID] = room
			}
			if !room.Add(client) {
				h.logger.Warn("websocket_duplicate_client", "room_id", client.RoomID, "client_id", client.ID)
				close(client.SendChannel)
				continue
			}
			metrics.WebsocketClients.Inc()
			// the snapshot is taken here so every later broadcast follows it
			h.sendSnapshot(client)
			h.logger.Debug("websocket_client_registered", "room_id", client.RoomID, "clients", room.Len())

		case client := <-h.Unregister:
			h.drop(client)

		case frame := <-h.broadcast:
			room, ok := h.rooms[frame.roomID]
			if !ok {
				continue
			}
			for _, slow := range room.Broadcast(frame.data, frame.seq) {
				h.logger.Warn("websocket_client_too_slow", "room_id", frame.roomID, "client_id", slow.ID)
				h.drop(slow)
			}

		case frame := <-h.direct:
			if !h.registered(frame.client) {
				continue
			}
			select {
			case frame.client.SendChannel <- frame.data:
			default:
				h.logger.Warn("websocket_client_too_slow", "room_id", frame.client.RoomID, "client_id", frame.client.ID)
				h.drop(frame.client)
			}

		case <-ctx.Done():
			for _, room := range h.rooms {
				for _, client := range room.Clients() {
					h.drop(client)
				}
			}
			return
		}
	}
}

// sendSnapshot queues the history frame of a freshly registered client and
// remembers the newest message it contains. Run goroutine only.
func (h *Hub) sendSnapshot(client *Client) {
	if client.view == nil {
		return
	}
	window, state := client.view.Window(), client.view.State()
	if n := len(window); n > 0 {
		client.seen = window[n-1].Seq
	}
	data, err := NewHistoryMessage(client.RoomID, window, state).ToJSON()
	if err != nil {
		return
	}
	select {
	case client.SendChannel <- data:
	default:
		h.drop(client)
	}
}

// drop removes a client and closes its send channel. Run goroutine only.
func (h *Hub) drop(client *Client) {
	if !h.registered(client) {
		return
	}
	room := h.rooms[client.RoomID]
	room.Remove(client)
	close(client.SendChannel)
	metrics.WebsocketClients.Dec()
	if room.Len() == 0 {
		delete(h.rooms, client.RoomID)
	}
}

func (h *Hub) registered(client *Client) bool {
	room, ok := h.rooms[client.RoomID]
	if !ok {
		return false
	}
	return room.Has(client)
}

// Publish is a chatroom.Listener fanning controller events out to the room
func (h *Hub) Publish(e chatroom.Event) {
	msg := FromEvent(e)
	if msg == nil {
		return
	}
	data, err := msg.ToJSON()
	if err != nil {
		return
	}
	frame := roomFrame{roomID: e.RoomID, data: data}
	if e.Type == chatroom.EventMessageAppended && e.Message != nil {
		frame.seq = e.Message.Seq
	}
	select {
	case h.broadcast <- frame:
	case <-h.done:
	}
}

func (h *Hub) sendTo(client *Client, data []byte) {
	select {
	case h.direct <- clientFrame{client: client, data: data}:
	case <-h.done:
	}
}

// join registers client unless the hub already stopped
func (h *Hub) join(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}
