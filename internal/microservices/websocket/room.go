package websocket

// Room = the live clients watching one chat room view.
// Rooms are owned by Hub.Run and never touched from other goroutines.
type Room struct {
	ID      string             // chat room ID
	clients map[string]*Client // map[clientID] -> *Client
}

func NewRoom(id string) *Room {
	return &Room{
		ID:      id,
		clients: make(map[string]*Client),
	}
}

// Add reports false when a client with the same ID is already watching
func (r *Room) Add(c *Client) bool {
	if _, ok := r.clients[c.ID]; ok {
		return false
	}
	r.clients[c.ID] = c
	return true
}

// Remove forgets c if it is the registered client with its ID
func (r *Room) Remove(c *Client) bool {
	if !r.Has(c) {
		return false
	}
	delete(r.clients, c.ID)
	return true
}

func (r *Room) Has(c *Client) bool {
	return r.clients[c.ID] == c
}

func (r *Room) Len() int {
	return len(r.clients)
}

// Clients returns a snapshot, safe to range over while dropping
func (r *Room) Clients() []*Client {
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Broadcast queues message for every client and returns those whose send
// buffer is full; the caller drops them. A chat frame whose seq is already
// part of a client's history snapshot is skipped for that client.
func (r *Room) Broadcast(message []byte, seq int64) []*Client {
	var slow []*Client
	for _, c := range r.clients {
		if seq != 0 && seq <= c.seen {
			continue
		}
		select {
		case c.SendChannel <- message:
		default:
			slow = append(slow, c)
		}
	}
	return slow
}
