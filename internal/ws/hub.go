package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event is one order event pushed to the kitchen and cashier screens of an outlet.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	OrderID    uuid.UUID       `json:"order_id"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type outletEvent struct {
	outletID uuid.UUID
	event    Event
}

// Hub fans order events out to the websocket clients of each outlet.
type Hub struct {
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *outletEvent
	done       chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *outletEvent, 256),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled, then
// closes every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.outletID] == nil {
				h.rooms[client.outletID] = make(map[*Client]bool)
			}
			h.rooms[client.outletID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case ev := <-h.broadcast:
			message, err := json.Marshal(ev.event)
			if err != nil {
				log.Error().Err(err).Str("event_type", ev.event.Type).Msg("ws: marshal event")
				continue
			}

			h.mu.Lock()
			for client := range h.rooms[ev.outletID] {
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop it and let the client reconnect and poll.
					log.Warn().Str("outlet_id", ev.outletID.String()).Msg("ws: dropping slow client")
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(client *Client) {
	clients, ok := h.rooms[client.outletID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.outletID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for outletID, clients := range h.rooms {
		for client := range clients {
			close(client.send)
		}
		delete(h.rooms, outletID)
	}
}

// BroadcastToOutlet queues an event for every client subscribed to outletID.
// It returns ctx.Err() if the queue stays full until ctx is done, and
// drops the event once the hub has stopped.
func (h *Hub) BroadcastToOutlet(ctx context.Context, outletID uuid.UUID, event Event) error {
	select {
	case h.broadcast <- &outletEvent{outletID: outletID, event: event}:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientCount reports how many clients are subscribed to an outlet.
func (h *Hub) ClientCount(outletID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[outletID])
}
