package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// topicEvent routes an event to one topic room
type topicEvent struct {
	Topic string
	Event Event
}

// Hub maintains the set of active clients and broadcasts messages to them.
// A client may sit in several rooms; each room is keyed by topic
// (shop:<id> or user:<id>).
type Hub struct {
	// Registered clients by topic
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	// Outbound messages to broadcast
	broadcast chan *topicEvent

	// Mutex for thread-safe room access
	mu sync.RWMutex

	// Closed when Run returns
	done chan struct{}

	logger *zap.Logger
}

// NewHub creates a new Hub instance
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *topicEvent, 256),
		done:       make(chan struct{}),
		logger:     logger.Named("ws"),
	}
}

// Run starts the hub's main loop and returns when ctx is done, closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			for _, topic := range client.topics {
				if h.rooms[topic] == nil {
					h.rooms[topic] = make(map[*Client]bool)
				}
				h.rooms[topic][client] = true
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			message, err := json.Marshal(event.Event)
			if err != nil {
				h.logger.Error("marshal event", zap.String("type", event.Event.Type), zap.Error(err))
				continue
			}

			h.mu.Lock()
			for client := range h.rooms[event.Topic] {
				select {
				case client.send <- message:
				default:
					// Client's send buffer is full, drop it
					h.logger.Warn("dropping slow client", zap.String("topic", event.Topic))
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove takes client out of all its rooms and closes its send channel.
// Callers hold h.mu.
func (h *Hub) remove(client *Client) {
	found := false
	for _, topic := range client.topics {
		clients, ok := h.rooms[topic]
		if !ok || !clients[client] {
			continue
		}
		found = true
		delete(clients, client)
		// Clean up empty rooms
		if len(clients) == 0 {
			delete(h.rooms, topic)
		}
	}
	if found {
		close(client.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.rooms {
		for client := range clients {
			h.remove(client)
		}
	}
}

// join registers client unless the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters client unless the hub has stopped.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues event for every client subscribed to topic. Delivery is
// at most once: if the queue is full the event is dropped.
func (h *Hub) Publish(topic string, event Event) {
	select {
	case h.broadcast <- &topicEvent{Topic: topic, Event: event}:
	default:
		h.logger.Warn("broadcast queue full, event dropped",
			zap.String("topic", topic),
			zap.String("type", event.Type),
		)
	}
}

// Notify marshals payload into an event and publishes it.
func (h *Hub) Notify(topic, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal payload", zap.String("type", eventType), zap.Error(err))
		return
	}
	h.Publish(topic, Event{Type: eventType, Payload: data})
}
