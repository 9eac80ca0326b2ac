// Package events fans out live dashboard updates to websocket subscribers.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/serversoft/serversoft/internal/telemetry"
)

const publishBuffer = 256

// Message is the JSON frame sent to subscribers.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Subscriber is a connection receiving a user's events. Send must not block;
// it returns false when the subscriber cannot keep up.
type Subscriber interface {
	Send(payload []byte) bool
	Close()
}

type subscription struct {
	userID string
	client Subscriber
}

type message struct {
	userID  string
	payload []byte
}

// Hub tracks subscribers per user. All subscriber state is owned by the Run
// goroutine.
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	done      chan struct{}
}

// NewHub creates a Hub. Run must be started before subscribers register.
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message, publishBuffer),
		done:      make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled, then
// closes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for userID, clients := range h.clients {
				for c := range clients {
					h.drop(userID, c)
				}
			}
			return
		case sub := <-h.register:
			if _, ok := h.clients[sub.userID]; !ok {
				h.clients[sub.userID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.userID][sub.client] = struct{}{}
			telemetry.EventSubscribers.Inc()
		case sub := <-h.unreg:
			if _, ok := h.clients[sub.userID][sub.client]; ok {
				h.drop(sub.userID, sub.client)
			}
		case msg := <-h.broadcast:
			for c := range h.clients[msg.userID] {
				if !c.Send(msg.payload) {
					slog.Warn("dropping slow event subscriber", "user_id", msg.userID)
					h.drop(msg.userID, c)
				}
			}
		}
	}
}

func (h *Hub) drop(userID string, c Subscriber) {
	clients := h.clients[userID]
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.clients, userID)
	}
	c.Close()
	telemetry.EventSubscribers.Dec()
}

// Register adds client to userID's stream. It returns false once the hub
// has stopped.
func (h *Hub) Register(userID string, client Subscriber) bool {
	select {
	case h.register <- subscription{userID: userID, client: client}:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes client. Unknown clients are ignored.
func (h *Hub) Unregister(userID string, client Subscriber) {
	select {
	case h.unreg <- subscription{userID: userID, client: client}:
	case <-h.done:
	}
}

// Publish queues an event for userID's subscribers without blocking. Events
// published while the queue is full are dropped.
func (h *Hub) Publish(userID, eventType string, data interface{}) {
	if h == nil {
		return
	}
	payload, err := json.Marshal(Message{Type: eventType, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		slog.Error("failed to marshal event", "type", eventType, "error", err)
		return
	}
	select {
	case h.broadcast <- message{userID: userID, payload: payload}:
	case <-h.done:
	default:
		slog.Warn("event queue full, dropping event", "type", eventType, "user_id", userID)
	}
}
