package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"barter/internal/pubsub"
)

const (
	// maxDroppedMessagesBeforeDisconnect is the threshold for disconnecting slow clients
	maxDroppedMessagesBeforeDisconnect = 100
)

var ErrNoSubscribers = errors.New("no subscribers for topic")

// Hub routes topic messages to subscribed clients. It implements
// pubsub.Publisher and never blocks on a client.
type Hub struct {
	authorizer TopicAuthorizer

	mu      sync.RWMutex
	clients map[*Client]struct{}
	topics  map[string]map[*Client]struct{}
	closed  bool
}

func NewHub(authorizer TopicAuthorizer) *Hub {
	return &Hub{
		authorizer: authorizer,
		clients:    make(map[*Client]struct{}),
		topics:     make(map[string]map[*Client]struct{}),
	}
}

// Register adds a client and subscribes it to its own notification topic.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.subscribeLocked(c, pubsub.NotificationsTopic(c.profileID))
	slog.Info("client registered", "component", "hub", "profile_id", c.profileID, "session_id", c.sessionID)
	return true
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	for topic := range c.topics {
		h.unsubscribeLocked(c, topic)
	}
	delete(h.clients, c)
	c.CloseSend()
	slog.Info("client unregistered", "component", "hub", "profile_id", c.profileID, "session_id", c.sessionID)
}

// Subscribe checks the client may read topic before adding it.
func (h *Hub) Subscribe(ctx context.Context, c *Client, topic string) error {
	if err := h.authorizer.Authorize(ctx, c.profileID, topic); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return ErrTopicForbidden
	}
	h.subscribeLocked(c, topic)
	return nil
}

func (h *Hub) Unsubscribe(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(c, topic)
}

func (h *Hub) subscribeLocked(c *Client, topic string) {
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Client]struct{})
		h.topics[topic] = subs
	}
	subs[c] = struct{}{}
	c.topics[topic] = struct{}{}
}

func (h *Hub) unsubscribeLocked(c *Client, topic string) {
	if subs, ok := h.topics[topic]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(c.topics, topic)
}

// Publish hands msg to every subscriber of its topic. Slow clients lose the
// message instead of stalling the caller.
func (h *Hub) Publish(_ context.Context, msg pubsub.Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.topics[msg.Topic]
	if len(subs) == 0 {
		return ErrNoSubscribers
	}

	frame := msg
	for c := range subs {
		h.sendToClientLocked(c, &frame)
	}
	return nil
}

func (h *Hub) sendToClientLocked(client *Client, msg *ServerFrame) {
	if client.IsClosed() {
		return
	}
	select {
	case client.send <- msg:
	default:
		dropped := atomic.AddInt64(&client.DroppedMessages, 1)

		// Log warning periodically (every 10 drops)
		if dropped%10 == 1 {
			slog.Warn("dropped messages for slow client", "component", "hub", "dropped", dropped, "profile_id", client.profileID)
		}

		// Disconnect clients that fall too far behind
		if dropped >= maxDroppedMessagesBeforeDisconnect {
			slog.Warn("disconnecting slow client", "component", "hub", "profile_id", client.profileID, "dropped", dropped)
			// Close will be handled by the client's pumps
			client.Close()
		}
	}
}

func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every client and refuses new registrations.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		c.CloseSend()
		delete(h.clients, c)
	}
	h.topics = make(map[string]map[*Client]struct{})
	slog.Info("shutdown complete", "component", "hub")
}
