package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"barter/internal/constants"
	"barter/internal/pubsub"
)

// ClientState represents the lifecycle state of a WebSocket client
type ClientState int32

const (
	ClientStateActive  ClientState = iota // Authenticated at upgrade, relaying topics
	ClientStateClosing                    // Shutdown initiated
	ClientStateClosed                     // Terminal
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Clients only send small control frames
	maxMessageSize = 4096

	// Upper bound for a topic authorization lookup
	authorizeTimeout = 5 * time.Second
)

// Client represents a single WebSocket connection
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan *ServerFrame
	connCloseOnce sync.Once

	state atomic.Int32

	accountID string
	profileID string
	sessionID string

	// topics is guarded by hub.mu
	topics map[string]struct{}

	// DroppedMessages tracks how many messages have been dropped due to full buffer
	DroppedMessages int64
}

func NewClient(hub *Hub, conn *websocket.Conn, accountID, profileID string) *Client {
	c := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan *ServerFrame, constants.WSClientSendBufferSize),
		accountID: accountID,
		profileID: profileID,
		sessionID: uuid.NewString(),
		topics:    make(map[string]struct{}),
	}
	c.state.Store(int32(ClientStateActive))
	return c
}

func (c *Client) ProfileID() string { return c.profileID }

func (c *Client) SessionID() string { return c.sessionID }

// Close performs cleanup for the client, ensuring it only happens once
func (c *Client) Close() {
	c.transitionTo(ClientStateClosing)
	c.closeConn()
}

func (c *Client) closeConn() {
	c.connCloseOnce.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// CloseSend closes the send channel (called by hub during cleanup)
func (c *Client) CloseSend() {
	c.transitionTo(ClientStateClosing)
	if c.transitionTo(ClientStateClosed) {
		close(c.send)
		c.closeConn()
	}
}

// SendHello greets the client with the topics it was subscribed to on connect.
func (c *Client) SendHello() {
	c.queue(&ServerFrame{
		Type: TypeHello,
		Data: HelloPayload{
			SessionID: c.sessionID,
			ProfileID: c.profileID,
			Topics:    []string{pubsub.NotificationsTopic(c.profileID)},
		},
	})
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
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
				slog.Warn("websocket read error", "component", "ws", "profile_id", c.profileID, "error", err)
			}
			break
		}

		var frame ClientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.sendError("", constants.ErrCodeInvalidRequest, "Malformed frame")
			continue
		}

		c.handleFrame(&frame)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				slog.Debug("websocket write failed", "component", "ws", "profile_id", c.profileID, "error", err)
				return
			}

		case <-ticker.C:
			if c.IsClosed() {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleFrame(frame *ClientFrame) {
	switch frame.Op {
	case OpSubscribe:
		ctx, cancel := context.WithTimeout(context.Background(), authorizeTimeout)
		err := c.hub.Subscribe(ctx, c, frame.Topic)
		cancel()

		switch {
		case err == nil:
			c.queue(&ServerFrame{Topic: frame.Topic, Type: TypeSubscribed})
		case errors.Is(err, ErrTopicForbidden), errors.Is(err, ErrUnknownTopic):
			c.sendError(frame.Topic, constants.ErrCodeTopicForbidden, "You cannot subscribe to this topic")
		default:
			slog.Error("topic authorization failed", "component", "ws", "topic", frame.Topic, "error", err)
			c.sendError(frame.Topic, constants.ErrCodeInternal, "Subscription failed")
		}

	case OpUnsubscribe:
		c.hub.Unsubscribe(c, frame.Topic)
		c.queue(&ServerFrame{Topic: frame.Topic, Type: TypeUnsubscribed})

	default:
		c.sendError("", constants.ErrCodeUnknownOp, "Unknown op")
	}
}

func (c *Client) sendError(topic, code, message string) {
	c.queue(&ServerFrame{Topic: topic, Type: TypeError, Data: ErrorPayload{Code: code, Message: message}})
}

// queue sends a control frame to this client only. The hub lock keeps it
// from racing CloseSend.
func (c *Client) queue(frame *ServerFrame) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.IsClosed() {
		return
	}
	select {
	case c.send <- frame:
	default:
		atomic.AddInt64(&c.DroppedMessages, 1)
	}
}

// State returns the current client state
func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

// IsClosed returns true if the client is closing or closed
func (c *Client) IsClosed() bool {
	state := c.State()
	return state == ClientStateClosing || state == ClientStateClosed
}

// isValidClientTransition checks if a state transition is valid
func isValidClientTransition(from, to ClientState) bool {
	switch from {
	case ClientStateActive:
		return to == ClientStateClosing
	case ClientStateClosing:
		return to == ClientStateClosed
	case ClientStateClosed:
		return false
	}
	return false
}

// transitionTo atomically transitions to a new state if valid
func (c *Client) transitionTo(newState ClientState) bool {
	for {
		current := ClientState(c.state.Load())
		if !isValidClientTransition(current, newState) {
			return false
		}
		if c.state.CompareAndSwap(int32(current), int32(newState)) {
			return true
		}
	}
}
