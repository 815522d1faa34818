package ws

import "barter/internal/pubsub"

// Client -> server operations
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
)

// Frame types the server sends besides relayed topic messages
const (
	TypeHello        = "hello"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeError        = "error"
)

// ClientFrame is the only shape a client may send.
type ClientFrame struct {
	Op    string `json:"op"`
	Topic string `json:"topic"`
}

// ServerFrame is {"topic","type","data"}; relayed messages use their own
// topic, control frames leave it empty unless they concern a topic.
type ServerFrame = pubsub.Message

type HelloPayload struct {
	SessionID string   `json:"sessionId"`
	ProfileID string   `json:"profileId"`
	Topics    []string `json:"topics"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
