// Package pubsub is the outbound side of realtime delivery: every push to a
// topic goes through a Publisher, whether the receiver is a WebSocket client
// or a broker.
package pubsub

import (
	"context"
	"errors"
)

type Message struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Data  any    `json:"data"`
}

// Publisher must not block the caller on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, msg Message) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
