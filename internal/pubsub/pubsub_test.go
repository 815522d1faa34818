package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	mu   sync.Mutex
	keys []string
	pubs []amqp.Publishing
}

func (c *recordingChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, key)
	c.pubs = append(c.pubs, msg)
	return nil
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pubs)
}

type recordingPublisher struct {
	got []Message
	err error
}

func (p *recordingPublisher) Publish(_ context.Context, msg Message) error {
	p.got = append(p.got, msg)
	return p.err
}

func TestTopicsRoundTrip(t *testing.T) {
	tests := []struct {
		topic   string
		kind    string
		id      string
		channel string
	}{
		{NotificationsTopic("prf_1"), "profiles", "prf_1", "notifications"},
		{TradeMessagesTopic("trd_1"), "trades", "trd_1", "messages"},
		{TradeStatusTopic("trd_1"), "trades", "trd_1", "status"},
	}
	for _, tt := range tests {
		kind, id, channel, ok := ParseTopic(tt.topic)
		require.True(t, ok, tt.topic)
		assert.Equal(t, tt.kind, kind)
		assert.Equal(t, tt.id, id)
		assert.Equal(t, tt.channel, channel)
	}

	for _, bad := range []string{"", "profiles//notifications", "trades/1/notifications", "profiles/1/status", "a/b/c/d"} {
		_, _, _, ok := ParseTopic(bad)
		assert.False(t, ok, bad)
	}
}

func TestMultiPublishesToAllAndJoinsErrors(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("no subscribers")}
	ok := &recordingPublisher{}
	msg := Message{Topic: "trades/1/status", Type: TypeTrade}

	err := Multi{failing, ok}.Publish(context.Background(), msg)

	assert.Error(t, err)
	assert.Len(t, failing.got, 1)
	assert.Len(t, ok.got, 1)
}

func TestAMQPPublisherMirrorsWithRoutingKey(t *testing.T) {
	ch := &recordingChannel{}
	p := newAMQPPublisher(ch, "barter.events", 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	require.NoError(t, p.Publish(ctx, Message{Topic: "profiles/prf_1/notifications", Type: TypeNotification, Data: map[string]string{"id": "n1"}}))

	require.Eventually(t, func() bool { return ch.count() == 1 }, time.Second, 10*time.Millisecond)

	ch.mu.Lock()
	defer ch.mu.Unlock()
	assert.Equal(t, "profiles.prf_1.notifications", ch.keys[0])
	assert.Equal(t, TypeNotification, ch.pubs[0].Type)

	var body Message
	require.NoError(t, json.Unmarshal(ch.pubs[0].Body, &body))
	assert.Equal(t, "profiles/prf_1/notifications", body.Topic)
}

func TestAMQPPublisherNeverBlocks(t *testing.T) {
	p := newAMQPPublisher(&recordingChannel{}, "barter.events", 1)

	require.NoError(t, p.Publish(context.Background(), Message{Topic: "a"}))
	assert.ErrorIs(t, p.Publish(context.Background(), Message{Topic: "b"}), ErrQueueFull)
	assert.Equal(t, uint64(1), p.Dropped())

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Publish(context.Background(), Message{Topic: "c"}), ErrQueueClosed)
}

func TestAMQPPublisherCloseDrainsQueue(t *testing.T) {
	ch := &recordingChannel{}
	p := newAMQPPublisher(ch, "barter.events", 8)

	for _, topic := range []string{"trades/1/status", "trades/1/messages", "profiles/2/notifications"} {
		require.NoError(t, p.Publish(context.Background(), Message{Topic: topic}))
	}

	p.Start(context.Background())
	require.NoError(t, p.Close())

	assert.Equal(t, 3, ch.count())
}
