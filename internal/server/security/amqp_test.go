package security

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/server/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	exchange, key string
	msg           amqp.Publishing
	err           error
	closed        bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return c.err
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestAMQPPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{ch: ch, exchange: "security.events"}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := &models.SecurityEvent{ID: "id-1", EventType: "ACCOUNT_LOCKED", Email: "j***@example.com", CreatedAt: at}
	require.NoError(t, p.Publish(context.Background(), ev))

	assert.Equal(t, "security.events", ch.exchange)
	assert.Equal(t, "security.account_locked", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, "id-1", ch.msg.MessageId)
	assert.Equal(t, at, ch.msg.Timestamp)

	var decoded models.SecurityEvent
	require.NoError(t, json.Unmarshal(ch.msg.Body, &decoded))
	assert.Equal(t, "j***@example.com", decoded.Email)
}

func TestAMQPPublisher_PublishError(t *testing.T) {
	p := &AMQPPublisher{ch: &fakeChannel{err: errors.New("closed")}, exchange: "x"}
	err := p.Publish(context.Background(), &models.SecurityEvent{EventType: "LOGOUT"})
	assert.ErrorContains(t, err, "amqp publish")
}

func TestAMQPPublisher_Close(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{ch: ch}
	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
