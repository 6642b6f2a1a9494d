package mq

import (
	"context"
	"testing"

	"github.com/jjudge-oj/accounts/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBackend struct {
	published []Message
	closed    bool
}

func (b *recordingBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	b.published = append(b.published, Message{ID: channel, Data: data, Attributes: attrs})
	return "id-1", nil
}

func (b *recordingBackend) Subscribe(ctx context.Context, _ string, handler Handler) error {
	for _, msg := range b.published {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (b *recordingBackend) Close() error {
	b.closed = true
	return nil
}

func TestMQ_DelegatesToBackend(t *testing.T) {
	backend := &recordingBackend{}
	q := New(backend, zerolog.Nop())

	id, err := q.Publish(context.Background(), "login-attempts", []byte(`{}`), map[string]string{"event": "login_attempt"})
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)

	var got []Message
	err = q.Subscribe(context.Background(), "login-attempts", func(_ context.Context, msg Message) error {
		got = append(got, msg)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "login_attempt", got[0].Attributes["event"])

	require.NoError(t, q.Close())
	assert.True(t, backend.closed)
}

func TestNewFromConfig_None(t *testing.T) {
	cfg := config.Config{MQ: config.MQConfig{Backend: config.BackendNone}}
	q, err := NewFromConfig(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, q)

	cfg.MQ.Backend = "kafka"
	_, err = NewFromConfig(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewFromConfig_RabbitMQRequiresURL(t *testing.T) {
	cfg := config.Config{MQ: config.MQConfig{Backend: config.BackendRabbitMQ}}
	_, err := NewFromConfig(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "rabbitmq url is required")
}

func TestContentType(t *testing.T) {
	ct, rest := contentType(map[string]string{ContentTypeAttr: "application/json", "event": "x"})
	assert.Equal(t, "application/json", ct)
	assert.Equal(t, map[string]string{"event": "x"}, rest)

	ct, rest = contentType(nil)
	assert.Equal(t, defaultContentType, ct)
	assert.Empty(t, rest)
}

func TestBuildPublishing(t *testing.T) {
	p := buildPublishing("m-1", []byte("body"), map[string]string{ContentTypeAttr: "application/json", "success": "true"}, true)

	assert.Equal(t, "m-1", p.MessageId)
	assert.Equal(t, "application/json", p.ContentType)
	assert.Equal(t, amqp.Persistent, p.DeliveryMode)
	assert.Equal(t, amqp.Table{"success": "true"}, p.Headers)

	p = buildPublishing("m-2", nil, nil, false)
	assert.Equal(t, amqp.Transient, p.DeliveryMode)
	assert.Equal(t, defaultContentType, p.ContentType)
}

func TestHeadersToAttributes(t *testing.T) {
	assert.Nil(t, headersToAttributes(nil))

	attrs := headersToAttributes(amqp.Table{
		"event":   "login_attempt",
		"raw":     []byte("bytes"),
		"retries": int32(3),
	})
	assert.Equal(t, map[string]string{
		"event":   "login_attempt",
		"raw":     "bytes",
		"retries": "3",
	}, attrs)
}
