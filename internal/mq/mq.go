package mq

import (
	"context"
	"fmt"

	"github.com/jjudge-oj/accounts/config"
	"github.com/rs/zerolog"
)

// ContentTypeAttr is the attribute carrying the payload media type. Backends
// that have a native content type field lift it out of the attributes.
const ContentTypeAttr = "content_type"

const defaultContentType = "application/octet-stream"

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ wraps a backend with publish logging.
type MQ struct {
	backend Backend
	logger  zerolog.Logger
}

func New(backend Backend, logger zerolog.Logger) *MQ {
	return &MQ{backend: backend, logger: logger.With().Str("component", "mq").Logger()}
}

// NewFromConfig dials the broker selected by MQ_BACKEND. It returns nil
// without error when no broker is configured.
func NewFromConfig(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*MQ, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.MQ.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendRabbitMQ:
		backend, err = NewRabbitMQClient(cfg.RabbitMQ)
	case config.BackendPubSub:
		backend, err = NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unsupported mq backend %q", cfg.MQ.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.MQ.Backend, err)
	}
	logger.Info().Str("backend", cfg.MQ.Backend).Msg("message queue connected")
	return New(backend, logger), nil
}

// Publish sends a message to the named channel.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	id, err := m.backend.Publish(ctx, channel, data, attrs)
	if err != nil {
		return "", err
	}
	m.logger.Debug().Str("channel", channel).Str("message_id", id).Int("bytes", len(data)).Msg("published")
	return id, nil
}

// Subscribe consumes messages from the named channel until ctx is done.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	m.logger.Info().Str("channel", channel).Msg("subscribing")
	return m.backend.Subscribe(ctx, channel, handler)
}

func (m *MQ) Close() error {
	return m.backend.Close()
}

// contentType returns the media type named in attrs and the remaining
// attributes.
func contentType(attrs map[string]string) (string, map[string]string) {
	ct := defaultContentType
	rest := make(map[string]string, len(attrs))
	for key, value := range attrs {
		if key == ContentTypeAttr {
			if value != "" {
				ct = value
			}
			continue
		}
		rest[key] = value
	}
	return ct, rest
}
