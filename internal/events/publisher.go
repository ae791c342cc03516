// Package events publishes dashboard activity to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/yourorg/signal-dashboard/internal/config"
	"github.com/yourorg/signal-dashboard/internal/logger"
)

// Event types
const (
	TypeLogin       = "session.login"
	TypeLoginFailed = "session.login_failed"
	TypeLogout      = "session.logout"
	TypeQuote       = "quote.fetched"
)

// Event is one dashboard activity record
type Event struct {
	Type      string    `json:"type"`
	Username  string    `json:"username,omitempty"`
	Symbol    string    `json:"symbol,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers events somewhere
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func (NopPublisher) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON to a single topic, keyed by username
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewPublisher returns a KafkaPublisher when cfg enables Kafka, and a
// NopPublisher otherwise.
func NewPublisher(cfg *config.KafkaConfig, log *zap.Logger) Publisher {
	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		return NopPublisher{}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        cfg.Async,
		Transport: &kafka.Transport{
			ClientID: "signal-dashboard",
		},
	}

	return newKafkaPublisher(writer, cfg.Topic, log)
}

func newKafkaPublisher(w messageWriter, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		topic:  topic,
		logger: logger.OrNop(log),
	}
}

// Publish sends evt to the configured topic
func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	msg, err := messageFor(evt)
	if err != nil {
		p.logger.Error("Failed to marshal event",
			zap.String("type", evt.Type),
			zap.Error(err))
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("topic", p.topic),
			zap.String("type", evt.Type),
			zap.Error(err))
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}

	p.logger.Debug("Event published",
		zap.String("topic", p.topic),
		zap.String("type", evt.Type))

	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Failed to close Kafka writer",
			zap.String("topic", p.topic),
			zap.Error(err))
		return err
	}
	return nil
}

func messageFor(evt Event) (kafka.Message, error) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	value, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Key:   []byte(evt.Username),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(evt.Type)},
		},
		Time: evt.Timestamp,
	}, nil
}
