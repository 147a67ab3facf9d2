// Package kafka implements a Kafka publisher on top of segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/JakeFAU/aqsharvest/internal/publisher"
)

// Config selects the brokers and default topic.
type Config struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces JSON messages to a Kafka topic.
type Publisher struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// New creates a Kafka producer for the configured topic.
func New(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, topic: cfg.Topic, now: time.Now}, nil
}

// Publish serializes payload and writes one message. An empty topic falls
// back to the configured default. Kafka has no broker message ID; the
// returned ID is "<topic>@<unix nanos>".
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p == nil || p.writer == nil {
		return "", fmt.Errorf("kafka writer is not configured")
	}
	if topic == "" {
		topic = p.topic
	}
	msg, err := serializeToMessage(topic, payload, p.now())
	if err != nil {
		return "", err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("write kafka message: %w", err)
	}
	return topic + "@" + strconv.FormatInt(msg.Time.UnixNano(), 10), nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

// serializeToMessage marshals payload into a Kafka message.
func serializeToMessage(topic string, payload any, at time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize payload: %w", err)
	}
	msg := kafkago.Message{Topic: topic, Value: data, Time: at}
	if k, ok := payload.(publisher.Keyed); ok {
		msg.Key = []byte(k.MessageKey())
	}
	if a, ok := payload.(publisher.Attributed); ok {
		attrs := a.MessageAttributes()
		keys := make([]string, 0, len(attrs))
		for k := range attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg.Headers = append(msg.Headers, kafkago.Header{Key: k, Value: []byte(attrs[k])})
		}
	}
	return msg, nil
}
