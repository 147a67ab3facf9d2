// Package publisher defines the notification surface used to announce
// written CSV files to downstream consumers.
package publisher

import "context"

// Publisher sends a payload to a topic and returns the broker message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Keyed payloads supply a partition or ordering key.
type Keyed interface {
	MessageKey() string
}

// Attributed payloads supply string attributes (Pub/Sub attributes, Kafka headers).
type Attributed interface {
	MessageAttributes() map[string]string
}

// Backend names accepted by configuration.
const (
	BackendNone   = "none"
	BackendPubSub = "pubsub"
	BackendKafka  = "kafka"
	BackendMemory = "memory"
)
