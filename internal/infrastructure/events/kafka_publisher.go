package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Envelope wraps every published event
type Envelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Producer     string          `json:"producer"`
	Payload      json.RawMessage `json:"payload"`
}

// Named is implemented by events that carry their own type name
type Named interface {
	EventName() string
}

// MessageWriter is the subset of *kafka.Writer the publisher uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes ledger events to a Kafka topic, keyed so events
// of one receipt or customer stay ordered within a partition.
type KafkaPublisher struct {
	w        MessageWriter
	producer string
	log      zerolog.Logger
}

// NewKafkaWriter builds the writer used in production
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
}

// NewKafkaPublisher creates a publisher over w
func NewKafkaPublisher(w MessageWriter, producer string, log zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		w:        w,
		producer: producer,
		log:      log.With().Str("component", "kafka_publisher").Logger(),
	}
}

// Publish writes event synchronously
func (p *KafkaPublisher) Publish(ctx context.Context, key string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	env := Envelope{
		EventID:      uuid.NewString(),
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     p.producer,
		Payload:      payload,
	}
	if n, ok := event.(Named); ok {
		env.EventType = n.EventName()
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
		},
	})
	if err != nil {
		return err
	}
	p.log.Debug().Str("event_type", env.EventType).Str("key", key).Msg("event published")
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
