package event

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shopmargin/backend/internal/domain/shared"
)

// BrokerPublisher hands outbox entries to the message broker. Delivery is
// at-least-once: a successful return means the broker acknowledged the
// message, an error leaves the entry for the next sweep.
type BrokerPublisher interface {
	Publish(ctx context.Context, entry *shared.OutboxEntry) error
	Close() error
}

// KafkaPublisher publishes outbox entries to a Kafka topic. Messages are
// keyed by merchant ID so all events for one merchant land on the same
// partition, preserving per-merchant ordering.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher for the given brokers and topic
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{
		writer: writer,
		logger: logger,
	}
}

// Publish writes one outbox entry to the topic
func (p *KafkaPublisher) Publish(ctx context.Context, entry *shared.OutboxEntry) error {
	msg := kafka.Message{
		Key:   []byte(entry.MerchantID.String()),
		Value: entry.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(entry.EventID.String())},
			{Key: "event_type", Value: []byte(entry.EventType)},
			{Key: "aggregate_type", Value: []byte(entry.AggregateType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}

	p.logger.Debug("published event to broker",
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
		zap.String("merchant_id", entry.MerchantID.String()),
	)
	return nil
}

// Close flushes and closes the underlying writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Ensure KafkaPublisher implements BrokerPublisher
var _ BrokerPublisher = (*KafkaPublisher)(nil)
