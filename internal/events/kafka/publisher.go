package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/alfanzaky/txhook/internal/domain"
)

// messageWriter is the subset of *kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer messageWriter
}

var _ domain.EventPublisher = (*Publisher)(nil)

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

// PublishProcessed keys messages by transaction id so a transaction's events stay on one partition
func (p *Publisher) PublishProcessed(ctx context.Context, event *domain.TransactionProcessedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return p.writer.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(event.TransactionID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.Type)},
			},
		},
	)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher discards events when no brokers are configured
type NoopPublisher struct{}

var _ domain.EventPublisher = NoopPublisher{}

func (NoopPublisher) PublishProcessed(context.Context, *domain.TransactionProcessedEvent) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }
