package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/signalist/portfolio-service/internal/models"
)

// Producer publishes portfolio events to Kafka
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishTransactionRecorded publishes an event for a newly recorded transaction
func (p *Producer) PublishTransactionRecorded(ctx context.Context, tx *models.Transaction) error {
	event := models.TransactionEvent{
		EventType:   "TRANSACTION_RECORDED",
		Transaction: tx,
		Symbol:      tx.Symbol,
		Timestamp:   time.Now(),
	}
	return p.publish(ctx, tx.Symbol, event)
}

// PublishPortfolioReset publishes an event when the transaction log is wiped
func (p *Producer) PublishPortfolioReset(ctx context.Context) error {
	event := models.TransactionEvent{
		EventType: "PORTFOLIO_RESET",
		Timestamp: time.Now(),
	}
	return p.publish(ctx, "portfolio", event)
}

func (p *Producer) publish(ctx context.Context, key string, event models.TransactionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
