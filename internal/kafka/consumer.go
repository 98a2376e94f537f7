package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/signalist/portfolio-service/internal/models"
	"github.com/signalist/portfolio-service/internal/pricecache"
)

// PriceRepository defines the price data database operations the consumer needs
type PriceRepository interface {
	UpsertDailyClose(p *models.PriceDataDaily) error
}

// Consumer ingests price events from the market data feed. Each tick
// refreshes the live snapshot cache and upserts the daily close the
// forecast engine reads its history from.
type Consumer struct {
	reader      *kafka.Reader
	repo        PriceRepository
	cache       pricecache.Store
	snapshotTTL time.Duration
	logger      zerolog.Logger
}

// NewConsumer creates a new Kafka consumer for price events
func NewConsumer(brokers []string, topic, groupID string, repo PriceRepository, cache pricecache.Store, snapshotTTL time.Duration, logger zerolog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader:      reader,
		repo:        repo,
		cache:       cache,
		snapshotTTL: snapshotTTL,
		logger:      logger.With().Str("component", "price_consumer").Logger(),
	}
}

// Start begins consuming messages from Kafka until the context is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info().Str("topic", c.reader.Config().Topic).Msg("starting price consumer")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("price consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil // Context cancelled, normal shutdown
				}
				c.logger.Error().Err(err).Msg("error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.logger.Error().Err(err).
					Int("partition", msg.Partition).
					Int64("offset", msg.Offset).
					Msg("error processing message")
				// Continue processing other messages
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.PriceEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal price event: %w", err)
	}

	// Only process PRICE_UPDATED events
	if event.EventType != "PRICE_UPDATED" {
		c.logger.Debug().Str("event_type", event.EventType).Msg("ignoring event")
		return nil
	}

	tick := event.Data
	if tick.Symbol == "" {
		return fmt.Errorf("price event missing symbol")
	}

	price, err := decimal.NewFromString(tick.Price)
	if err != nil {
		return fmt.Errorf("invalid price %q for %s: %w", tick.Price, tick.Symbol, err)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("non-positive price %s for %s", price, tick.Symbol)
	}

	if err := c.cache.SetPrice(ctx, tick.Symbol, price, c.snapshotTTL); err != nil {
		return fmt.Errorf("failed to cache price for %s: %w", tick.Symbol, err)
	}

	daily := &models.PriceDataDaily{
		Symbol: tick.Symbol,
		Date:   tickDate(tick, event.Timestamp),
		Close:  price,
		Volume: tick.Volume,
	}
	if err := c.repo.UpsertDailyClose(daily); err != nil {
		return fmt.Errorf("failed to store daily close for %s: %w", tick.Symbol, err)
	}

	c.logger.Debug().
		Str("symbol", tick.Symbol).
		Str("price", price.String()).
		Msg("price updated")
	return nil
}

// tickDate resolves the trading day of a tick. Prefers the explicit date
// field, then the event timestamp, then the local clock.
func tickDate(tick models.PriceTick, timestamp time.Time) time.Time {
	if tick.Date != "" {
		if d, err := time.Parse("2006-01-02", tick.Date); err == nil {
			return d
		}
		if d, err := time.Parse(time.RFC3339, tick.Date); err == nil {
			return d.Truncate(24 * time.Hour)
		}
	}
	if !timestamp.IsZero() {
		return timestamp.UTC().Truncate(24 * time.Hour)
	}
	return time.Now().UTC().Truncate(24 * time.Hour)
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
