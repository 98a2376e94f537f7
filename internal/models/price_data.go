package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceDataDaily represents one daily close for a symbol in the price store
type PriceDataDaily struct {
	ID        int             `json:"id"`
	Symbol    string          `json:"symbol"`
	Date      time.Time       `json:"date"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
	CreatedAt time.Time       `json:"created_at"`
}

// PricePoint is a single point of a close-price series as consumed by the
// forecast engine. The series is caller-supplied and must be ascending by
// date, one point per trading day.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// PriceEvent represents a Kafka event from the market data feed
type PriceEvent struct {
	EventType string    `json:"event_type"`
	Source    string    `json:"source"`
	Data      PriceTick `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceTick carries the payload of a PRICE_UPDATED event
type PriceTick struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Volume int64  `json:"volume,omitempty"`
	Date   string `json:"date,omitempty"`
}
