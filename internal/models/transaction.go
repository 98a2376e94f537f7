package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction type constants
const (
	TransactionTypeBuy  = "buy"
	TransactionTypeSell = "sell"
)

// Transaction represents a single buy or sell in the simulated portfolio.
// Records are append-only: once written they are never mutated, only
// replayed by the ledger.
type Transaction struct {
	ID         int             `json:"id"`
	Symbol     string          `json:"symbol"`
	Type       string          `json:"type"`
	Shares     decimal.Decimal `json:"shares"`
	Price      decimal.Decimal `json:"price"`
	Total      decimal.Decimal `json:"total"`
	ExecutedAt time.Time       `json:"executed_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TransactionEvent represents a Kafka event for portfolio changes
type TransactionEvent struct {
	EventType   string       `json:"event_type"`
	Transaction *Transaction `json:"transaction,omitempty"`
	Symbol      string       `json:"symbol"`
	Timestamp   time.Time    `json:"timestamp"`
}
