// Package pricecache provides a TTL store for live price snapshots.
//
// Prices arrive over Kafka and expire if the feed goes quiet, so the
// portfolio valuation falls back to average cost rather than pricing
// holdings off a stale tick. The same store backs the API rate limiter.
package pricecache

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is a TTL key/value store for price snapshots.
type Store interface {
	// GetPrice returns the cached price for a symbol. The second return
	// is false when no live price is cached (missing or expired).
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, bool, error)

	// SetPrice caches a price for a symbol with the given TTL.
	SetPrice(ctx context.Context, symbol string, price decimal.Decimal, ttl time.Duration) error

	// GetPrices returns cached prices for the given symbols. Symbols
	// without a live price are absent from the result.
	GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)

	// Incr increments a counter key, setting its TTL on first use, and
	// returns the new count. Used for rate limiting.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	Close() error
}
