package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the derived per-symbol holding state produced by replaying the
// transaction log. It is ephemeral: rebuilt from scratch on every replay,
// never persisted. A symbol with zero shares held has no entry at all.
type Position struct {
	Symbol      string          `json:"symbol"`
	Shares      decimal.Decimal `json:"shares"`
	AverageCost decimal.Decimal `json:"average_cost"`
}

// ValuationPoint is the portfolio's total value (cash + market value of all
// holdings) immediately after one transaction event. One point per event,
// not per calendar day; gaps between events are not interpolated.
type ValuationPoint struct {
	Date  time.Time       `json:"date"`
	Value decimal.Decimal `json:"value"`
}
