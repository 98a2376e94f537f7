package portfolio

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/signalist/portfolio-service/internal/models"
)

// OversellPolicy controls what happens when a sell exceeds the held
// quantity. The behavior is configuration, not a guess: callers pick reject,
// clamp, or short selling explicitly.
type OversellPolicy string

const (
	// OversellReject fails the replay with an *OversellError.
	OversellReject OversellPolicy = "reject"
	// OversellClamp trims the sell to the held quantity. Cash and realized
	// P&L are computed on the trimmed quantity, so no money is invented.
	OversellClamp OversellPolicy = "clamp"
	// OversellAllowShort lets share counts go negative, opening a short
	// position at the trade price.
	OversellAllowShort OversellPolicy = "allow_short"
)

// DefaultOversellPolicy is clamp: the closest safe analog of silently
// zeroing the position without crediting cash for shares never held.
const DefaultOversellPolicy = OversellClamp

// OversellError reports a sell larger than the open position under the
// reject policy.
type OversellError struct {
	Symbol    string
	Requested decimal.Decimal
	Held      decimal.Decimal
}

func (e *OversellError) Error() string {
	return fmt.Sprintf("oversell %s: requested %s shares, held %s", e.Symbol, e.Requested, e.Held)
}

// Options configures a replay.
type Options struct {
	InitialBalance decimal.Decimal
	Oversell       OversellPolicy
}

// Snapshot is the full state reconstructed from one replay of the
// transaction log. It is derived data: recomputed from scratch on every
// call, never updated incrementally, so two replays of the same log are
// always identical.
type Snapshot struct {
	Positions    map[string]models.Position
	CashBalance  decimal.Decimal
	RealizedPnL  decimal.Decimal
	Valuations   []models.ValuationPoint
	ClampedSells int
}

// Replay sorts the transaction log by execution time and replays it into
// per-symbol average-cost positions, a running realized P&L, a cash balance,
// and one valuation point per event. Sorting is the ledger's responsibility;
// callers may pass transactions in any order.
//
// Valuations mark every historical point with *today's* prices (the live
// snapshot, falling back to average cost), not the price at the time of the
// event. The series answers "what would this point-in-time composition be
// worth now", a deliberate simplification carried over from the dashboard
// this engine reconstructs.
func Replay(transactions []models.Transaction, prices map[string]decimal.Decimal, opts Options) (*Snapshot, error) {
	if opts.Oversell == "" {
		opts.Oversell = DefaultOversellPolicy
	}

	sorted := make([]models.Transaction, len(transactions))
	copy(sorted, transactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ExecutedAt.Equal(sorted[j].ExecutedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].ExecutedAt.Before(sorted[j].ExecutedAt)
	})

	snap := &Snapshot{
		Positions:   make(map[string]models.Position),
		CashBalance: opts.InitialBalance,
		RealizedPnL: decimal.Zero,
	}

	for _, tx := range sorted {
		switch tx.Type {
		case models.TransactionTypeBuy:
			snap.applyBuy(tx)
		case models.TransactionTypeSell:
			if err := snap.applySell(tx, opts.Oversell); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown transaction type %q for %s", tx.Type, tx.Symbol)
		}

		snap.Valuations = append(snap.Valuations, models.ValuationPoint{
			Date:  tx.ExecutedAt,
			Value: snap.CashBalance.Add(snap.marketValue(prices)),
		})
	}

	return snap, nil
}

func (s *Snapshot) applyBuy(tx models.Transaction) {
	s.CashBalance = s.CashBalance.Sub(tx.Total)

	pos, ok := s.Positions[tx.Symbol]
	if !ok {
		s.Positions[tx.Symbol] = models.Position{Symbol: tx.Symbol, Shares: tx.Shares, AverageCost: tx.Price}
		return
	}

	// Covering a short: realize against the short basis first.
	if pos.Shares.IsNegative() {
		covered := decimal.Min(tx.Shares, pos.Shares.Neg())
		s.RealizedPnL = s.RealizedPnL.Add(covered.Mul(pos.AverageCost.Sub(tx.Price)))

		newShares := pos.Shares.Add(tx.Shares)
		switch {
		case newShares.IsZero():
			delete(s.Positions, tx.Symbol)
		case newShares.IsPositive():
			// Crossed zero: the leftover long lot costs the trade price.
			s.Positions[tx.Symbol] = models.Position{Symbol: tx.Symbol, Shares: newShares, AverageCost: tx.Price}
		default:
			pos.Shares = newShares
			s.Positions[tx.Symbol] = pos
		}
		return
	}

	newShares := pos.Shares.Add(tx.Shares)
	totalCost := pos.AverageCost.Mul(pos.Shares).Add(tx.Total)
	pos.Shares = newShares
	pos.AverageCost = totalCost.Div(newShares)
	s.Positions[tx.Symbol] = pos
}

func (s *Snapshot) applySell(tx models.Transaction, policy OversellPolicy) error {
	pos, ok := s.Positions[tx.Symbol]
	held := decimal.Zero
	if ok {
		held = pos.Shares
	}

	switch policy {
	case OversellReject:
		if tx.Shares.GreaterThan(held) {
			return &OversellError{Symbol: tx.Symbol, Requested: tx.Shares, Held: held}
		}
		s.closeLong(tx, pos, tx.Shares)

	case OversellClamp:
		effective := decimal.Min(tx.Shares, decimal.Max(held, decimal.Zero))
		if effective.LessThan(tx.Shares) {
			s.ClampedSells++
		}
		if effective.IsZero() {
			return nil
		}
		s.closeLong(tx, pos, effective)

	case OversellAllowShort:
		closed := decimal.Min(tx.Shares, decimal.Max(held, decimal.Zero))
		shorted := tx.Shares.Sub(closed)

		s.CashBalance = s.CashBalance.Add(tx.Price.Mul(tx.Shares))
		if closed.IsPositive() {
			s.RealizedPnL = s.RealizedPnL.Add(closed.Mul(tx.Price.Sub(pos.AverageCost)))
		}

		newShares := held.Sub(tx.Shares)
		switch {
		case newShares.IsZero():
			delete(s.Positions, tx.Symbol)
		case newShares.IsNegative():
			basis := tx.Price
			if held.IsNegative() {
				// Extending a short: weight the basis by absolute size.
				existing := held.Neg()
				basis = pos.AverageCost.Mul(existing).Add(tx.Price.Mul(shorted)).Div(existing.Add(shorted))
			}
			s.Positions[tx.Symbol] = models.Position{Symbol: tx.Symbol, Shares: newShares, AverageCost: basis}
		default:
			pos.Shares = newShares
			s.Positions[tx.Symbol] = pos
		}

	default:
		return fmt.Errorf("unknown oversell policy %q", policy)
	}

	return nil
}

// closeLong sells effective shares out of an open long position: proceeds to
// cash, P&L realized against the average cost, entry dropped at zero shares.
func (s *Snapshot) closeLong(tx models.Transaction, pos models.Position, effective decimal.Decimal) {
	proceeds := tx.Price.Mul(effective)
	s.CashBalance = s.CashBalance.Add(proceeds)
	s.RealizedPnL = s.RealizedPnL.Add(proceeds.Sub(pos.AverageCost.Mul(effective)))

	pos.Shares = pos.Shares.Sub(effective)
	if pos.Shares.IsZero() {
		delete(s.Positions, tx.Symbol)
		return
	}
	s.Positions[tx.Symbol] = pos
}

// marketValue prices every open position with the live snapshot, falling
// back to average cost for symbols the snapshot does not cover.
func (s *Snapshot) marketValue(prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for symbol, pos := range s.Positions {
		price, ok := prices[symbol]
		if !ok {
			price = pos.AverageCost
		}
		total = total.Add(price.Mul(pos.Shares))
	}
	return total
}

// UnrealizedPnL is the paper profit of the open positions against the live
// snapshot, with the same average-cost fallback as valuations.
func (s *Snapshot) UnrealizedPnL(prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for symbol, pos := range s.Positions {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		total = total.Add(price.Sub(pos.AverageCost).Mul(pos.Shares))
	}
	return total
}
