package portfolio

import (
	"time"

	"github.com/signalist/portfolio-service/internal/models"
)

// Range selects a trailing date window over the valuation series.
type Range string

const (
	Range1M  Range = "1M"
	Range3M  Range = "3M"
	Range6M  Range = "6M"
	Range1Y  Range = "1Y"
	RangeYTD Range = "YTD"
	RangeAll Range = "ALL"
)

// ParseRange maps a request parameter to a Range, defaulting to ALL.
func ParseRange(s string) Range {
	switch Range(s) {
	case Range1M, Range3M, Range6M, Range1Y, RangeYTD:
		return Range(s)
	default:
		return RangeAll
	}
}

// Start returns the inclusive lower bound of the window relative to now.
// ok is false for ALL, which has no bound.
func (r Range) Start(now time.Time) (start time.Time, ok bool) {
	switch r {
	case Range1M:
		return now.AddDate(0, -1, 0), true
	case Range3M:
		return now.AddDate(0, -3, 0), true
	case Range6M:
		return now.AddDate(0, -6, 0), true
	case Range1Y:
		return now.AddDate(-1, 0, 0), true
	case RangeYTD:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), true
	default:
		return time.Time{}, false
	}
}

// FilterRange applies the window as a pure date predicate. Statistics are
// never windowed incrementally; callers recompute them over the filtered
// slice.
func FilterRange(valuations []models.ValuationPoint, r Range, now time.Time) []models.ValuationPoint {
	start, ok := r.Start(now)
	if !ok {
		return valuations
	}
	filtered := make([]models.ValuationPoint, 0, len(valuations))
	for _, v := range valuations {
		if !v.Date.Before(start) {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

// Performance holds the statistics derived from one valuation series.
type Performance struct {
	// Drawdowns aligns with the input series: percentage below the running
	// peak, reported as a negative "underwater" value, 0 at new highs.
	Drawdowns []float64
	// MaxDrawdown is the largest peak-to-trough decline as a positive
	// percentage magnitude.
	MaxDrawdown float64
	// ReturnIndex is the base-100 growth index: value(t)/value(0)*100.
	// Empty when the series starts at or below zero.
	ReturnIndex []float64
	// PeriodReturn is (last-first)/first*100 over the series, nil when the
	// series has fewer than two points or an unusable starting value.
	PeriodReturn *float64
}

// Analyze computes drawdown, growth index, and period return over a
// valuation series. It is a pure function: same series in, same statistics
// out.
func Analyze(valuations []models.ValuationPoint) *Performance {
	perf := &Performance{}
	if len(valuations) == 0 {
		return perf
	}

	values := make([]float64, len(valuations))
	for i, v := range valuations {
		values[i] = v.Value.InexactFloat64()
	}

	peak := values[0]
	perf.Drawdowns = make([]float64, len(values))
	for i, v := range values {
		if v > peak {
			peak = v
		}
		dd := 0.0
		if peak > 0 {
			dd = (peak - v) / peak * 100
		}
		perf.Drawdowns[i] = -dd
		if dd > perf.MaxDrawdown {
			perf.MaxDrawdown = dd
		}
	}

	if start := values[0]; start > 0 {
		perf.ReturnIndex = make([]float64, len(values))
		for i, v := range values {
			perf.ReturnIndex[i] = v / start * 100
		}
	}

	if len(values) >= 2 && values[0] > 0 {
		ret := (values[len(values)-1] - values[0]) / values[0] * 100
		perf.PeriodReturn = &ret
	}

	return perf
}
