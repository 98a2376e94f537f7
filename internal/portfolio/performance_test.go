package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalist/portfolio-service/internal/models"
)

func valuations(values ...float64) []models.ValuationPoint {
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	points := make([]models.ValuationPoint, len(values))
	for i, v := range values {
		points[i] = models.ValuationPoint{Date: start.AddDate(0, 0, i), Value: decimal.NewFromFloat(v)}
	}
	return points
}

func TestAnalyze(t *testing.T) {
	t.Run("monotonic series has zero drawdown", func(t *testing.T) {
		perf := Analyze(valuations(100, 110, 120, 130))
		assert.Zero(t, perf.MaxDrawdown)
		for _, dd := range perf.Drawdowns {
			assert.Zero(t, dd)
		}
	})

	t.Run("peak-to-trough drawdown", func(t *testing.T) {
		// Peak 120 to trough 90 is a 25% decline.
		perf := Analyze(valuations(100, 120, 90, 110))
		assert.InDelta(t, 25.0, perf.MaxDrawdown, 1e-9)

		require.Len(t, perf.Drawdowns, 4)
		assert.InDelta(t, 0.0, perf.Drawdowns[0], 1e-9)
		assert.InDelta(t, 0.0, perf.Drawdowns[1], 1e-9)
		assert.InDelta(t, -25.0, perf.Drawdowns[2], 1e-9)
		assert.InDelta(t, -100.0*(120-110)/120, perf.Drawdowns[3], 1e-9)
	})

	t.Run("return index starts at exactly one hundred", func(t *testing.T) {
		perf := Analyze(valuations(12345.67, 13000, 11000))
		require.NotEmpty(t, perf.ReturnIndex)
		assert.Equal(t, 100.0, perf.ReturnIndex[0])
	})

	t.Run("return index scales relative to the start", func(t *testing.T) {
		perf := Analyze(valuations(100, 150, 50))
		require.Len(t, perf.ReturnIndex, 3)
		assert.InDelta(t, 150.0, perf.ReturnIndex[1], 1e-9)
		assert.InDelta(t, 50.0, perf.ReturnIndex[2], 1e-9)
	})

	t.Run("non-positive start yields no return index", func(t *testing.T) {
		perf := Analyze(valuations(0, 100, 200))
		assert.Empty(t, perf.ReturnIndex)
		assert.Nil(t, perf.PeriodReturn)
	})

	t.Run("period return over the series", func(t *testing.T) {
		perf := Analyze(valuations(100, 90, 130))
		require.NotNil(t, perf.PeriodReturn)
		assert.InDelta(t, 30.0, *perf.PeriodReturn, 1e-9)
	})

	t.Run("period return is nil below two points", func(t *testing.T) {
		assert.Nil(t, Analyze(valuations(100)).PeriodReturn)
		assert.Nil(t, Analyze(nil).PeriodReturn)
	})

	t.Run("pure function of its input", func(t *testing.T) {
		series := valuations(100, 120, 90, 110)
		assert.Equal(t, Analyze(series), Analyze(series))
	})
}

func TestRange(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("parse falls back to ALL", func(t *testing.T) {
		assert.Equal(t, Range1M, ParseRange("1M"))
		assert.Equal(t, RangeYTD, ParseRange("YTD"))
		assert.Equal(t, RangeAll, ParseRange(""))
		assert.Equal(t, RangeAll, ParseRange("2W"))
	})

	t.Run("window starts", func(t *testing.T) {
		start, ok := Range1M.Start(now)
		require.True(t, ok)
		assert.Equal(t, time.Date(2025, 5, 15, 12, 0, 0, 0, time.UTC), start)

		start, ok = RangeYTD.Start(now)
		require.True(t, ok)
		assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), start)

		_, ok = RangeAll.Start(now)
		assert.False(t, ok)
	})

	t.Run("filter keeps points on or after the start", func(t *testing.T) {
		points := []models.ValuationPoint{
			{Date: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), Value: decimal.NewFromInt(100)},
			{Date: time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC), Value: decimal.NewFromInt(110)},
			{Date: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), Value: decimal.NewFromInt(120)},
		}

		filtered := FilterRange(points, Range1M, now)
		require.Len(t, filtered, 2)
		assert.Equal(t, points[1].Date, filtered[0].Date)

		assert.Len(t, FilterRange(points, RangeAll, now), 3)
		assert.Len(t, FilterRange(points, RangeYTD, now), 3)
	})

	t.Run("statistics recompute over the filtered slice", func(t *testing.T) {
		points := valuations(100, 200, 150, 180)
		// Window that drops the first two points: drawdown and return are
		// measured from 150, not from the all-time peak of 200.
		windowed := points[2:]
		perf := Analyze(windowed)
		require.NotNil(t, perf.PeriodReturn)
		assert.InDelta(t, 20.0, *perf.PeriodReturn, 1e-9)
		assert.Zero(t, perf.MaxDrawdown)
	})
}
