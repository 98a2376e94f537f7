package forecast

import (
	"fmt"

	"github.com/signalist/portfolio-service/internal/models"
)

// Calibration constants for the fast path. These are load-bearing heuristic
// coefficients, not tunable parameters; changing them changes the published
// confidence contract.
const (
	fastShortWindow      = 5
	fastLongWindow       = 20
	fastRegressionWindow = 10
	fastStableBand       = 0.005

	fastTrendWeight    = 1000
	fastMAWeight       = 100
	fastVolWeight      = 500
	fastMaxVolPenalty  = 30
	fastMinConfidence  = 45
	fastMaxConfidence  = 90
	fastBaseConfidence = 90
)

// Fast computes a next-day price estimate from a closed-form linear
// regression over the last ten closes, blended with moving-average
// consistency and penalized by realized volatility. It runs in O(n) with no
// suspension and is the availability floor for the hybrid path.
//
// The input must be ascending by date; fewer than MinPoints points returns
// ErrInsufficientData.
func Fast(points []models.PricePoint) (*models.ForecastResult, error) {
	if len(points) < MinPoints {
		return nil, fmt.Errorf("%w: got %d points, need %d", ErrInsufficientData, len(points), MinPoints)
	}

	prices := make([]float64, len(points))
	for i, p := range points {
		prices[i] = p.Price
	}
	currentPrice := prices[len(prices)-1]

	shortMA := movingAverage(prices, fastShortWindow)
	longMA := movingAverage(prices, fastLongWindow)

	recent := prices[len(prices)-fastRegressionWindow:]
	slope, intercept := linearRegression(recent)
	nextPrice := slope*float64(len(recent)) + intercept

	vol := volatility(prices)

	change := nextPrice - currentPrice
	changePercent := 0.0
	maConsistency := 0.0
	if currentPrice != 0 {
		changePercent = (change / currentPrice) * 100
		maConsistency = abs(shortMA-longMA) / currentPrice
	}

	trendStrength := abs(slope)
	baseConfidence := min2(fastBaseConfidence, trendStrength*fastTrendWeight+maConsistency*fastMAWeight)
	volatilityPenalty := min2(fastMaxVolPenalty, vol*fastVolWeight)
	confidence := clamp(baseConfidence-volatilityPenalty, fastMinConfidence, fastMaxConfidence)

	if !finite(currentPrice, nextPrice, confidence, change, changePercent) {
		return nil, fmt.Errorf("non-finite estimate for series of %d points", len(points))
	}

	return &models.ForecastResult{
		CurrentPrice:   round2(currentPrice),
		PredictedPrice: round2(nextPrice),
		Confidence:     round1(confidence),
		Trend:          trendLabel(change, currentPrice),
		Change:         round2(change),
		ChangePercent:  round2(changePercent),
	}, nil
}

// trendLabel applies the 0.5% stable band: moves smaller than half a percent
// of the current price are reported as stable rather than directional noise.
func trendLabel(change, currentPrice float64) string {
	if abs(change) < currentPrice*fastStableBand {
		return models.TrendStable
	}
	if change > 0 {
		return models.TrendUp
	}
	return models.TrendDown
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
