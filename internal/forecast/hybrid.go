package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/signalist/portfolio-service/internal/models"
)

// DefaultHybridTimeout bounds the enriched regression. The 12 second budget
// at the HTTP boundary is independent of this one.
const DefaultHybridTimeout = 8 * time.Second

// Training and blend constants for the enriched path. The volatility penalty
// is deliberately scaled differently from the fast path's: the hybrid
// estimate is already penalized through its MSE term.
const (
	hybridIterations   = 1500
	hybridLearningRate = 0.05
	hybridVolWindow    = 10

	hybridBaseWeight    = 0.6
	hybridMSEWeight     = 0.4
	hybridMaxVolPenalty = 20
	hybridVolWeight     = 10
	hybridMinConfidence = 40
	hybridMaxConfidence = 95
)

// Hybrid composes the fast estimator with a slower multi-feature regression.
// The enriched path runs under Timeout; on expiry, internal error, or panic
// the fast result is returned unchanged. The only error surfaced to callers
// is ErrInsufficientData from the shared precondition.
type Hybrid struct {
	Timeout time.Duration
}

// NewHybrid returns a Hybrid with the default deadline.
func NewHybrid() *Hybrid {
	return &Hybrid{Timeout: DefaultHybridTimeout}
}

// Predict returns the enriched estimate when it beats the deadline, the fast
// estimate otherwise. A non-positive Timeout counts as an already-expired
// deadline and short-circuits to the fast path.
func (h *Hybrid) Predict(ctx context.Context, points []models.PricePoint) (*models.ForecastResult, error) {
	fast, err := Fast(points)
	if err != nil {
		return nil, err
	}

	if h.Timeout <= 0 {
		return fast, nil
	}

	enriched, err := RunWithTimeout(ctx, h.Timeout, func() (*models.ForecastResult, error) {
		return enhance(points)
	})
	if err != nil {
		return fast, nil
	}
	return enriched, nil
}

// enhance fits a linear model over engineered features (normalized time
// index, short and long moving averages, rolling volatility) by batch
// gradient descent, then blends in-sample R² and MSE into the confidence.
func enhance(points []models.PricePoint) (*models.ForecastResult, error) {
	prices := make([]float64, len(points))
	for i, p := range points {
		prices[i] = p.Price
	}
	currentPrice := prices[len(prices)-1]
	if currentPrice == 0 {
		return nil, fmt.Errorf("current price is zero")
	}

	features, targets := buildFeatures(prices)
	model := fitLinear(features, targets)

	predictions := make([]float64, len(features))
	for i, row := range features {
		predictions[i] = model.predict(row)
	}
	nextPrice := model.predict(nextDayFeatures(prices))

	r2 := r2Score(targets, predictions)
	mse := meanSquaredError(targets, predictions)

	change := nextPrice - currentPrice
	changePercent := (change / currentPrice) * 100

	baseConfidence := clamp(r2*100, 0, 100)
	mseConfidence := math.Max(0, 100-(mse/currentPrice)*100)
	vol := volatility(prices)
	volatilityPenalty := min2(hybridMaxVolPenalty, vol*hybridVolWeight)
	confidence := clamp(
		baseConfidence*hybridBaseWeight+mseConfidence*hybridMSEWeight-volatilityPenalty,
		hybridMinConfidence, hybridMaxConfidence,
	)

	if !finite(nextPrice, confidence, change, changePercent) {
		return nil, fmt.Errorf("non-finite enriched estimate")
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

// buildFeatures reshapes the price series into one feature row per trading
// day: [normalized index, MA5, MA20, rolling volatility].
func buildFeatures(prices []float64) ([][]float64, []float64) {
	n := len(prices)
	features := make([][]float64, n)
	targets := make([]float64, n)
	for i := 0; i < n; i++ {
		features[i] = featureRow(prices, i)
		targets[i] = prices[i]
	}
	return features, targets
}

// featureRow computes the features visible at index i (no lookahead).
func featureRow(prices []float64, i int) []float64 {
	window := prices[:i+1]
	volWindow := window
	if len(volWindow) > hybridVolWindow {
		volWindow = volWindow[len(volWindow)-hybridVolWindow:]
	}
	return []float64{
		float64(i) / float64(len(prices)-1),
		movingAverage(window, fastShortWindow),
		movingAverage(window, fastLongWindow),
		volatility(volWindow),
	}
}

// nextDayFeatures extends the series by one step: the full history is the
// visible window for the day being predicted.
func nextDayFeatures(prices []float64) []float64 {
	n := len(prices)
	volWindow := prices
	if len(volWindow) > hybridVolWindow {
		volWindow = volWindow[len(volWindow)-hybridVolWindow:]
	}
	return []float64{
		float64(n) / float64(n-1),
		movingAverage(prices, fastShortWindow),
		movingAverage(prices, fastLongWindow),
		volatility(volWindow),
	}
}

// linearModel is a standardized multi-feature linear regression. Weights are
// learned in z-score space and predictions are mapped back to price units.
type linearModel struct {
	weights []float64
	bias    float64

	featMean []float64
	featStd  []float64
	yMean    float64
	yStd     float64
}

// fitLinear trains by deterministic batch gradient descent: fixed iteration
// count, fixed learning rate, zero initialization. Output is a pure function
// of the input series.
func fitLinear(features [][]float64, targets []float64) *linearModel {
	n := len(targets)
	k := len(features[0])

	m := &linearModel{
		weights:  make([]float64, k),
		featMean: make([]float64, k),
		featStd:  make([]float64, k),
	}

	for j := 0; j < k; j++ {
		for i := 0; i < n; i++ {
			m.featMean[j] += features[i][j]
		}
		m.featMean[j] /= float64(n)
		for i := 0; i < n; i++ {
			d := features[i][j] - m.featMean[j]
			m.featStd[j] += d * d
		}
		m.featStd[j] = math.Sqrt(m.featStd[j] / float64(n))
		if m.featStd[j] == 0 {
			m.featStd[j] = 1
		}
	}
	for i := 0; i < n; i++ {
		m.yMean += targets[i]
	}
	m.yMean /= float64(n)
	for i := 0; i < n; i++ {
		d := targets[i] - m.yMean
		m.yStd += d * d
	}
	m.yStd = math.Sqrt(m.yStd / float64(n))
	if m.yStd == 0 {
		m.yStd = 1
	}

	x := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			x[i][j] = (features[i][j] - m.featMean[j]) / m.featStd[j]
		}
		y[i] = (targets[i] - m.yMean) / m.yStd
	}

	gradW := make([]float64, k)
	for iter := 0; iter < hybridIterations; iter++ {
		for j := range gradW {
			gradW[j] = 0
		}
		gradB := 0.0
		for i := 0; i < n; i++ {
			pred := m.bias
			for j := 0; j < k; j++ {
				pred += m.weights[j] * x[i][j]
			}
			resid := pred - y[i]
			for j := 0; j < k; j++ {
				gradW[j] += resid * x[i][j]
			}
			gradB += resid
		}
		scale := hybridLearningRate / float64(n)
		for j := 0; j < k; j++ {
			m.weights[j] -= scale * gradW[j]
		}
		m.bias -= scale * gradB
	}

	return m
}

func (m *linearModel) predict(row []float64) float64 {
	out := m.bias
	for j, w := range m.weights {
		out += w * (row[j] - m.featMean[j]) / m.featStd[j]
	}
	return out*m.yStd + m.yMean
}
