package models

// Trend constants for forecast results
const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

// ForecastResult is the output of the forecast engine. All numeric fields
// are rounded at this boundary (two decimals, one for confidence); internal
// computation runs at full precision.
type ForecastResult struct {
	CurrentPrice   float64 `json:"current_price"`
	PredictedPrice float64 `json:"predicted_price"`
	Confidence     float64 `json:"confidence"`
	Trend          string  `json:"trend"`
	Change         float64 `json:"change"`
	ChangePercent  float64 `json:"change_percent"`
}
