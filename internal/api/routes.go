package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes. A nil limiter disables rate
// limiting (tests, single-user deployments).
func SetupRoutes(handler *Handler, limiter *RateLimiter) *mux.Router {
	r := mux.NewRouter()

	// Health check stays outside the rate limit
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	if limiter != nil {
		api.Use(limiter.Middleware)
	}

	// Forecast routes
	api.HandleFunc("/forecast/{symbol}", handler.GetForecast).Methods("GET")

	// Portfolio routes
	api.HandleFunc("/portfolio/performance", handler.GetPerformance).Methods("GET")
	api.HandleFunc("/portfolio/transactions", handler.CreateTransaction).Methods("POST")
	api.HandleFunc("/portfolio/transactions", handler.GetTransactions).Methods("GET")
	api.HandleFunc("/portfolio/reset", handler.ResetPortfolio).Methods("POST")
	api.HandleFunc("/portfolio/charts", handler.GetCharts).Methods("GET")

	// Watchlist routes
	api.HandleFunc("/watchlist", handler.GetWatchlist).Methods("GET")
	api.HandleFunc("/watchlist", handler.AddToWatchlist).Methods("POST")
	api.HandleFunc("/watchlist/{symbol}", handler.RemoveFromWatchlist).Methods("DELETE")

	return r
}
