package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/signalist/portfolio-service/internal/forecast"
	"github.com/signalist/portfolio-service/internal/models"
	"github.com/signalist/portfolio-service/internal/portfolio"
	"github.com/signalist/portfolio-service/internal/pricecache"
)

// forecastHistoryLimit is how many daily closes feed one forecast. The
// estimators only need the tail of the series; a year of closes is plenty.
const forecastHistoryLimit = 250

// Store defines the database operations the handlers need
type Store interface {
	CreateTransaction(t *models.Transaction) error
	GetAllTransactions() ([]models.Transaction, error)
	DeleteAllTransactions() error

	GetRecentCloses(symbol string, limit int) ([]models.PriceDataDaily, error)
	GetClosesSince(symbol string, since time.Time) ([]models.PriceDataDaily, error)
	GetFirstBuyDate(symbol string) (time.Time, error)

	AddToWatchlist(w *models.WatchlistEntry) error
	GetWatchlist() ([]models.WatchlistEntry, error)
	RemoveFromWatchlist(symbol string) error
}

// EventPublisher defines the Kafka operations the handlers need
type EventPublisher interface {
	PublishTransactionRecorded(ctx context.Context, tx *models.Transaction) error
	PublishPortfolioReset(ctx context.Context) error
}

// PortfolioSettings carries the replay configuration into the handlers
type PortfolioSettings struct {
	InitialBalance decimal.Decimal
	Oversell       portfolio.OversellPolicy
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store     Store
	producer  EventPublisher
	cache     pricecache.Store
	estimator *forecast.Hybrid

	// requestTimeout bounds the whole forecast request. Independent of the
	// estimator's own deadline, which only bounds the enriched model.
	requestTimeout time.Duration
	settings       PortfolioSettings
	logger         zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(store Store, producer EventPublisher, cache pricecache.Store, estimator *forecast.Hybrid, requestTimeout time.Duration, settings PortfolioSettings, logger zerolog.Logger) *Handler {
	return &Handler{
		store:          store,
		producer:       producer,
		cache:          cache,
		estimator:      estimator,
		requestTimeout: requestTimeout,
		settings:       settings,
		logger:         logger.With().Str("component", "api").Logger(),
	}
}

// GetForecast handles GET /api/v1/forecast/{symbol}
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	closes, err := h.store.GetRecentCloses(symbol, forecastHistoryLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	points := make([]models.PricePoint, len(closes))
	for i, c := range closes {
		points[i] = models.PricePoint{Date: c.Date, Price: c.Close.InexactFloat64()}
	}

	result, err := forecast.RunWithTimeout(r.Context(), h.requestTimeout, func() (*models.ForecastResult, error) {
		return h.estimator.Predict(r.Context(), points)
	})
	if err != nil {
		switch {
		case errors.Is(err, forecast.ErrDeadlineExceeded):
			http.Error(w, "forecast timed out", http.StatusGatewayTimeout)
		case errors.Is(err, forecast.ErrInsufficientData):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":   symbol,
		"forecast": result,
	})
}

// performanceResponse is the payload of GET /api/v1/portfolio/performance
type performanceResponse struct {
	Range         string                  `json:"range"`
	CashBalance   decimal.Decimal         `json:"cash_balance"`
	RealizedPnL   decimal.Decimal         `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal         `json:"unrealized_pnl"`
	Holdings      []models.Position       `json:"holdings"`
	Valuations    []models.ValuationPoint `json:"valuations"`
	Drawdowns     []float64               `json:"drawdowns"`
	MaxDrawdown   float64                 `json:"max_drawdown"`
	ReturnIndex   []float64               `json:"return_index"`
	PeriodReturn  *float64                `json:"period_return"`
	ClampedSells  int                     `json:"clamped_sells,omitempty"`
}

// GetPerformance handles GET /api/v1/portfolio/performance
func (h *Handler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	snap, err := h.replayLog(r.Context())
	if err != nil {
		var oversell *portfolio.OversellError
		if errors.As(err, &oversell) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rng := portfolio.ParseRange(r.URL.Query().Get("range"))
	windowed := portfolio.FilterRange(snap.Valuations, rng, time.Now())
	perf := portfolio.Analyze(windowed)

	prices, err := h.livePrices(r.Context(), snap)
	if err != nil {
		h.logger.Warn().Err(err).Msg("live prices unavailable, unrealized pnl omitted")
		prices = map[string]decimal.Decimal{}
	}

	holdings := make([]models.Position, 0, len(snap.Positions))
	for _, pos := range snap.Positions {
		holdings = append(holdings, pos)
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Symbol < holdings[j].Symbol })

	respondJSON(w, http.StatusOK, performanceResponse{
		Range:         string(rng),
		CashBalance:   snap.CashBalance,
		RealizedPnL:   snap.RealizedPnL,
		UnrealizedPnL: snap.UnrealizedPnL(prices),
		Holdings:      holdings,
		Valuations:    windowed,
		Drawdowns:     perf.Drawdowns,
		MaxDrawdown:   perf.MaxDrawdown,
		ReturnIndex:   perf.ReturnIndex,
		PeriodReturn:  perf.PeriodReturn,
		ClampedSells:  snap.ClampedSells,
	})
}

// CreateTransaction handles POST /api/v1/portfolio/transactions
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol     string          `json:"symbol"`
		Type       string          `json:"type"`
		Shares     decimal.Decimal `json:"shares"`
		Price      decimal.Decimal `json:"price"`
		ExecutedAt *time.Time      `json:"executed_at"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}
	if req.Type != models.TransactionTypeBuy && req.Type != models.TransactionTypeSell {
		http.Error(w, "type must be buy or sell", http.StatusBadRequest)
		return
	}
	if !req.Shares.IsPositive() {
		http.Error(w, "shares must be positive", http.StatusBadRequest)
		return
	}
	if !req.Price.IsPositive() {
		http.Error(w, "price must be positive", http.StatusBadRequest)
		return
	}

	tx := &models.Transaction{
		Symbol: req.Symbol,
		Type:   req.Type,
		Shares: req.Shares,
		Price:  req.Price,
		Total:  req.Shares.Mul(req.Price),
	}
	if req.ExecutedAt != nil {
		tx.ExecutedAt = *req.ExecutedAt
	}

	// Under the reject policy an oversell must fail before it is persisted,
	// so the log is replayed with the candidate appended.
	if tx.Type == models.TransactionTypeSell && h.settings.Oversell == portfolio.OversellReject {
		transactions, err := h.store.GetAllTransactions()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		candidate := *tx
		if candidate.ExecutedAt.IsZero() {
			candidate.ExecutedAt = time.Now()
		}
		_, err = portfolio.Replay(append(transactions, candidate), nil, portfolio.Options{
			InitialBalance: h.settings.InitialBalance,
			Oversell:       portfolio.OversellReject,
		})
		if err != nil {
			var oversell *portfolio.OversellError
			if errors.As(err, &oversell) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if err := h.store.CreateTransaction(tx); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if h.producer != nil {
		if err := h.producer.PublishTransactionRecorded(r.Context(), tx); err != nil {
			h.logger.Error().Err(err).Int("transaction_id", tx.ID).Msg("failed to publish transaction event")
		}
	}

	respondJSON(w, http.StatusCreated, tx)
}

// GetTransactions handles GET /api/v1/portfolio/transactions
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.store.GetAllTransactions()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if transactions == nil {
		transactions = []models.Transaction{}
	}
	respondJSON(w, http.StatusOK, transactions)
}

// ResetPortfolio handles POST /api/v1/portfolio/reset
func (h *Handler) ResetPortfolio(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAllTransactions(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if h.producer != nil {
		if err := h.producer.PublishPortfolioReset(r.Context()); err != nil {
			h.logger.Error().Err(err).Msg("failed to publish reset event")
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetCharts handles GET /api/v1/portfolio/charts. Each open holding's price
// history since its first buy is fetched concurrently; a symbol whose fetch
// fails is omitted rather than failing the whole response.
func (h *Handler) GetCharts(w http.ResponseWriter, r *http.Request) {
	snap, err := h.replayLog(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		charts = make(map[string][]models.PricePoint)
	)

	for symbol := range snap.Positions {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()

			firstBuy, err := h.store.GetFirstBuyDate(symbol)
			if err != nil {
				h.logger.Warn().Err(err).Str("symbol", symbol).Msg("chart omitted")
				return
			}
			closes, err := h.store.GetClosesSince(symbol, firstBuy)
			if err != nil {
				h.logger.Warn().Err(err).Str("symbol", symbol).Msg("chart omitted")
				return
			}

			points := make([]models.PricePoint, len(closes))
			for i, c := range closes {
				points[i] = models.PricePoint{Date: c.Date, Price: c.Close.InexactFloat64()}
			}

			mu.Lock()
			charts[symbol] = points
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	respondJSON(w, http.StatusOK, map[string]interface{}{"charts": charts})
}

// GetWatchlist handles GET /api/v1/watchlist
func (h *Handler) GetWatchlist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.GetWatchlist()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []models.WatchlistEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

// AddToWatchlist handles POST /api/v1/watchlist
func (h *Handler) AddToWatchlist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol  string `json:"symbol"`
		Company string `json:"company"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}

	entry := &models.WatchlistEntry{Symbol: req.Symbol, Company: req.Company}
	if err := h.store.AddToWatchlist(entry); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusCreated, entry)
}

// RemoveFromWatchlist handles DELETE /api/v1/watchlist/{symbol}
func (h *Handler) RemoveFromWatchlist(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	if err := h.store.RemoveFromWatchlist(symbol); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// replayLog loads the transaction log and replays it against the live price
// snapshot.
func (h *Handler) replayLog(ctx context.Context) (*portfolio.Snapshot, error) {
	transactions, err := h.store.GetAllTransactions()
	if err != nil {
		return nil, err
	}

	// First pass without prices just to learn which symbols are held.
	dry, err := portfolio.Replay(transactions, nil, portfolio.Options{
		InitialBalance: h.settings.InitialBalance,
		Oversell:       h.settings.Oversell,
	})
	if err != nil {
		return nil, err
	}

	prices, err := h.livePrices(ctx, dry)
	if err != nil {
		h.logger.Warn().Err(err).Msg("live prices unavailable, valuing at average cost")
		prices = nil
	}

	return portfolio.Replay(transactions, prices, portfolio.Options{
		InitialBalance: h.settings.InitialBalance,
		Oversell:       h.settings.Oversell,
	})
}

func (h *Handler) livePrices(ctx context.Context, snap *portfolio.Snapshot) (map[string]decimal.Decimal, error) {
	if h.cache == nil {
		return map[string]decimal.Decimal{}, nil
	}
	symbols := make([]string, 0, len(snap.Positions))
	for symbol := range snap.Positions {
		symbols = append(symbols, symbol)
	}
	return h.cache.GetPrices(ctx, symbols)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
