package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalist/portfolio-service/internal/forecast"
	"github.com/signalist/portfolio-service/internal/models"
	"github.com/signalist/portfolio-service/internal/portfolio"
	"github.com/signalist/portfolio-service/internal/pricecache"
)

// mockStore implements Store in memory for handler tests
type mockStore struct {
	transactions []models.Transaction
	closes       map[string][]models.PriceDataDaily
	watchlist    map[string]models.WatchlistEntry
	failCloses   map[string]bool
	nextID       int
}

func newMockStore() *mockStore {
	return &mockStore{
		closes:     make(map[string][]models.PriceDataDaily),
		watchlist:  make(map[string]models.WatchlistEntry),
		failCloses: make(map[string]bool),
		nextID:     1,
	}
}

func (m *mockStore) CreateTransaction(t *models.Transaction) error {
	t.ID = m.nextID
	m.nextID++
	if t.ExecutedAt.IsZero() {
		t.ExecutedAt = time.Now()
	}
	t.CreatedAt = time.Now()
	m.transactions = append(m.transactions, *t)
	return nil
}

func (m *mockStore) GetAllTransactions() ([]models.Transaction, error) {
	out := make([]models.Transaction, len(m.transactions))
	copy(out, m.transactions)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ExecutedAt.Equal(out[j].ExecutedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ExecutedAt.Before(out[j].ExecutedAt)
	})
	return out, nil
}

func (m *mockStore) DeleteAllTransactions() error {
	m.transactions = nil
	return nil
}

func (m *mockStore) GetRecentCloses(symbol string, limit int) ([]models.PriceDataDaily, error) {
	if m.failCloses[symbol] {
		return nil, fmt.Errorf("failed to query price data")
	}
	closes := m.closes[symbol]
	if len(closes) > limit {
		closes = closes[len(closes)-limit:]
	}
	return closes, nil
}

func (m *mockStore) GetClosesSince(symbol string, since time.Time) ([]models.PriceDataDaily, error) {
	if m.failCloses[symbol] {
		return nil, fmt.Errorf("failed to query price data")
	}
	var out []models.PriceDataDaily
	for _, c := range m.closes[symbol] {
		if !c.Date.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockStore) GetFirstBuyDate(symbol string) (time.Time, error) {
	var first time.Time
	for _, tx := range m.transactions {
		if tx.Symbol != symbol || tx.Type != models.TransactionTypeBuy {
			continue
		}
		if first.IsZero() || tx.ExecutedAt.Before(first) {
			first = tx.ExecutedAt
		}
	}
	if first.IsZero() {
		return time.Time{}, fmt.Errorf("no buy transactions for %s", symbol)
	}
	return first, nil
}

func (m *mockStore) AddToWatchlist(w *models.WatchlistEntry) error {
	w.AddedAt = time.Now()
	m.watchlist[w.Symbol] = *w
	return nil
}

func (m *mockStore) GetWatchlist() ([]models.WatchlistEntry, error) {
	var entries []models.WatchlistEntry
	for _, w := range m.watchlist {
		entries = append(entries, w)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Symbol < entries[j].Symbol })
	return entries, nil
}

func (m *mockStore) RemoveFromWatchlist(symbol string) error {
	if _, ok := m.watchlist[symbol]; !ok {
		return fmt.Errorf("watchlist entry not found: %s", symbol)
	}
	delete(m.watchlist, symbol)
	return nil
}

func (m *mockStore) seedCloses(symbol string, start time.Time, prices ...float64) {
	for i, p := range prices {
		m.closes[symbol] = append(m.closes[symbol], models.PriceDataDaily{
			Symbol: symbol,
			Date:   start.AddDate(0, 0, i),
			Close:  decimal.NewFromFloat(p),
		})
	}
}

// mockPublisher implements EventPublisher and records what was published
type mockPublisher struct {
	recorded []models.Transaction
	resets   int
}

func (m *mockPublisher) PublishTransactionRecorded(_ context.Context, tx *models.Transaction) error {
	m.recorded = append(m.recorded, *tx)
	return nil
}

func (m *mockPublisher) PublishPortfolioReset(_ context.Context) error {
	m.resets++
	return nil
}

type testEnv struct {
	store     *mockStore
	publisher *mockPublisher
	cache     *pricecache.MemoryStore
	router    http.Handler
}

func newTestEnv(t *testing.T, opts ...func(*Handler)) *testEnv {
	t.Helper()
	store := newMockStore()
	publisher := &mockPublisher{}
	cache := pricecache.NewMemory()

	handler := NewHandler(
		store, publisher, cache,
		&forecast.Hybrid{Timeout: time.Second},
		10*time.Second,
		PortfolioSettings{
			InitialBalance: decimal.NewFromInt(10000),
			Oversell:       portfolio.OversellClamp,
		},
		zerolog.Nop(),
	)
	for _, opt := range opts {
		opt(handler)
	}

	return &testEnv{
		store:     store,
		publisher: publisher,
		cache:     cache,
		router:    SetupRoutes(handler, nil),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeJSON(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
}

func TestGetForecast(t *testing.T) {
	day0 := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	t.Run("returns forecast for sufficient history", func(t *testing.T) {
		env := newTestEnv(t)
		prices := make([]float64, 30)
		for i := range prices {
			prices[i] = 100 + float64(i)
		}
		env.store.seedCloses("AAPL", day0, prices...)

		rec := env.do(t, "GET", "/api/v1/forecast/aapl", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body struct {
			Symbol   string                `json:"symbol"`
			Forecast models.ForecastResult `json:"forecast"`
		}
		decodeJSON(t, rec, &body)
		assert.Equal(t, "AAPL", body.Symbol)
		assert.Equal(t, 129.0, body.Forecast.CurrentPrice)
		assert.Greater(t, body.Forecast.PredictedPrice, 129.0)
		assert.Equal(t, models.TrendUp, body.Forecast.Trend)
		assert.GreaterOrEqual(t, body.Forecast.Confidence, 40.0)
		assert.LessOrEqual(t, body.Forecast.Confidence, 95.0)
	})

	t.Run("422 with fewer than ten closes", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.seedCloses("AAPL", day0, 100, 101, 102)

		rec := env.do(t, "GET", "/api/v1/forecast/AAPL", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("504 when the request deadline expires", func(t *testing.T) {
		env := newTestEnv(t, func(h *Handler) {
			// Inner model deadline far beyond the request budget, and a
			// series long enough that the fit cannot beat the deadline.
			h.estimator = &forecast.Hybrid{Timeout: time.Minute}
			h.requestTimeout = time.Nanosecond
		})
		prices := make([]float64, 5000)
		for i := range prices {
			prices[i] = 100 + 0.1*float64(i)
		}
		env.store.seedCloses("AAPL", day0, prices...)

		rec := env.do(t, "GET", "/api/v1/forecast/AAPL", nil)
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})

	t.Run("500 when the price store fails", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.failCloses["AAPL"] = true

		rec := env.do(t, "GET", "/api/v1/forecast/AAPL", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestCreateTransaction(t *testing.T) {
	t.Run("records a valid buy", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, "POST", "/api/v1/portfolio/transactions", map[string]interface{}{
			"symbol": "aapl",
			"type":   "buy",
			"shares": "10",
			"price":  "150.50",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var tx models.Transaction
		decodeJSON(t, rec, &tx)
		assert.Equal(t, "AAPL", tx.Symbol)
		assert.NotZero(t, tx.ID)
		assert.True(t, decimal.NewFromFloat(1505).Equal(tx.Total), "total should be shares*price, got %s", tx.Total)

		require.Len(t, env.publisher.recorded, 1)
		assert.Equal(t, "AAPL", env.publisher.recorded[0].Symbol)
	})

	t.Run("rejects invalid payloads", func(t *testing.T) {
		env := newTestEnv(t)

		cases := []map[string]interface{}{
			{"type": "buy", "shares": "1", "price": "1"},                     // no symbol
			{"symbol": "AAPL", "type": "transfer", "shares": "1", "price": "1"}, // bad type
			{"symbol": "AAPL", "type": "buy", "shares": "0", "price": "1"},   // zero shares
			{"symbol": "AAPL", "type": "buy", "shares": "-1", "price": "1"},  // negative shares
			{"symbol": "AAPL", "type": "buy", "shares": "1", "price": "0"},   // zero price
		}
		for _, body := range cases {
			rec := env.do(t, "POST", "/api/v1/portfolio/transactions", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, "payload %v", body)
		}
		assert.Empty(t, env.store.transactions)
		assert.Empty(t, env.publisher.recorded)
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest("POST", "/api/v1/portfolio/transactions", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("oversell is a 409 under the reject policy", func(t *testing.T) {
		env := newTestEnv(t, func(h *Handler) {
			h.settings.Oversell = portfolio.OversellReject
		})

		rec := env.do(t, "POST", "/api/v1/portfolio/transactions", map[string]interface{}{
			"symbol": "AAPL", "type": "buy", "shares": "5", "price": "100",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = env.do(t, "POST", "/api/v1/portfolio/transactions", map[string]interface{}{
			"symbol": "AAPL", "type": "sell", "shares": "8", "price": "110",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Len(t, env.store.transactions, 1, "rejected sell must not be persisted")
		assert.Len(t, env.publisher.recorded, 1)
	})

	t.Run("oversell is accepted under the clamp policy", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, "POST", "/api/v1/portfolio/transactions", map[string]interface{}{
			"symbol": "AAPL", "type": "buy", "shares": "5", "price": "100",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = env.do(t, "POST", "/api/v1/portfolio/transactions", map[string]interface{}{
			"symbol": "AAPL", "type": "sell", "shares": "8", "price": "110",
		})
		assert.Equal(t, http.StatusCreated, rec.Code)
	})
}

func TestGetTransactions(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/api/v1/portfolio/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	env.do(t, "POST", "/api/v1/portfolio/transactions", map[string]interface{}{
		"symbol": "AAPL", "type": "buy", "shares": "10", "price": "100",
	})

	rec = env.do(t, "GET", "/api/v1/portfolio/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var transactions []models.Transaction
	decodeJSON(t, rec, &transactions)
	require.Len(t, transactions, 1)
	assert.Equal(t, "AAPL", transactions[0].Symbol)
}

func TestGetPerformance(t *testing.T) {
	ctx := context.Background()
	buyAt := func(env *testEnv, symbol string, shares, price string, at time.Time) {
		env.store.transactions = append(env.store.transactions, models.Transaction{
			ID: env.store.nextID, Symbol: symbol, Type: models.TransactionTypeBuy,
			Shares: decimal.RequireFromString(shares), Price: decimal.RequireFromString(price),
			Total: decimal.RequireFromString(shares).Mul(decimal.RequireFromString(price)), ExecutedAt: at,
		})
		env.store.nextID++
	}

	t.Run("replays the log against the live snapshot", func(t *testing.T) {
		env := newTestEnv(t)
		day0 := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
		buyAt(env, "AAPL", "10", "100", day0)
		require.NoError(t, env.cache.SetPrice(ctx, "AAPL", decimal.NewFromInt(120), time.Minute))

		rec := env.do(t, "GET", "/api/v1/portfolio/performance", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body performanceResponse
		decodeJSON(t, rec, &body)
		assert.Equal(t, "ALL", body.Range)
		assert.True(t, decimal.NewFromInt(9000).Equal(body.CashBalance), "cash %s", body.CashBalance)
		assert.True(t, decimal.NewFromInt(200).Equal(body.UnrealizedPnL), "unrealized %s", body.UnrealizedPnL)
		require.Len(t, body.Holdings, 1)
		assert.Equal(t, "AAPL", body.Holdings[0].Symbol)
		require.Len(t, body.Valuations, 1)
		// 9000 cash + 10 shares at the live 120 snapshot
		assert.True(t, decimal.NewFromInt(10200).Equal(body.Valuations[0].Value))
		require.Len(t, body.ReturnIndex, 1)
		assert.Equal(t, 100.0, body.ReturnIndex[0])
		assert.Nil(t, body.PeriodReturn)
	})

	t.Run("range parameter windows the series", func(t *testing.T) {
		env := newTestEnv(t)
		old := time.Now().AddDate(-2, 0, 0)
		recent := time.Now().AddDate(0, 0, -5)
		buyAt(env, "AAPL", "10", "100", old)
		buyAt(env, "MSFT", "5", "200", recent)

		rec := env.do(t, "GET", "/api/v1/portfolio/performance?range=1M", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body performanceResponse
		decodeJSON(t, rec, &body)
		assert.Equal(t, "1M", body.Range)
		assert.Len(t, body.Valuations, 1, "the two-year-old event is outside the window")
		// Holdings are unwindowed state, not series data
		assert.Len(t, body.Holdings, 2)
	})

	t.Run("unknown range falls back to ALL", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, "GET", "/api/v1/portfolio/performance?range=5D", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body performanceResponse
		decodeJSON(t, rec, &body)
		assert.Equal(t, "ALL", body.Range)
	})
}

func TestResetPortfolio(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, "POST", "/api/v1/portfolio/transactions", map[string]interface{}{
		"symbol": "AAPL", "type": "buy", "shares": "10", "price": "100",
	})

	rec := env.do(t, "POST", "/api/v1/portfolio/reset", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, env.store.transactions)
	assert.Equal(t, 1, env.publisher.resets)
}

func TestGetCharts(t *testing.T) {
	day0 := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	t.Run("returns history since first buy per holding", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.seedCloses("AAPL", day0.AddDate(0, 0, -10), 90, 91, 92, 93, 94, 95, 96, 97, 98, 99, 100, 101, 102)
		env.store.transactions = append(env.store.transactions, models.Transaction{
			ID: 1, Symbol: "AAPL", Type: models.TransactionTypeBuy,
			Shares: decimal.NewFromInt(10), Price: decimal.NewFromInt(100),
			Total: decimal.NewFromInt(1000), ExecutedAt: day0,
		})

		rec := env.do(t, "GET", "/api/v1/portfolio/charts", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Charts map[string][]models.PricePoint `json:"charts"`
		}
		decodeJSON(t, rec, &body)
		require.Contains(t, body.Charts, "AAPL")
		// Only closes on or after the first buy date
		assert.Len(t, body.Charts["AAPL"], 3)
		assert.Equal(t, 100.0, body.Charts["AAPL"][0].Price)
	})

	t.Run("a failing symbol is omitted, not fatal", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.seedCloses("AAPL", day0, 100, 101, 102)
		env.store.failCloses["MSFT"] = true
		for i, symbol := range []string{"AAPL", "MSFT"} {
			env.store.transactions = append(env.store.transactions, models.Transaction{
				ID: i + 1, Symbol: symbol, Type: models.TransactionTypeBuy,
				Shares: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
				Total: decimal.NewFromInt(100), ExecutedAt: day0,
			})
		}

		rec := env.do(t, "GET", "/api/v1/portfolio/charts", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Charts map[string][]models.PricePoint `json:"charts"`
		}
		decodeJSON(t, rec, &body)
		assert.Contains(t, body.Charts, "AAPL")
		assert.NotContains(t, body.Charts, "MSFT")
	})
}

func TestWatchlist(t *testing.T) {
	t.Run("add, list, remove", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, "POST", "/api/v1/watchlist", map[string]string{
			"symbol": "aapl", "company": "Apple Inc.",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = env.do(t, "GET", "/api/v1/watchlist", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var entries []models.WatchlistEntry
		decodeJSON(t, rec, &entries)
		require.Len(t, entries, 1)
		assert.Equal(t, "AAPL", entries[0].Symbol)

		rec = env.do(t, "DELETE", "/api/v1/watchlist/AAPL", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.do(t, "GET", "/api/v1/watchlist", nil)
		assert.JSONEq(t, "[]", rec.Body.String())
	})

	t.Run("add without symbol is a 400", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, "POST", "/api/v1/watchlist", map[string]string{"company": "Apple"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("removing an unknown symbol is a 404", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, "DELETE", "/api/v1/watchlist/NOPE", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
