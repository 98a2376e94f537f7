package pricecache

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type memoryEntry struct {
	price     decimal.Decimal
	expiresAt time.Time
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore implements Store in process memory. Used in tests and when
// no Redis address is configured.
type MemoryStore struct {
	mu       sync.Mutex
	prices   map[string]memoryEntry
	counters map[string]memoryCounter
	now      func() time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		prices:   make(map[string]memoryEntry),
		counters: make(map[string]memoryCounter),
		now:      time.Now,
	}
}

func (s *MemoryStore) GetPrice(_ context.Context, symbol string) (decimal.Decimal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.prices[symbol]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.prices, symbol)
		return decimal.Zero, false, nil
	}
	return entry.price, true, nil
}

func (s *MemoryStore) SetPrice(_ context.Context, symbol string, price decimal.Decimal, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prices[symbol] = memoryEntry{price: price, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(symbols))
	for _, symbol := range symbols {
		price, ok, err := s.GetPrice(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if ok {
			prices[symbol] = price
		}
	}
	return prices, nil
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[key]
	if !ok || s.now().After(counter.expiresAt) {
		counter = memoryCounter{expiresAt: s.now().Add(ttl)}
	}
	counter.count++
	s.counters[key] = counter
	return counter.count, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
