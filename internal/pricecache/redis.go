package pricecache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const priceKeyPrefix = "price:"

// RedisStore implements Store on a Redis instance.
type RedisStore struct {
	client *redis.Client
}

// NewRedis connects to Redis and verifies the connection
func NewRedis(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, bool, error) {
	val, err := s.client.Get(ctx, priceKeyPrefix+symbol).Result()
	if err == redis.Nil {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to get price for %s: %w", symbol, err)
	}

	price, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to parse cached price for %s: %w", symbol, err)
	}
	return price, true, nil
}

func (s *RedisStore) SetPrice(ctx context.Context, symbol string, price decimal.Decimal, ttl time.Duration) error {
	if err := s.client.Set(ctx, priceKeyPrefix+symbol, price.String(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set price for %s: %w", symbol, err)
	}
	return nil
}

func (s *RedisStore) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if len(symbols) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	keys := make([]string, len(symbols))
	for i, symbol := range symbols {
		keys[i] = priceKeyPrefix + symbol
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get prices: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(symbols))
	for i, val := range vals {
		str, ok := val.(string)
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(str)
		if err != nil {
			return nil, fmt.Errorf("failed to parse cached price for %s: %w", symbols[i], err)
		}
		prices[symbols[i]] = price
	}
	return prices, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}

	// The key is new when the counter is at 1; start its window.
	if count == 1 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			return count, fmt.Errorf("failed to set ttl on %s: %w", key, err)
		}
	}
	return count, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
