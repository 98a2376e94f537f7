package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalist/portfolio-service/internal/api"
	"github.com/signalist/portfolio-service/internal/config"
	"github.com/signalist/portfolio-service/internal/database"
	"github.com/signalist/portfolio-service/internal/forecast"
	"github.com/signalist/portfolio-service/internal/kafka"
	"github.com/signalist/portfolio-service/internal/portfolio"
	"github.com/signalist/portfolio-service/internal/pricecache"

	"github.com/shopspring/decimal"
)

func main() {
	cfg := config.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "portfolio-service").Logger()

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	logger.Info().Str("host", cfg.Database.Host).Msg("connected to database")

	if err := db.MigrateUp(cfg.Database.MigrationsPath); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Price snapshot store: Redis when configured, in-memory otherwise.
	var cache pricecache.Store
	if cfg.Redis.Addr != "" {
		redisStore, err := pricecache.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		cache = redisStore
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
	} else {
		cache = pricecache.NewMemory()
		logger.Warn().Msg("no redis configured, using in-memory price cache")
	}
	defer cache.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.PortfolioTopic)
	defer producer.Close()

	consumer := kafka.NewConsumer(
		cfg.Kafka.Brokers, cfg.Kafka.PriceTopic, cfg.Kafka.GroupID,
		db, cache, cfg.Redis.PriceTTL, logger,
	)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("price consumer stopped")
		}
	}()

	handler := api.NewHandler(
		db, producer, cache,
		&forecast.Hybrid{Timeout: cfg.Forecast.ModelTimeout},
		cfg.Forecast.RequestTimeout,
		api.PortfolioSettings{
			InitialBalance: decimal.NewFromFloat(cfg.Portfolio.InitialBalance),
			Oversell:       portfolio.OversellPolicy(cfg.Portfolio.OversellPolicy),
		},
		logger,
	)

	var limiter *api.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = api.NewRateLimiter(cache, cfg.RateLimit.Requests, cfg.RateLimit.Window, logger)
	}

	router := api.SetupRoutes(handler, limiter)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Forecast.RequestTimeout + 3*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
}
