package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/membership/internal/api"
	"example.com/membership/internal/auth"
	"example.com/membership/internal/config"
	"example.com/membership/internal/domain"
	"example.com/membership/internal/observability"
	"example.com/membership/internal/outbox"
	persistence "example.com/membership/internal/persistence/postgres"
	"example.com/membership/internal/scanner"
	httptransport "example.com/membership/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := observability.NewLogger(cfg.AppEnv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	fees := persistence.NewFeeRepository(pool)
	directory := persistence.NewDirectory(pool)
	clock := domain.SystemClock{}

	producer := outbox.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	dispatcher := outbox.NewDispatcher(pool, producer, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go dispatcher.Start(ctx)

	expiry := scanner.New(repo, directory, clock, logger, producer, scanner.Config{
		Interval:      cfg.ScanInterval,
		DaysThreshold: cfg.ScanDaysThreshold,
	})
	go expiry.Start(ctx)

	service := domain.NewService(repo, fees, directory, clock)
	handler := api.NewHandler(service, expiry)

	root := chi.NewRouter()
	root.Use(httptransport.RequestLogger(logger))
	root.Handle("/metrics", promhttp.Handler())
	root.Mount("/", handler.Routes())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(root))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress).Msg("membership-service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	dispatcher.Wait()
	expiry.Wait()
}
