// Command scanner runs the expiry scan loop outside the API process, for
// deployments that schedule it independently.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/membership/internal/config"
	"example.com/membership/internal/domain"
	"example.com/membership/internal/observability"
	"example.com/membership/internal/outbox"
	persistence "example.com/membership/internal/persistence/postgres"
	"example.com/membership/internal/scanner"
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

	producer := outbox.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	repo := persistence.NewRepository(pool)
	directory := persistence.NewDirectory(pool)

	expiry := scanner.New(repo, directory, domain.SystemClock{}, logger, producer, scanner.Config{
		Interval:      cfg.ScanInterval,
		DaysThreshold: cfg.ScanDaysThreshold,
	})
	go expiry.Start(ctx)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownCh

	cancel()
	expiry.Wait()
}
