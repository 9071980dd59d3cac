package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/pedro-hbl/ledger-lambdas/internal/bootstrap"
	"github.com/pedro-hbl/ledger-lambdas/internal/config"
	"github.com/pedro-hbl/ledger-lambdas/internal/logger"
	"github.com/pedro-hbl/ledger-lambdas/internal/metrics"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases/dynamodb"
)

var (
	wait     = flag.Duration("wait", 2*time.Minute, "How long to wait for a new table to become active")
	attempts = flag.Int("attempts", 5, "Attempts per step, for endpoints that are still starting")
	withRows = flag.Bool("rows", false, "Also bootstrap the PostgreSQL rows schema")
)

type tableEnsurer interface {
	EnsureTable(ctx context.Context, maxWait time.Duration) (bool, error)
}

type storageEnsurer interface {
	EnsureStorage(ctx context.Context) error
}

// setupSteps holds the stores to prepare; nil entries are skipped
type setupSteps struct {
	table    tableEnsurer
	metrics  storageEnsurer
	rows     databases.RowStoreOpener
	wait     time.Duration
	attempts int
	backoff  time.Duration
}

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to read .env: %v\n", err)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.Must(cfg.LogLevel).Named("table-setup")
	defer log.Sync()

	ctx := context.Background()
	awsCfg, err := config.LoadAWS(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to load AWS configuration", zap.Error(err))
	}

	steps := setupSteps{
		table:    dynamodb.NewDynamoDBDatabase(bootstrap.DynamoDBClient(awsCfg, cfg), cfg.TableName),
		wait:     *wait,
		attempts: *attempts,
		backoff:  time.Second,
	}
	if sink, ok := bootstrap.MetricsSink(awsCfg, cfg).(*metrics.TimestreamSink); ok {
		steps.metrics = sink
	}
	if *withRows {
		steps.rows = bootstrap.RowStoreOpener(awsCfg, cfg)
	}

	log.Info("Setting up storage",
		zap.String("table", cfg.TableName),
		zap.Bool("metrics", steps.metrics != nil),
		zap.Bool("rows", steps.rows != nil))

	if err := steps.run(ctx, log); err != nil {
		log.Fatal("Setup failed", zap.Error(err))
	}
	log.Info("Setup completed successfully")
}

func (s setupSteps) run(ctx context.Context, log *zap.Logger) error {
	err := retry(ctx, s.attempts, s.backoff, log, func() error {
		created, err := s.table.EnsureTable(ctx, s.wait)
		if err != nil {
			return err
		}
		if created {
			log.Info("Ledger table created")
		} else {
			log.Info("Ledger table already exists")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ledger table: %w", err)
	}

	if s.metrics != nil {
		if err := retry(ctx, s.attempts, s.backoff, log, func() error {
			return s.metrics.EnsureStorage(ctx)
		}); err != nil {
			return fmt.Errorf("metrics storage: %w", err)
		}
		log.Info("Metrics database and table ready")
	}

	if s.rows != nil {
		if err := retry(ctx, s.attempts, s.backoff, log, func() error {
			return ensureRowsSchema(ctx, s.rows)
		}); err != nil {
			return fmt.Errorf("rows schema: %w", err)
		}
		log.Info("Rows schema ready")
	}

	return nil
}

func ensureRowsSchema(ctx context.Context, opener databases.RowStoreOpener) error {
	store, err := opener.Open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.EnsureSchema(ctx)
}

// retry runs f up to attempts times, doubling the pause after each failure
func retry(ctx context.Context, attempts int, sleep time.Duration, log *zap.Logger, f func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = f(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		log.Warn("Retrying after error", zap.Int("attempt", i+1), zap.Duration("sleep", sleep), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		sleep *= 2
	}
	return err
}
