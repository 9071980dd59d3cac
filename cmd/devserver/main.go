package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/pedro-hbl/ledger-lambdas/internal/bootstrap"
	"github.com/pedro-hbl/ledger-lambdas/internal/config"
	"github.com/pedro-hbl/ledger-lambdas/internal/ledger"
	"github.com/pedro-hbl/ledger-lambdas/internal/logger"
	"github.com/pedro-hbl/ledger-lambdas/internal/rows"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases/dynamodb"
)

func main() {
	// A missing .env is fine; the environment may already be set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to read .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.Must(cfg.LogLevel).Named("devserver")
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := config.LoadAWS(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to load AWS configuration", zap.Error(err))
	}

	store := dynamodb.NewDynamoDBDatabase(bootstrap.DynamoDBClient(awsCfg, cfg), cfg.TableName)
	s := &server{
		rows:      rows.NewHandler(bootstrap.RowStoreOpener(awsCfg, cfg), log),
		ledger:    ledger.NewHandler(store, bootstrap.Aggregator(cfg, store, log), bootstrap.WebhookCredentials(cfg), log),
		sink:      bootstrap.MetricsSink(awsCfg, cfg),
		jwtSecret: []byte(cfg.DevJWTSecret),
		log:       log,
	}
	e := s.routes()

	go func() {
		log.Info("Listening", zap.String("addr", cfg.DevAddr))
		if err := e.Start(cfg.DevAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down", zap.Error(err))
	}
}
