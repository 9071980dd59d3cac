package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/pedro-hbl/ledger-lambdas/internal/bootstrap"
	"github.com/pedro-hbl/ledger-lambdas/internal/config"
	"github.com/pedro-hbl/ledger-lambdas/internal/logger"
	"github.com/pedro-hbl/ledger-lambdas/internal/metrics"
	"github.com/pedro-hbl/ledger-lambdas/internal/router"
	"github.com/pedro-hbl/ledger-lambdas/internal/rows"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases"
)

const functionName = "rows-crud"

type app struct {
	opener    databases.RowStoreOpener
	sink      metrics.Sink
	log       *zap.Logger
	coldStart bool
}

func (a *app) handleRequest(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	opts := bootstrap.RouterOptions(rows.Options(), functionName, a.sink, a.coldStart)
	a.coldStart = false

	r := router.New(opts, a.log)
	rows.NewHandler(a.opener, a.log).RegisterCRUD(r)

	req, err := router.FromV2Request(event)
	if err != nil {
		return router.ToV2Response(r.Reject(http.StatusBadRequest, "Invalid body encoding", err)), nil
	}

	return router.ToV2Response(r.Serve(ctx, req)), nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.Must(cfg.LogLevel).Named(functionName)
	defer log.Sync()

	// Load AWS configuration once per container
	awsCfg, err := config.LoadAWS(context.Background(), cfg)
	if err != nil {
		log.Fatal("Failed to load AWS configuration", zap.Error(err))
	}

	a := &app{
		opener:    bootstrap.RowStoreOpener(awsCfg, cfg),
		sink:      bootstrap.MetricsSink(awsCfg, cfg),
		log:       log,
		coldStart: true,
	}

	lambda.Start(a.handleRequest)
}
