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
	"github.com/pedro-hbl/ledger-lambdas/internal/ledger"
	"github.com/pedro-hbl/ledger-lambdas/internal/logger"
	"github.com/pedro-hbl/ledger-lambdas/internal/metrics"
	"github.com/pedro-hbl/ledger-lambdas/internal/router"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases/dynamodb"
)

const functionName = "ledger-api"

type app struct {
	handler   *ledger.Handler
	sink      metrics.Sink
	log       *zap.Logger
	coldStart bool
}

func (a *app) handleRequest(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	opts := bootstrap.RouterOptions(ledger.Options(), functionName, a.sink, a.coldStart)
	a.coldStart = false

	r := router.New(opts, a.log)
	a.handler.Register(r)

	req, err := router.FromProxyRequest(event)
	if err != nil {
		return router.ToProxyResponse(r.Reject(http.StatusBadRequest, "Invalid body encoding", err)), nil
	}

	return router.ToProxyResponse(r.Serve(ctx, req)), nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.Must(cfg.LogLevel).Named(functionName)
	defer log.Sync()

	awsCfg, err := config.LoadAWS(context.Background(), cfg)
	if err != nil {
		log.Fatal("Failed to load AWS configuration", zap.Error(err))
	}

	// The table also holds the aggregator customer mapping
	store := dynamodb.NewDynamoDBDatabase(bootstrap.DynamoDBClient(awsCfg, cfg), cfg.TableName)
	aggregator := bootstrap.Aggregator(cfg, store, log)

	a := &app{
		handler:   ledger.NewHandler(store, aggregator, bootstrap.WebhookCredentials(cfg), log),
		sink:      bootstrap.MetricsSink(awsCfg, cfg),
		log:       log,
		coldStart: true,
	}

	lambda.Start(a.handleRequest)
}
