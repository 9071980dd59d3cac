// Package bootstrap builds the adapters shared by the Lambda functions and local binaries.
// SDK clients are created here once per process and handed to handlers explicitly.
package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
	"go.uber.org/zap"

	"github.com/pedro-hbl/ledger-lambdas/internal/config"
	"github.com/pedro-hbl/ledger-lambdas/internal/ledger"
	"github.com/pedro-hbl/ledger-lambdas/internal/metrics"
	"github.com/pedro-hbl/ledger-lambdas/internal/router"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases/dynamodb"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases/postgres"
	"github.com/pedro-hbl/ledger-lambdas/pkg/saltedge"
	"github.com/pedro-hbl/ledger-lambdas/pkg/secrets"
)

// CredentialResolver uses Secrets Manager when a secret is configured and the static DB_USER/DB_PASSWORD pair otherwise
func CredentialResolver(awsCfg aws.Config, cfg *config.Config) secrets.CredentialResolver {
	if cfg.DBSecretID == "" {
		return secrets.StaticCredentials{Username: cfg.DBUser, Password: cfg.DBPassword}
	}
	return secrets.NewSecretsManagerResolver(secretsmanager.NewFromConfig(awsCfg))
}

// RowStoreOpener returns the per-invocation Postgres connector
func RowStoreOpener(awsCfg aws.Config, cfg *config.Config) *postgres.Connector {
	return postgres.NewConnector(postgres.PostgresConfig{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Database: cfg.DBName,
		SecretID: cfg.DBSecretID,
		SSLMode:  cfg.DBSSLMode,
	}, CredentialResolver(awsCfg, cfg))
}

// DynamoDBClient creates the DynamoDB client, honouring DYNAMODB_ENDPOINT
func DynamoDBClient(awsCfg aws.Config, cfg *config.Config) dynamodb.DynamoDBAPI {
	return dynamodb.NewClient(awsCfg, dynamodb.DynamoDBConfig{
		TableName: cfg.TableName,
		Endpoint:  cfg.DynamoDBEndpoint,
	})
}

// Aggregator creates the Salt Edge client, persisting customer ids in customers
func Aggregator(cfg *config.Config, customers saltedge.CustomerStore, log *zap.Logger) *saltedge.Client {
	return saltedge.NewClient(saltedge.Config{
		BaseURL:   cfg.SaltEdgeBaseURL,
		AppID:     cfg.SaltEdgeAppID,
		Secret:    cfg.SaltEdgeSecret,
		ReturnTo:  cfg.ReturnURL(),
		Customers: customers,
		Logger:    log.Named("saltedge"),
	})
}

// WebhookCredentials returns the Basic auth pair of the webhook routes
func WebhookCredentials(cfg *config.Config) ledger.WebhookCredentials {
	return ledger.WebhookCredentials{
		User:     cfg.SaltEdgeWebhookUser,
		Password: cfg.SaltEdgeWebhookPass,
	}
}

// MetricsSink returns the Timestream sink, or nil when metrics are not configured
func MetricsSink(awsCfg aws.Config, cfg *config.Config) metrics.Sink {
	if !cfg.MetricsEnabled() {
		return nil
	}
	return metrics.NewTimestreamSink(timestreamwrite.NewFromConfig(awsCfg), cfg.MetricsDatabase, cfg.MetricsTable)
}

// RouterOptions attaches a fresh collector and the sink to a router variant
func RouterOptions(base router.Options, function string, sink metrics.Sink, coldStart bool) router.Options {
	base.Collector = metrics.NewCollector(function)
	base.Sink = sink
	base.ColdStart = coldStart
	return base
}
