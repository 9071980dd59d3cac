package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/viper"
)

// Config holds every setting read from the environment
type Config struct {
	AWSRegion string

	TableName        string
	DynamoDBEndpoint string

	DBHost     string
	DBPort     int
	DBName     string
	DBSecretID string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	SaltEdgeBaseURL     string
	SaltEdgeAppID       string
	SaltEdgeSecret      string
	SaltEdgeWebhookUser string
	SaltEdgeWebhookPass string
	AppDomain           string

	LogLevel string

	MetricsDatabase string
	MetricsTable    string

	DevAddr      string
	DevJWTSecret string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("TABLE_NAME", "Ledger")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_SSLMODE", "require")
	v.SetDefault("SALTEDGE_BASE_URL", "https://www.saltedge.com/api/v6")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DEV_ADDR", ":8080")

	return v
}

// Load reads the configuration from environment variables
func Load() (*Config, error) {
	v := newViper()

	cfg := &Config{
		AWSRegion:           v.GetString("AWS_REGION"),
		TableName:           v.GetString("TABLE_NAME"),
		DynamoDBEndpoint:    v.GetString("DYNAMODB_ENDPOINT"),
		DBHost:              v.GetString("DB_HOST"),
		DBPort:              v.GetInt("DB_PORT"),
		DBName:              v.GetString("DB_NAME"),
		DBSecretID:          v.GetString("DB_SECRET_ARN"),
		DBUser:              v.GetString("DB_USER"),
		DBPassword:          v.GetString("DB_PASSWORD"),
		DBSSLMode:           v.GetString("DB_SSLMODE"),
		SaltEdgeBaseURL:     strings.TrimRight(v.GetString("SALTEDGE_BASE_URL"), "/"),
		SaltEdgeAppID:       v.GetString("SALTEDGE_APP_ID"),
		SaltEdgeSecret:      v.GetString("SALTEDGE_SECRET"),
		SaltEdgeWebhookUser: v.GetString("SALTEDGE_WEBHOOK_USER"),
		SaltEdgeWebhookPass: v.GetString("SALTEDGE_WEBHOOK_PASS"),
		AppDomain:           v.GetString("APP_DOMAIN"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		MetricsDatabase:     v.GetString("METRICS_TIMESTREAM_DATABASE"),
		MetricsTable:        v.GetString("METRICS_TIMESTREAM_TABLE"),
		DevAddr:             v.GetString("DEV_ADDR"),
		DevJWTSecret:        v.GetString("DEV_JWT_SECRET"),
	}

	if cfg.DBPort <= 0 || cfg.DBPort > 65535 {
		return nil, fmt.Errorf("invalid DB_PORT %d", cfg.DBPort)
	}

	return cfg, nil
}

// MetricsEnabled reports whether invocation metrics should be written to Timestream
func (c *Config) MetricsEnabled() bool {
	return c.MetricsDatabase != "" && c.MetricsTable != ""
}

// ReturnURL is the page the aggregator redirects to after a connect session
func (c *Config) ReturnURL() string {
	domain := strings.TrimRight(c.AppDomain, "/")
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain + "/connect/success"
	}
	return "https://" + domain + "/connect/success"
}

// LoadAWS loads the default AWS configuration for the configured region
func LoadAWS(ctx context.Context, cfg *Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return awsCfg, nil
}
