package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"AWS_REGION", "TABLE_NAME", "DB_PORT", "DB_SSLMODE", "SALTEDGE_BASE_URL", "LOG_LEVEL", "DB_SECRET_ARN"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, "require", cfg.DBSSLMode)
	assert.Equal(t, "https://www.saltedge.com/api/v6", cfg.SaltEdgeBaseURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.DBSecretID)
	assert.False(t, cfg.MetricsEnabled())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("TABLE_NAME", "LedgerProd")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_SECRET_ARN", "arn:aws:secretsmanager:eu-west-1:1:secret:db")
	t.Setenv("SALTEDGE_BASE_URL", "http://localhost:9000/api/")
	t.Setenv("SALTEDGE_WEBHOOK_USER", "hook")
	t.Setenv("SALTEDGE_WEBHOOK_PASS", "pw")
	t.Setenv("METRICS_TIMESTREAM_DATABASE", "ledger")
	t.Setenv("METRICS_TIMESTREAM_TABLE", "invocations")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "LedgerProd", cfg.TableName)
	assert.Equal(t, "db.internal", cfg.DBHost)
	assert.Equal(t, 6543, cfg.DBPort)
	assert.Equal(t, "arn:aws:secretsmanager:eu-west-1:1:secret:db", cfg.DBSecretID)
	assert.Equal(t, "http://localhost:9000/api", cfg.SaltEdgeBaseURL)
	assert.Equal(t, "hook", cfg.SaltEdgeWebhookUser)
	assert.True(t, cfg.MetricsEnabled())
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("DB_PORT", "70000")

	_, err := Load()
	assert.Error(t, err)
}

func TestReturnURL(t *testing.T) {
	tests := []struct {
		domain string
		want   string
	}{
		{domain: "app.example.com", want: "https://app.example.com/connect/success"},
		{domain: "https://app.example.com/", want: "https://app.example.com/connect/success"},
		{domain: "http://localhost:5173", want: "http://localhost:5173/connect/success"},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			cfg := &Config{AppDomain: tt.domain}
			assert.Equal(t, tt.want, cfg.ReturnURL())
		})
	}
}
