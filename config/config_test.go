package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, OracleRules, cfg.OracleProvider)
	assert.Equal(t, QueueMemory, cfg.QueueBackend)
	assert.Equal(t, 300*time.Second, cfg.CacheTTL)
	assert.Equal(t, 20, cfg.MaxIterations)
	assert.InDelta(t, 0.02, cfg.MinAPYDiff, 1e-9)
	assert.InDelta(t, 7.0, cfg.RiskThreshold, 1e-9)
	assert.Equal(t, "USDC", cfg.ProposalAsset)
	assert.Equal(t, int64(1), cfg.DefaultChainID)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.True(t, cfg.QueueDurable)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_DSN", "user:pass@tcp(localhost:3306)/defimesh?parseTime=true")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("CACHE_TTL_SECONDS", "60")
	t.Setenv("ORACLE_PROVIDER", "openai")
	t.Setenv("ORACLE_MODEL", "gpt-4o-mini")
	t.Setenv("MAX_ITERATIONS", "10")
	t.Setenv("MIN_APY_DIFF", "0.05")
	t.Setenv("RISK_THRESHOLD", "5.5")
	t.Setenv("QUEUE_BACKEND", "redis")
	t.Setenv("QUEUE_DURABLE", "false")
	t.Setenv("WORKER_COUNT", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "user:pass@tcp(localhost:3306)/defimesh?parseTime=true", cfg.DatabaseDSN)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.Equal(t, OracleOpenAI, cfg.OracleProvider)
	assert.Equal(t, "gpt-4o-mini", cfg.OracleModel)
	assert.Equal(t, 10, cfg.MaxIterations)
	assert.InDelta(t, 0.05, cfg.MinAPYDiff, 1e-9)
	assert.InDelta(t, 5.5, cfg.RiskThreshold, 1e-9)
	assert.Equal(t, QueueRedis, cfg.QueueBackend)
	assert.False(t, cfg.QueueDurable)
	assert.Equal(t, 8, cfg.WorkerCount)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("MAX_ITERATIONS", "many")
	t.Setenv("MIN_APY_DIFF", "lots")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.MaxIterations)
	assert.InDelta(t, 0.02, cfg.MinAPYDiff, 1e-9)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "unknown oracle provider",
			mutate:  func(c *Config) { c.OracleProvider = "crystal-ball" },
			wantErr: "unknown oracle provider",
		},
		{
			name:    "unknown queue backend",
			mutate:  func(c *Config) { c.QueueBackend = "pigeon" },
			wantErr: "unknown queue backend",
		},
		{
			name:    "redis queue without address",
			mutate:  func(c *Config) { c.QueueBackend = QueueRedis },
			wantErr: "requires REDIS_ADDR",
		},
		{
			name:    "rabbitmq queue without url",
			mutate:  func(c *Config) { c.QueueBackend = QueueRabbitMQ },
			wantErr: "requires AMQP_URL",
		},
		{
			name:    "non-positive iteration bound",
			mutate:  func(c *Config) { c.MaxIterations = 0 },
			wantErr: "must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}
