// Package config loads runtime configuration for the mesh daemon from the
// environment, with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Oracle provider names accepted by ORACLE_PROVIDER.
const (
	OracleRules     = "rules"
	OracleOpenAI    = "openai"
	OracleAnthropic = "anthropic"
)

// Queue backend names accepted by QUEUE_BACKEND.
const (
	QueueMemory   = "memory"
	QueueRedis    = "redis"
	QueueRabbitMQ = "rabbitmq"
)

// Config holds the daemon configuration.
type Config struct {
	// Storage. An empty DatabaseDSN selects the in-memory store; an empty
	// RedisAddr selects the in-memory cache.
	DatabaseDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Decision oracle.
	OracleProvider  string
	OracleModel     string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Coordination tuning.
	MaxIterations int
	MinAPYDiff    float64
	RiskThreshold float64
	ProposalAsset string

	// Wallet context used by the periodic re-evaluation job.
	DefaultWallet  string
	DefaultChainID int64

	// Intake.
	HTTPAddr     string
	QueueBackend string
	QueueName    string
	QueueDurable bool
	AMQPURL      string
	WorkerCount  int

	// ReevaluateCron schedules periodic portfolio re-evaluation; empty
	// disables it.
	ReevaluateCron string

	// MarketCatalog points at a YAML opportunity/risk catalog; empty uses the
	// built-in defaults.
	MarketCatalog string

	// Logging.
	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseDSN:   getEnv("DATABASE_DSN", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		CacheTTL:      time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 300)) * time.Second,

		OracleProvider:  getEnv("ORACLE_PROVIDER", OracleRules),
		OracleModel:     getEnv("ORACLE_MODEL", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),

		MaxIterations: getEnvAsInt("MAX_ITERATIONS", 20),
		MinAPYDiff:    getEnvAsFloat("MIN_APY_DIFF", 0.02),
		RiskThreshold: getEnvAsFloat("RISK_THRESHOLD", 7.0),
		ProposalAsset: getEnv("PROPOSAL_ASSET", "USDC"),

		DefaultWallet:  getEnv("DEFAULT_WALLET", ""),
		DefaultChainID: int64(getEnvAsInt("DEFAULT_CHAIN_ID", 1)),

		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		QueueBackend: getEnv("QUEUE_BACKEND", QueueMemory),
		QueueName:    getEnv("QUEUE_NAME", ""),
		QueueDurable: getEnvAsBool("QUEUE_DURABLE", true),
		AMQPURL:      getEnv("AMQP_URL", ""),
		WorkerCount:  getEnvAsInt("WORKER_COUNT", 4),

		ReevaluateCron: getEnv("REEVALUATE_CRON", ""),
		MarketCatalog:  getEnv("MARKET_CATALOG", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.OracleProvider {
	case OracleRules, OracleOpenAI, OracleAnthropic:
	default:
		return fmt.Errorf("unknown oracle provider %q", c.OracleProvider)
	}

	switch c.QueueBackend {
	case QueueMemory:
	case QueueRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("queue backend %q requires REDIS_ADDR", c.QueueBackend)
		}
	case QueueRabbitMQ:
		if c.AMQPURL == "" {
			return fmt.Errorf("queue backend %q requires AMQP_URL", c.QueueBackend)
		}
	default:
		return fmt.Errorf("unknown queue backend %q", c.QueueBackend)
	}

	if c.MaxIterations <= 0 {
		return fmt.Errorf("MAX_ITERATIONS must be positive, got %d", c.MaxIterations)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}

	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}

	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}

	return defaultValue
}
