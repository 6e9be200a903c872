package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/robfig/cron/v3"

	"github.com/hupe1980/defimesh"
	"github.com/hupe1980/defimesh/cache"
	rediscache "github.com/hupe1980/defimesh/cache/redis"
	"github.com/hupe1980/defimesh/config"
	"github.com/hupe1980/defimesh/core"
	"github.com/hupe1980/defimesh/dispatch"
	"github.com/hupe1980/defimesh/dispatch/rabbitmq"
	"github.com/hupe1980/defimesh/dispatch/redisq"
	"github.com/hupe1980/defimesh/logging"
	"github.com/hupe1980/defimesh/market"
	"github.com/hupe1980/defimesh/oracle"
	anthropicoracle "github.com/hupe1980/defimesh/oracle/anthropic"
	openaioracle "github.com/hupe1980/defimesh/oracle/openai"
	"github.com/hupe1980/defimesh/server"
	"github.com/hupe1980/defimesh/store"
	mysqlstore "github.com/hupe1980/defimesh/store/mysql"
)

// defimeshd runs the coordination core as a long-lived service: an HTTP API
// for starting and inspecting executions, a pool of queue workers draining
// asynchronous runs, and an optional cron entry re-evaluating the default
// portfolio on a schedule.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("defimeshd: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewSlogLogger(cfg.LogLevel, cfg.LogFormat)

	// Durable store. Without a DSN everything lives in process memory,
	// which is fine for demos but loses history on restart.
	var st core.Store
	if cfg.DatabaseDSN != "" {
		ms, err := mysqlstore.New(cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("open mysql store: %w", err)
		}
		defer ms.Close()
		st = ms
		logger.Info("using mysql store")
	} else {
		st = store.NewInMemoryStore()
		logger.Warn("DATABASE_DSN not set, execution history will not survive restarts")
	}

	// State cache.
	var ca core.Cache
	if cfg.RedisAddr != "" {
		rc, err := rediscache.New(cfg.RedisAddr, func(o *rediscache.Options) {
			o.Password = cfg.RedisPassword
			o.DB = cfg.RedisDB
		})
		if err != nil {
			return fmt.Errorf("open redis cache: %w", err)
		}
		defer rc.Close()
		ca = rc
		logger.Info("using redis cache", "addr", cfg.RedisAddr)
	} else {
		ca = cache.NewInMemoryCache()
	}

	// Market data.
	catalog := market.DefaultCatalog()
	if cfg.MarketCatalog != "" {
		catalog, err = market.LoadCatalog(cfg.MarketCatalog)
		if err != nil {
			return err
		}
		logger.Info("loaded market catalog", "path", cfg.MarketCatalog)
	}

	orc, err := createOracle(cfg)
	if err != nil {
		return err
	}

	queue, err := createQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Error("close queue", "error", err)
		}
	}()

	mesh, err := defimesh.New(func(o *defimesh.Options) {
		o.Store = st
		o.Cache = ca
		o.CacheTTL = cfg.CacheTTL
		o.Oracle = orc
		o.Opportunities = catalog
		o.Scorer = catalog
		o.Forecaster = catalog
		o.Queue = queue
		o.MaxIterations = cfg.MaxIterations
		o.MinAPYDiff = cfg.MinAPYDiff
		o.RiskThreshold = cfg.RiskThreshold
		o.ProposalAsset = cfg.ProposalAsset
		o.Logger = logger
	})
	if err != nil {
		return err
	}

	// Queue workers.
	processor := dispatch.NewProcessor(mesh, queue, func(o *dispatch.ProcessorOptions) {
		o.WorkerCount = cfg.WorkerCount
		o.Logger = logger
	})

	processorCtx, stopProcessor := context.WithCancel(ctx)
	defer stopProcessor()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("processor stopped", "error", err)
		}
	}()
	logger.Info("queue processor started", "backend", cfg.QueueBackend, "workers", cfg.WorkerCount)

	// Scheduled re-evaluation of the default portfolio.
	switch {
	case cfg.ReevaluateCron == "":
	case cfg.DefaultWallet == "":
		logger.Warn("REEVALUATE_CRON is set but DEFAULT_WALLET is empty, skipping scheduled re-evaluation")
	default:
		c := cron.New()
		_, err := c.AddFunc(cfg.ReevaluateCron, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			id, err := mesh.EnqueueExecution(jobCtx, dispatch.Request{
				UserInput:     "Re-evaluate the portfolio for the best yield opportunities",
				WalletAddress: cfg.DefaultWallet,
				ChainID:       cfg.DefaultChainID,
			})
			if err != nil {
				logger.Error("scheduled re-evaluation failed", "error", err)
				return
			}
			logger.Info("scheduled re-evaluation queued", "execution_id", id)
		})
		if err != nil {
			return fmt.Errorf("schedule re-evaluation: %w", err)
		}
		c.Start()
		defer c.Stop()
		logger.Info("re-evaluation scheduled", "cron", cfg.ReevaluateCron, "wallet", cfg.DefaultWallet)
	}

	srv := server.New(mesh, st, func(o *server.Options) {
		o.Addr = cfg.HTTPAddr
		o.Logger = logger
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()
	logger.Info("http server listening", "addr", cfg.HTTPAddr)

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func createOracle(cfg *config.Config) (oracle.Oracle, error) {
	switch cfg.OracleProvider {
	case config.OracleRules:
		return oracle.NewRules(), nil
	case config.OracleOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("the openai oracle requires OPENAI_API_KEY")
		}
		return openaioracle.New(func(o *openaioracle.Options) {
			if cfg.OracleModel != "" {
				o.Model = cfg.OracleModel
			}
		}), nil
	case config.OracleAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("the anthropic oracle requires ANTHROPIC_API_KEY")
		}
		return anthropicoracle.New(func(o *anthropicoracle.Options) {
			o.APIKey = cfg.AnthropicAPIKey
			if cfg.OracleModel != "" {
				o.Model = anthropic.Model(cfg.OracleModel)
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.OracleProvider)
	}
}

func createQueue(cfg *config.Config) (dispatch.Queue, error) {
	switch cfg.QueueBackend {
	case config.QueueMemory:
		return dispatch.NewInMemoryQueue(), nil
	case config.QueueRedis:
		return redisq.New(cfg.RedisAddr, func(o *redisq.Options) {
			o.Password = cfg.RedisPassword
			o.DB = cfg.RedisDB
			if cfg.QueueName != "" {
				o.Queue = cfg.QueueName
			}
		})
	case config.QueueRabbitMQ:
		return rabbitmq.New(cfg.AMQPURL, func(o *rabbitmq.Options) {
			if cfg.QueueName != "" {
				o.Queue = cfg.QueueName
			}
			o.Durable = cfg.QueueDurable
		})
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}
