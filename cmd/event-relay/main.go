package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.IsDev())
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.RabbitMQURL == "" {
		log.Warn("RABBITMQ_URL is not set, event relay has nothing to publish to")
		return
	}

	log.Info("event-relay starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.String("exchange", cfg.EventExchange),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PoolOptions())
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	publisher, err := events.NewAMQPPublisher(cfg.RabbitMQURL, cfg.EventExchange)
	if err != nil {
		log.Fatal("rabbitmq connection error", zap.Error(err))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("error closing rabbitmq", zap.Error(err))
		}
	}()
	log.Info("connected to RabbitMQ")

	relay := events.NewRelay(events.NewPgStore(pgPool), publisher, db.NewTxRunner(pgPool), cfg.RelayBatchSize, log)

	// Run once at startup
	drain(rootCtx, relay, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping event relay")
			return
		case <-ticker.C:
			if !publisher.Healthy() {
				log.Error("rabbitmq connection lost, exiting for restart")
				return
			}
			drain(rootCtx, relay, log)
		}
	}
}

// drain publishes full batches until the log is caught up.
func drain(ctx context.Context, relay *events.Relay, log *zap.Logger) {
	start := time.Now()
	total := 0

	for ctx.Err() == nil {
		runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		n, err := relay.RunOnce(runCtx)
		cancel()

		total += n
		if err != nil {
			log.Error("relay run error", zap.Error(err))
			break
		}
		if n < relay.BatchSize() {
			break
		}
	}

	if total > 0 {
		log.Info("relay run complete", zap.Int("published", total), zap.Duration("took", time.Since(start)))
	}
}
