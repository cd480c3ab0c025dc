package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hydrowatch/reservoir-pipeline/internal/adapter/cdec"
	"github.com/hydrowatch/reservoir-pipeline/internal/adapter/httpapi"
	kafkaadapter "github.com/hydrowatch/reservoir-pipeline/internal/adapter/kafka"
	"github.com/hydrowatch/reservoir-pipeline/internal/config"
	"github.com/hydrowatch/reservoir-pipeline/internal/configstore"
	"github.com/hydrowatch/reservoir-pipeline/internal/observability"
	"github.com/hydrowatch/reservoir-pipeline/internal/pipeline"
	"github.com/hydrowatch/reservoir-pipeline/internal/scheduler"
	"github.com/hydrowatch/reservoir-pipeline/internal/store"
)

// readiness gates /readyz on the store and the consumer loop.
type readiness struct {
	gateway  *store.Gateway
	consumer *pipeline.Consumer
}

func (r *readiness) CheckReadiness(ctx context.Context) error {
	if err := r.gateway.Ping(ctx); err != nil {
		return err
	}
	if !r.consumer.Ready() {
		return errors.New("consumer not subscribed")
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateway, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("store init failed", "error", err)
		os.Exit(1)
	}
	defer gateway.Close()

	schemaCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = gateway.EnsureSchema(schemaCtx)
	cancel()
	if err != nil {
		logger.Error("schema init failed", "error", err)
		os.Exit(1)
	}

	bus := kafkaadapter.NewBus(cfg.KafkaBrokers, logger)
	configs := configstore.NewFile(cfg.ConfigFile)
	fetcher := cdec.NewClient(cfg, logger)
	staging := cdec.NewStaging(cfg.CSVDir)

	fetchRun := pipeline.NewFetchRun(fetcher, staging, gateway, logger, metrics)
	replay := pipeline.NewReplay(configs, gateway,
		func(ctx context.Context) (pipeline.Publisher, error) { return bus.NewPublisher(ctx) },
		cfg.TopicScheme, logger, metrics)
	consumer := pipeline.NewConsumer(gateway, logger, metrics)

	srv := httpapi.NewServer(cfg.HTTPAddr, configs, fetchRun, replay, gateway,
		&readiness{gateway: gateway, consumer: consumer}, cfg.TopicScheme, logger)

	subscribe := func(ctx context.Context, handler func(ctx context.Context, topic string, payload []byte)) (pipeline.DeliveryLoop, error) {
		sub, err := bus.Subscribe(ctx, cfg.ConsumerGroupID, cfg.ConsumerTopics, handler)
		if err != nil {
			return nil, err
		}
		return sub, nil
	}
	go func() {
		if err := consumer.Run(ctx, subscribe); err != nil {
			logger.Error("consumer stopped", "error", err)
		}
	}()

	sched := scheduler.New(fetchRun, cfg.FetchDailyAt, logger)
	if err := sched.Start(); err != nil {
		logger.Error("scheduler start failed", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	if err := srv.Run(ctx, cfg.ShutdownTimeout); err != nil {
		logger.Error("http server error", "error", err)
	}

	logger.Info("shutdown complete")
}
