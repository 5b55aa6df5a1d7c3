package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"dispatchd/internal/awsutil"
	"dispatchd/internal/config"
	"dispatchd/internal/dispatch"
	"dispatchd/internal/health"
	"dispatchd/internal/httpserver"
	"dispatchd/internal/ledger"
	"dispatchd/internal/logging"
	"dispatchd/internal/observability"
	"dispatchd/internal/providers"
	sqsqueue "dispatchd/internal/queue/sqs"
	"dispatchd/internal/settings"
)

func main() {
	cfg := config.LoadAPI()
	logging.Init("api", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := ledger.NewPool(ctx, cfg.DBDSN, ledger.PoolOptions{
		MaxConns:          cfg.DBPoolMaxConns,
		MinConns:          cfg.DBPoolMinConns,
		MaxConnLifetime:   cfg.DBPoolMaxConnLifetime,
		MaxConnIdleTime:   cfg.DBPoolMaxConnIdleTime,
		HealthCheckPeriod: cfg.DBPoolHealthCheckPeriod,
	})
	if err != nil {
		slog.Error("api db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	observability.Register(prometheus.DefaultRegisterer)

	logs := ledger.New(db)
	settingsStore := settings.NewStore(db)

	dispatcher := &dispatch.Dispatcher{
		Settings: settingsStore,
		Adapters: providers.NewSelector(cfg.ProviderTimeout),
		Ledger:   logs,
		Timeout:  cfg.ProviderTimeout,
		Breakers: dispatch.NewBreakerSet(),
	}

	aggregator := &health.Aggregator{
		Settings:    settingsStore,
		Dispatcher:  dispatcher,
		Concurrency: cfg.BulkTestConcurrency,
		Limiter:     rate.NewLimiter(rate.Limit(cfg.BulkTestRPS), cfg.BulkTestBurst),
	}

	api := &httpserver.API{
		Dispatcher: dispatcher,
		Health:     aggregator,
		Logs:       logs,
		Validate:   validator.New(),
	}

	// Enqueue path is optional; without a queue the API still dispatches
	// synchronously.
	if cfg.SQSQueueURL != "" {
		sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
		if err != nil {
			slog.Error("api sqs client init failed", "err", err)
			os.Exit(1)
		}
		api.Enqueuer = &sqsqueue.Producer{SQS: sqsClient, QueueURL: cfg.SQSQueueURL}
	}

	s := httpserver.New()
	api.Register(s.Mux)

	s.Mux.HandleFunc("/healthz", httpserver.Healthz())
	s.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second, func(ctx context.Context) error {
		return db.Ping(ctx)
	}))

	handler := httpserver.Logging(httpserver.Metrics(observability.APIRequests)(s.Mux))
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("api shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", "err", err)
		os.Exit(1)
	}
}
