package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"dispatchd/internal/awsutil"
	"dispatchd/internal/config"
	"dispatchd/internal/dispatch"
	"dispatchd/internal/httpserver"
	"dispatchd/internal/ledger"
	"dispatchd/internal/logging"
	"dispatchd/internal/observability"
	"dispatchd/internal/providers"
	sqsqueue "dispatchd/internal/queue/sqs"
	"dispatchd/internal/settings"
	workerproc "dispatchd/internal/worker"
)

func main() {
	cfg := config.LoadWorker()
	logging.Init("worker", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())

	db, err := ledger.NewPool(ctx, cfg.DBDSN, ledger.PoolOptions{
		MaxConns:          cfg.DBPoolMaxConns,
		MinConns:          cfg.DBPoolMinConns,
		MaxConnLifetime:   cfg.DBPoolMaxConnLifetime,
		MaxConnIdleTime:   cfg.DBPoolMaxConnIdleTime,
		HealthCheckPeriod: cfg.DBPoolHealthCheckPeriod,
	})
	if err != nil {
		slog.Error("worker db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
	if err != nil {
		slog.Error("worker sqs client init failed", "err", err)
		os.Exit(1)
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()

	if err := db.Ping(startupCtx); err != nil {
		slog.Error("db not reachable", "err", err)
		os.Exit(1)
	}
	if _, err := sqsClient.GetQueueAttributes(startupCtx, &sqs.GetQueueAttributesInput{
		QueueUrl:       &cfg.SQSQueueURL,
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	}); err != nil {
		slog.Error("sqs not reachable", "err", err)
		os.Exit(1)
	}

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

	processor := &workerproc.Processor{Dispatcher: dispatcher}
	if cfg.DedupeEnabled {
		processor.Dedupe = logs
	}

	consumer := &sqsqueue.Consumer{
		SQS: sqsClient, QueueURL: cfg.SQSQueueURL,
		WaitTimeSeconds:   cfg.SQSWaitTime,
		MaxMessages:       cfg.SQSMaxMsgs,
		VisibilityTimeout: cfg.SQSVizTimeout,
	}

	// health server (liveness + readiness)
	healthSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpserver.Logging(healthMux(db, sqsClient, cfg.SQSQueueURL)),
	}

	healthErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker health listening", "port", cfg.Port)
		healthErrCh <- healthSrv.ListenAndServe()
	}()

	pollErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker starting poll", "queue_url", cfg.SQSQueueURL)
		pollErrCh <- consumer.PollConcurrent(ctx, cfg.WorkerConcurrency, func(ctx context.Context, job sqsqueue.DispatchJob) (err error) {
			start := time.Now()
			defer func() {
				status := "ok"
				if err != nil {
					status = "error"
				}
				slog.Info("worker job finish",
					"event_type", job.EventType,
					"recipient", job.Recipient,
					"status", status,
					"duration", time.Since(start),
				)
			}()
			return processor.Process(ctx, job)
		})
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-pollErrCh:
		if err != nil && err != context.Canceled {
			slog.Error("worker poll failed", "err", err)
			os.Exit(1)
		}
	case err := <-healthErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("worker health server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("worker shutdown", "signal", sig.String())
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	select {
	case <-pollErrCh:
	case <-time.After(10 * time.Second):
		slog.Info("worker shutdown timeout waiting for poll loop")
	}
}

func healthMux(db *pgxpool.Pool, sqsClient *sqs.Client, queueURL string) http.Handler {
	m := http.NewServeMux()
	m.HandleFunc("/healthz", httpserver.Healthz())
	m.HandleFunc("/readyz", httpserver.Readyz(2*time.Second,
		func(c context.Context) error { return db.Ping(c) },
		func(c context.Context) error {
			_, err := sqsClient.GetQueueAttributes(c, &sqs.GetQueueAttributesInput{
				QueueUrl:       &queueURL,
				AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
			})
			return err
		},
	))
	return m
}
