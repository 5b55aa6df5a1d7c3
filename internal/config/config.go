package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type APIConfig struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	DBPoolMaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	DBPoolMinConns          int32  `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBPoolMaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME" default:"30m"`
	DBPoolMaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME" default:"5m"`
	DBPoolHealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD" default:"1m"`

	// Per-call bound on one provider send.
	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"15s"`

	// Bulk-test fan-out rails.
	BulkTestConcurrency int     `envconfig:"BULK_TEST_CONCURRENCY" default:"4"`
	BulkTestRPS         float64 `envconfig:"BULK_TEST_RPS" default:"2"`
	BulkTestBurst       int     `envconfig:"BULK_TEST_BURST" default:"2"`

	// AWS / SQS. Optional: the enqueue endpoint is disabled when no queue
	// URL is configured.
	AWSRegion          string `envconfig:"AWS_REGION"`
	SQSQueueURL        string `envconfig:"SQS_QUEUE_URL"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
}

type WorkerConfig struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	DBPoolMaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	DBPoolMinConns          int32  `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBPoolMaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME" default:"30m"`
	DBPoolMaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME" default:"5m"`
	DBPoolHealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD" default:"1m"`

	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"15s"`

	// AWS / SQS
	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	SQSQueueURL        string `envconfig:"SQS_QUEUE_URL" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
	SQSWaitTime        int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs         int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout      int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"60"`

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"8"`

	// DedupeEnabled guards scheduler-driven reminders against double fire.
	DedupeEnabled bool `envconfig:"DEDUPE_ENABLED" default:"true"`
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWorker() WorkerConfig {
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
