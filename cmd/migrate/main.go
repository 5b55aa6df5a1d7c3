package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kelseyhightower/envconfig"

	"dispatchd/internal/logging"
)

type config struct {
	DBDSN      string `envconfig:"DB_DSN" required:"true"`
	SchemaPath string `envconfig:"SCHEMA_PATH" default:"db/schema.sql"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"text"`
}

func main() {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	logging.Init("migrate", cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		slog.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	schema, err := os.ReadFile(cfg.SchemaPath)
	if err != nil {
		slog.Error("read schema failed", "err", err, "path", cfg.SchemaPath)
		os.Exit(1)
	}

	if _, err := db.Exec(ctx, string(schema)); err != nil {
		slog.Error("apply schema failed", "err", err)
		os.Exit(1)
	}
	slog.Info("schema applied", "path", cfg.SchemaPath)
}
