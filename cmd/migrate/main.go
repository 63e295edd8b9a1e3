package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"depth-whale-monitor/internal/config"
	"depth-whale-monitor/internal/storage/migrations"
	pgstore "depth-whale-monitor/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file")
	backend := flag.String("backend", "", "clickhouse or postgres (overrides config)")
	dsn := flag.String("dsn", "", "Database DSN (overrides config)")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall migration timeout")

	flag.Parse()

	logger := log.New(os.Stdout, "[migrate] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch cfg.Storage.Backend {
	case "clickhouse":
		target := cfg.Storage.ClickHouseDSN
		if *dsn != "" {
			target = *dsn
		}
		conn, err := migrations.RunClickhouseMigrations(ctx, target)
		if err != nil {
			logger.Fatalf("ClickHouse migrations: %v", err)
		}
		conn.Close()

	case "postgres":
		target := cfg.Storage.PostgresDSN
		if *dsn != "" {
			target = *dsn
		}
		if target == "" {
			logger.Fatal("--dsn or storage.postgres_dsn is required for postgres")
		}
		pool, err := pgstore.NewPool(ctx, target)
		if err != nil {
			logger.Fatalf("Connect to postgres: %v", err)
		}
		err = migrations.RunPostgresMigrations(ctx, pool)
		pool.Close()
		if err != nil {
			logger.Fatalf("Postgres migrations: %v", err)
		}

	default:
		logger.Fatalf("Unsupported backend %q (want clickhouse or postgres)", cfg.Storage.Backend)
	}

	logger.Printf("%s migrations applied", cfg.Storage.Backend)
}
