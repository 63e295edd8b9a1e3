package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"depth-whale-monitor/internal/archive"
	rediscache "depth-whale-monitor/internal/cache/redis"
	"depth-whale-monitor/internal/batch"
	"depth-whale-monitor/internal/config"
	"depth-whale-monitor/internal/ingestion"
	"depth-whale-monitor/internal/notify"
	"depth-whale-monitor/internal/observability"
	"depth-whale-monitor/internal/orderbook"
	"depth-whale-monitor/internal/session"
	"depth-whale-monitor/internal/stats"
	"depth-whale-monitor/internal/storage"
	chstore "depth-whale-monitor/internal/storage/clickhouse"
	"depth-whale-monitor/internal/storage/memory"
	"depth-whale-monitor/internal/storage/migrations"
	pgstore "depth-whale-monitor/internal/storage/postgres"
	"depth-whale-monitor/internal/whale"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (built-in defaults when empty)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of the configured backend")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address, overrides config (\"-\" to disable)")

	flag.Parse()

	logger := log.New(os.Stdout, "[monitor] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}
	if *useMemory {
		cfg.Storage.Backend = "memory"
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	grace := cfg.Batch.FinalFlushTimeout.Duration + 10*time.Second

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(grace):
			logger.Printf("Graceful shutdown timed out after %s, forcing exit", grace)
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, logger, cfg)

	done <- err
	cancel()

	if err != nil {
		logger.Fatalf("Error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// sinks is the opened persistence backend.
type sinks struct {
	points   storage.PointSink
	sessions storage.SessionLog
	close    func()
}

func openStorage(ctx context.Context, logger *log.Logger, cfg *config.Config) (*sinks, error) {
	switch cfg.Storage.Backend {
	case "memory":
		logger.Println("Using in-memory storage")
		return &sinks{points: memory.NewPointStore(), sessions: memory.NewSessionLog(), close: func() {}}, nil

	case "clickhouse":
		var (
			conn *chstore.Conn
			err  error
		)
		if cfg.Storage.RunMigrations {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.Storage.ClickHouseDSN)
		}
		if err != nil {
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		logger.Println("Using ClickHouse storage")
		return &sinks{
			points:   chstore.NewPointStore(conn),
			sessions: chstore.NewSessionLog(conn),
			close:    func() { conn.Close() },
		}, nil

	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if cfg.Storage.RunMigrations {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("postgres migrations: %w", err)
			}
		}
		logger.Println("Using PostgreSQL storage")
		return &sinks{
			points:   pgstore.NewPointStore(pool),
			sessions: pgstore.NewSessionLog(pool),
			close:    pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// run wires the monitor and blocks until ctx is cancelled or a task fails.
// Shutdown order: the session stops, the queue closes, the writer performs
// its final flush, then storage connections close.
func run(ctx context.Context, logger *log.Logger, cfg *config.Config) error {
	st, err := openStorage(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	queue := batch.NewQueue(cfg.Queue(), logger)

	writerOpts := batch.Options{Logger: logger}
	if cfg.Archive.Bucket != "" {
		dl, err := archive.New(ctx, archive.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
			Prefix:         cfg.Archive.Prefix,
		}, logger)
		if err != nil {
			return fmt.Errorf("dead-letter archive: %w", err)
		}
		if err := dl.Health(ctx); err != nil {
			logger.Printf("WARN: %v", err)
		}
		writerOpts.DeadLetter = dl
		logger.Printf("Archiving dropped batches to s3://%s/%s", cfg.Archive.Bucket, cfg.Archive.Prefix)
	}
	writer := batch.NewWriter(cfg.Writer(), st.points, queue, writerOpts)

	g, gctx := errgroup.WithContext(ctx)

	var notifier ingestion.Notifier
	if cfg.NotifyEnabled() {
		var senders []notify.Sender
		if cfg.Notify.TelegramToken != "" {
			senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
		}
		if len(cfg.Notify.KafkaBrokers) > 0 {
			ks := notify.NewKafkaSender(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
			defer ks.Close()
			senders = append(senders, ks)
		}
		dispatcher := notify.NewDispatcher(notify.Config{
			MinCategory: cfg.NotifyMinCategory(),
			Buffer:      cfg.Notify.Buffer,
		}, senders, logger)
		notifier = dispatcher
		g.Go(func() error { return dispatcher.Run(gctx) })
		logger.Printf("Notifying %s+ events via %d sender(s)", cfg.Notify.MinCategory, len(senders))
	}

	var publisher ingestion.StatsPublisher
	if cfg.Redis.Addr != "" {
		client, err := rediscache.New(ctx, rediscache.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Printf("WARN: stats cache disabled: %v", err)
		} else {
			defer client.Close()
			cache := rediscache.NewStatsCache(client, rediscache.StatsCacheConfig{
				KeyPrefix: cfg.Redis.KeyPrefix,
				TTL:       cfg.Redis.TTL.Duration,
			}, logger)
			publisher = cache
			g.Go(func() error { return cache.Run(gctx) })
		}
	}

	pipeline := ingestion.NewPipeline(cfg.Pipeline(), ingestion.Options{
		Store:      orderbook.NewStore(cfg.OrderBook()),
		Calculator: stats.NewCalculator(cfg.Bands()),
		Classifier: whale.NewClassifier(cfg.Thresholds()),
		Queue:      queue,
		Notifier:   notifier,
		StatsCache: publisher,
		Logger:     logger,
	})

	venueCfg := cfg.VenueClient()
	manager := session.NewManager(cfg.SessionManager(), session.Options{
		Dialer:   session.VenueDialer(cfg.Venue.URL, &venueCfg),
		Handler:  pipeline,
		Sessions: st.sessions,
		Logger:   logger,
	})

	g.Go(func() error {
		defer queue.Close()
		if err := manager.Run(gctx); err != nil {
			return fmt.Errorf("session: %w", err)
		}
		return nil
	})

	// The writer is stopped by the queue closing, not by gctx, so the final
	// flush sees every point the session enqueued.
	g.Go(func() error {
		return writer.Run(context.WithoutCancel(gctx))
	})

	if addr := cfg.Metrics.Addr; addr != "" && addr != "-" {
		startMetricsServer(gctx, g, logger, addr)
	}

	logger.Printf("Monitoring %s (depth %d) at %s", cfg.Venue.Symbol, cfg.Venue.Depth, cfg.Venue.URL)
	err = g.Wait()

	ws := writer.Stats()
	ss := manager.Stats()
	ps := pipeline.Stats()
	logger.Printf("Session: connects=%d reconnects=%d gaps=%d malformed=%d rejected=%d",
		ss.Connects, ss.Reconnects, ss.Gaps, ss.Malformed, ss.Rejected)
	logger.Printf("Pipeline: snapshots=%d diffs=%d trades=%d whales=%d",
		ps.Snapshots, ps.DiffEvents, ps.Trades, ps.WhaleEvents)
	logger.Printf("Writer: flushes=%d points=%d retries=%d dropped_batches=%d dropped_points=%d queue_dropped=%d",
		ws.Flushes, ws.PointsFlushed, ws.Retries, ws.BatchesDropped, ws.PointsDropped, queue.Dropped())

	return err
}

func startMetricsServer(ctx context.Context, g *errgroup.Group, logger *log.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		logger.Printf("Starting metrics server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
