package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/ingestd/internal/config"
	"github.com/me/ingestd/internal/executor"
	"github.com/me/ingestd/internal/idempotency"
	"github.com/me/ingestd/internal/logging"
	"github.com/me/ingestd/internal/scheduler"
	"github.com/me/ingestd/internal/server"
	"github.com/me/ingestd/internal/status"
	"github.com/me/ingestd/internal/store"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite status journal path (overrides config; empty disables)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text, json, pretty)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	// Flags win over file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "db":
			cfg.DBPath = *dbPath
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		}
	})
	if *debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config:\n%v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, closeCache, err := newCache(ctx, cfg.Idempotency, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "idempotency cache: %v\n", err)
		os.Exit(1)
	}
	defer closeCache()

	exec, err := newExecutor(cfg.Executor, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "executor: %v\n", err)
		os.Exit(1)
	}

	policy, err := status.ParsePolicy(cfg.Scheduler.RollupPolicy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	aggOpts := []status.Option{status.WithPolicy(policy)}

	// Optional status journal.
	if cfg.DBPath != "" {
		st, err := store.NewSQLiteStore(cfg.DBPath, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open database: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
			os.Exit(1)
		}
		logger.Info("database ready", "path", cfg.DBPath)
		aggOpts = append(aggOpts, status.WithJournal(st))
	}

	agg := status.NewAggregator(logger, aggOpts...)
	if cfg.DBPath != "" {
		n, err := agg.FailInterrupted(ctx, "scheduler restarted", time.Now().UTC())
		if err != nil {
			fmt.Fprintf(os.Stderr, "recover journal: %v\n", err)
			os.Exit(1)
		}
		if n > 0 {
			logger.Warn("closed out submissions interrupted by a previous run", "count", n)
		}
	}

	sched := scheduler.New(scheduler.Config{
		BatchSize:       cfg.Scheduler.BatchSize,
		InterBatchDelay: cfg.Scheduler.InterBatchDelay,
		IdlePoll:        cfg.Scheduler.IdlePoll,
		FaultBackoff:    cfg.Scheduler.FaultBackoff,
		ItemTimeout:     cfg.Scheduler.ItemTimeout,
	}, cache, agg, exec, logger)

	srv := server.New(cfg, sched, logger)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	// Start scheduler in background.
	srv.StartScheduler(ctx)

	go func() {
		logger.Info("server starting",
			"addr", cfg.Addr,
			"batch_size", cfg.Scheduler.BatchSize,
			"inter_batch_delay", cfg.Scheduler.InterBatchDelay,
			"executor", exec.Type(),
			"idempotency", cfg.Idempotency.Backend,
			"rollup_policy", policy,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Stop scheduler before HTTP server; the in-flight batch finishes first.
	if err := sched.Stop(); err != nil {
		logger.Error("scheduler stop error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped", "pending_batches", sched.QueueDepth())
}

// newCache builds the configured idempotency cache and a func releasing its
// resources.
func newCache(ctx context.Context, cfg config.IdempotencyConfig, logger *slog.Logger) (idempotency.Cache, func(), error) {
	switch cfg.Backend {
	case config.BackendRedis:
		client, err := idempotency.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("redis idempotency cache ready", "addr", cfg.RedisAddr, "window", cfg.Window)
		cache := idempotency.NewRedisCache(client, idempotency.RedisOptions{
			Prefix: cfg.RedisPrefix,
			Window: cfg.Window,
		})
		return cache, func() { client.Close() }, nil
	default:
		return idempotency.NewMemoryCache(cfg.Window), func() {}, nil
	}
}

// newExecutor registers the available executors and returns the configured one.
func newExecutor(cfg config.ExecutorConfig, logger *slog.Logger) (executor.Executor, error) {
	reg := executor.NewRegistry(logger)
	reg.Register(executor.NewSimulatedExecutor(cfg.Latency, cfg.SuccessRate, nil))
	if cfg.URL != "" {
		reg.Register(executor.NewHTTPExecutor(cfg.URL, cfg.Timeout, logger))
	}
	return reg.Get(cfg.Type)
}
