// Command relayd runs the event relay as a standalone HTTP service.
//
// Configuration is entirely environment-driven; there are no subcommands
// and no config file, so this stays on stdlib os.Getenv rather than pulling
// in a CLI framework for a single binary.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"

	eventrelay "github.com/relayhq/eventrelay"
	"github.com/relayhq/eventrelay/api"
	"github.com/relayhq/eventrelay/queue"
	"github.com/relayhq/eventrelay/queue/memqueue"
	"github.com/relayhq/eventrelay/queue/redisqueue"
	"github.com/relayhq/eventrelay/store"
	"github.com/relayhq/eventrelay/store/memory"
	"github.com/relayhq/eventrelay/store/postgres"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("relayd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	q := openQueue(logger)

	r, err := eventrelay.New(
		eventrelay.WithStore(st),
		eventrelay.WithQueue(q),
		eventrelay.WithLogger(logger),
		eventrelay.WithConcurrency(envInt("WEBHOOK_CONCURRENCY", 5)),
		eventrelay.WithRequestTimeout(envDuration("WEBHOOK_TIMEOUT", 30*time.Second)),
		eventrelay.WithMaxRetryAttempts(envInt("MAX_RETRY_ATTEMPTS", 3)),
	)
	if err != nil {
		return fmt.Errorf("construct relay: %w", err)
	}

	r.Start(ctx)
	defer r.Stop(context.Background())

	handler := api.NewHandler(r.Store(), r, r.Subscriptions(), r.Admin(), r.Catalog(), logger)

	addr := ":" + envString("PORT", "3000")
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("relayd listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	logger.Info("relayd stopped cleanly")
	return nil
}

func openStore(ctx context.Context, logger *slog.Logger) (store.Store, func(), error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store (data is not durable)")
		st := memory.New()
		return st, func() {}, nil
	}

	pgdb := pgdriver.New()
	if err := pgdb.Open(ctx, dsn); err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db, err := grove.Open(pgdb)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	st := postgres.New(db)
	return st, func() { st.Close() }, nil
}

func openQueue(logger *slog.Logger) queue.Queue {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		logger.Warn("REDIS_URL not set, using in-memory queue (jobs are not durable across restarts)")
		return memqueue.New()
	}

	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL, falling back to in-memory queue", "error", err)
		return memqueue.New()
	}

	rdb := goredis.NewClient(opts)
	return redisqueue.New(rdb)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
