package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"imageflow/internal/config"
	"imageflow/internal/logging"
	"imageflow/internal/repository"
	"imageflow/internal/services"
	"imageflow/internal/worker"
)

func main() {
	ctx := context.Background()

	logger := logging.NewLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err.Error())
		log.Fatalf("Configuration loading failed: %v", err)
	}

	logger.Info("Starting Image Generation Worker",
		"engine_url", cfg.Engine.URL,
		"poll_interval", cfg.Worker.PollInterval.String(),
	)

	dbPool, err := initDatabase(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err.Error())
		log.Fatalf("Database initialization failed: %v", err)
	}
	defer dbPool.Close()

	logger.Info("Database connected")

	store := repository.NewPostgresStore(dbPool)

	// The engine handle lives for the whole process; the worker receives it
	// here rather than constructing one lazily mid-loop.
	engine := services.NewHTTPEngineClient(cfg.Engine.URL, cfg.Engine.Timeout)

	w := worker.New(store, engine, logger,
		worker.WithPollInterval(cfg.Worker.PollInterval),
		worker.WithDefaultModelID(cfg.Worker.DefaultModelID),
	)
	w.Start()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown

	logger.Info("Shutdown signal received", "signal", sig.String())

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		logger.Error("Worker shutdown error", "error", err.Error())
	}
}

func initDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
