package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aescanero/dago-node-renderer/internal/config"
	"github.com/aescanero/dago-node-renderer/internal/job"
	"github.com/aescanero/dago-node-renderer/internal/render"
	"github.com/aescanero/dago-node-renderer/internal/store"
	"github.com/aescanero/dago-node-renderer/internal/watcher"
	"github.com/aescanero/dago-node-renderer/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set at build time
	Version = "dev"
	// BuildTime is set at build time
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting renderer worker",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("worker_id", cfg.WorkerID),
	)

	// Log configuration (without sensitive data)
	logger.Info("configuration loaded", zap.String("config", cfg.String()))

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// Test Redis connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	// Initialize render engine over the local filesystem
	files := store.NewOSStore()
	engine, err := render.New(
		render.WithRoot(cfg.TemplateRoot),
		render.WithLayout(cfg.Layout),
		render.WithExtension(cfg.Extension),
		render.WithNoCache(cfg.Debug),
		render.WithStore(files),
		render.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("failed to initialize render engine", zap.Error(err))
	}
	logger.Info("render engine initialized",
		zap.String("root", engine.Root()),
		zap.Bool("no_cache", cfg.Debug),
	)

	// Initialize state store and job runner
	stateStore := worker.NewRedisStateStore(redisClient, cfg.StateKeyPrefix, logger)
	runner := job.NewRunner(engine, stateStore, files, logger)

	// Watch templates for changes (optional)
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	watchDone := make(chan struct{})
	if cfg.Watch && !cfg.Debug {
		tw, err := watcher.New(engine.Root(), engine.Cache(), cfg.WatchDebounce, logger)
		if err != nil {
			logger.Fatal("failed to start template watcher", zap.Error(err))
		}
		go func() {
			defer close(watchDone)
			tw.Run(watchCtx)
		}()
	} else {
		close(watchDone)
	}

	// Initialize worker
	w := worker.NewWorker(cfg, redisClient, runner, logger)

	// Start worker
	if err := w.Start(); err != nil {
		logger.Fatal("failed to start worker", zap.Error(err))
	}

	// Start health server
	healthServer := worker.NewHealthServer(cfg.HealthPort, redisClient, files, engine.Root(), engine.Cache(), logger)
	if err := healthServer.Start(); err != nil {
		logger.Fatal("failed to start health server", zap.Error(err))
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("renderer worker running, press Ctrl+C to stop")
	<-sigChan

	logger.Info("shutdown signal received, stopping worker")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop health server
	if err := healthServer.Stop(); err != nil {
		logger.Error("failed to stop health server", zap.Error(err))
	}

	// Stop worker
	if err := w.Stop(); err != nil {
		logger.Error("failed to stop worker", zap.Error(err))
	}

	// Stop watcher
	stopWatch()
	select {
	case <-watchDone:
	case <-shutdownCtx.Done():
	}

	// Close Redis connection
	if err := redisClient.Close(); err != nil {
		logger.Error("failed to close redis connection", zap.Error(err))
	}

	select {
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, forcing exit")
	default:
		logger.Info("worker stopped gracefully")
	}
}

// initLogger initializes the logger
func initLogger(level string) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}
