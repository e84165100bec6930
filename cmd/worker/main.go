package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/cache"
	"github.com/Harsh-BH/geocache/internal/config"
	amqpdelivery "github.com/Harsh-BH/geocache/internal/delivery/amqp"
	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/geocoder"
	"github.com/Harsh-BH/geocache/internal/logger"
	"github.com/Harsh-BH/geocache/internal/pool"
	redisrepo "github.com/Harsh-BH/geocache/internal/repository/redis"
	"github.com/Harsh-BH/geocache/internal/telemetry"
	"github.com/Harsh-BH/geocache/internal/usecase"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting geocache worker", zap.String("version", version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName+"-worker", version, cfg.Telemetry.Endpoint, cfg.Telemetry.SampleRatio, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Connect to Redis. Job records and locks live here, so the worker needs it.
	redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal("Invalid Redis URL", zap.Error(err))
	}
	redisClient := goredis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis")

	// Repositories
	store := cache.NewStore(redisrepo.NewResultStore(redisClient), cfg.Redis.OpTimeout, log)
	jobs := redisrepo.NewJobStore(redisClient)
	idempotencyStore := redisrepo.NewRedisIdempotencyStore(redisClient)

	gc := geocoder.NewDefaultChain(cfg.Providers, log)

	processUC := usecase.NewProcessJobUsecase(
		jobs,
		idempotencyStore,
		gc,
		store,
		usecase.TTLs{Result: cfg.Geo.ResultTTL, Job: cfg.Geo.JobTTL},
		cfg.Geo.ProviderTimeout,
		log,
	)

	jobsChan := make(chan *domain.JobMessage, cfg.Worker.PoolSize)

	consumer, err := amqpdelivery.NewConsumer(cfg.RabbitMQ.URL, cfg.Worker.PoolSize, jobsChan, log)
	if err != nil {
		log.Fatal("Failed to initialize AMQP consumer", zap.Error(err))
	}
	defer consumer.Close()
	log.Info("Connected to RabbitMQ")

	workerPool := pool.NewWorkerPool(cfg.Worker.PoolSize, jobsChan, processUC, log)
	workerPool.Start(ctx)

	go func() {
		if err := consumer.Start(ctx); err != nil {
			log.Error("AMQP consumer error", zap.Error(err))
			cancel()
		}
	}()

	// Prometheus metrics server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Metrics server listening", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("Shutting down worker...")
	cancel()

	// In-flight jobs finish; unacked deliveries go back to the queue on Close.
	workerPool.Stop()
	store.Flush()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Metrics server shutdown failed", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Warn("Tracer shutdown failed", zap.Error(err))
	}

	log.Info("Worker stopped")
}
