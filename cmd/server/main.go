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

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/cache"
	"github.com/Harsh-BH/geocache/internal/config"
	handler "github.com/Harsh-BH/geocache/internal/delivery/http"
	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/geocoder"
	"github.com/Harsh-BH/geocache/internal/logger"
	"github.com/Harsh-BH/geocache/internal/probe"
	"github.com/Harsh-BH/geocache/internal/publisher"
	"github.com/Harsh-BH/geocache/internal/repository/postgres"
	redisrepo "github.com/Harsh-BH/geocache/internal/repository/redis"
	"github.com/Harsh-BH/geocache/internal/spatial"
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

	log.Info("Starting geocache API server", zap.String("version", version))

	gin.SetMode(cfg.Server.GinMode)

	ctx := context.Background()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, version, cfg.Telemetry.Endpoint, cfg.Telemetry.SampleRatio, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping PostgreSQL", zap.Error(err))
	}
	log.Info("Connected to PostgreSQL")

	// Connect to Redis. The cache is best effort, so an unreachable Redis is
	// logged but does not stop startup.
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unreachable, serving without cache", zap.Error(err))
	} else {
		log.Info("Connected to Redis")
	}

	// RabbitMQ publisher dials lazily; the probe decides per request.
	pub := publisher.NewRabbitMQPublisher(cfg.RabbitMQ.URL, log)
	defer pub.Close()
	brokerProbe := probe.NewBrokerProbe(pub, cfg.Geo.ProbeTimeout, cfg.Geo.RequireConsumers, log)

	// Repositories
	store := cache.NewStore(redisrepo.NewResultStore(rdb), cfg.Redis.OpTimeout, log)
	jobs := redisrepo.NewJobStore(rdb)
	mapRepo := postgres.NewPostgresMapItemRepository(dbPool)

	gc := geocoder.NewDefaultChain(cfg.Providers, log)
	ttls := usecase.TTLs{Result: cfg.Geo.ResultTTL, Job: cfg.Geo.JobTTL}

	// Use cases
	dispatchUC := usecase.NewDispatchUsecase(store, jobs, brokerProbe, pub, ttls, log)
	resolveUC := usecase.NewResolveUsecase(dispatchUC, jobs, usecase.ResolveConfig{
		PollWindow:      cfg.Geo.PollWindow,
		PollInterval:    cfg.Geo.PollInterval,
		ProcessingGrace: cfg.Geo.ProcessingGrace,
		ProviderTimeout: cfg.Geo.ProviderTimeout,
	}, log)
	getJobUC := usecase.NewGetJobUsecase(jobs, log)
	mapUC := usecase.NewMapItemsUsecase(mapRepo, spatial.New[domain.MapItem](store, log), map[domain.Category]spatial.Policy{
		domain.CategoryIncident: {TTL: cfg.Spatial.IncidentTTL, Stale: cfg.Spatial.IncidentStale},
		domain.CategoryEvent:    {TTL: cfg.Spatial.EventTTL, Stale: cfg.Spatial.EventStale},
	}, log)

	router := handler.NewRouter(handler.Usecases{
		Resolve:  resolveUC,
		Dispatch: dispatchUC,
		GetJob:   getJobUC,
		MapItems: mapUC,
		Direct:   gc.Geocode,
	}, map[string]handler.Checker{
		"postgres": dbPool.Ping,
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
		"rabbitmq": func(ctx context.Context) error {
			if !brokerProbe.IsAvailable(ctx) {
				return domain.ErrBrokerUnavailable
			}
			return nil
		},
	}, log, cfg.Server.RateLimit)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("API server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	store.Flush()
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Warn("Tracer shutdown failed", zap.Error(err))
	}

	log.Info("API server stopped")
}
