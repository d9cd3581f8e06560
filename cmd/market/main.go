package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_cart/market/internal/cache"
	"github.com/fjod/go_cart/market/internal/config"
	h "github.com/fjod/go_cart/market/internal/http"
	"github.com/fjod/go_cart/market/internal/logger"
	"github.com/fjod/go_cart/market/internal/publisher"
	"github.com/fjod/go_cart/market/internal/repository"
	"github.com/fjod/go_cart/market/internal/service"
	"github.com/fjod/go_cart/market/internal/session"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	repo, err := repository.NewRepository(&repository.Credentials{
		Driver:   repository.Dialect(cfg.DB.Driver),
		Path:     cfg.DB.Path,
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		DBName:   cfg.DB.Name,
	})
	if err != nil {
		zl.Fatal("failed to connect to database", zap.String("driver", cfg.DB.Driver), zap.Error(err))
	}
	defer repo.Close()

	if err := repo.RunMigrations(); err != nil {
		zl.Fatal("failed to run migrations", zap.Error(err))
	}
	zl.Info("database ready", zap.String("driver", cfg.DB.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		zl.Fatal("redis connection failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	zl.Info("redis ping succeeded")

	sessions := session.NewRedisStore(redisClient, cfg.SessionTTL)
	cartCache := cache.NewBreakerCache(cache.NewRedisCache(redisClient, cfg.CartCacheTTL), zl)

	carts := service.NewCartService(repo, cartCache, zl)
	catalog := service.NewCatalogService(repo, time.Now)

	var workers sync.WaitGroup
	if cfg.PublishingEnabled() {
		poller := publisher.NewOutboxPoller(repo, publisher.NewKafkaWriter(cfg.OutboxTopic, cfg.KafkaBrokers...), zl)
		workers.Add(1)
		go func() {
			defer workers.Done()
			poller.Run(ctx)
		}()
		zl.Info("outbox publishing enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.OutboxTopic))
	}

	handler := h.NewHandler(carts, catalog, cfg.RequestTimeout, cfg.MaxRequestBodySize, zl)
	router := h.NewRouter(handler, sessions, zl)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "market"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zl.Info("market starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	zl.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)

	// the poller closes the kafka writer on its way out
	workers.Wait()

	if shutdownErr != nil {
		zl.Error("server forced to shutdown", zap.Error(shutdownErr))
		os.Exit(1)
	}
	zl.Info("server exited")
}
