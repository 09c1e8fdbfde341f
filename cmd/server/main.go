package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/segyhp/fee-engine/internal/cache"
	"github.com/segyhp/fee-engine/internal/config"
	"github.com/segyhp/fee-engine/internal/handler"
	"github.com/segyhp/fee-engine/internal/logger"
	"github.com/segyhp/fee-engine/internal/repository"
	"github.com/segyhp/fee-engine/internal/repository/memory"
	"github.com/segyhp/fee-engine/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck
	zap.ReplaceGlobals(zl)

	// Initialize storage
	store, closeStore, err := initStore(cfg, zl)
	if err != nil {
		zl.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer closeStore()

	// Initialize Redis
	redisClient, ledgerCache := initCache(cfg, zl)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Initialize service
	accountingService := service.NewAccountingService(store, ledgerCache, zl, cfg)
	feeHandler := handler.NewFeeHandler(accountingService, zl)
	healthHandler := handler.NewHealthHandler(store, redisClient, cfg.GetHealthTimeout())

	// Setup routes
	router := handler.NewRouter(feeHandler, healthHandler, zl)

	// Start server
	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		zl.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Server.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info("shutting down server")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}

	zl.Info("server exited")
}

// initStore opens the configured storage. The memory driver keeps nothing
// across restarts and is meant for local runs.
func initStore(cfg *config.Config, zl *zap.Logger) (repository.Store, func(), error) {
	if cfg.Database.Driver == config.StorageDriverMemory {
		zl.Warn("using in-memory storage; data is lost on restart")
		return memory.New(), func() {}, nil
	}

	db, err := initDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := repository.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		zl.Info("database migrations applied")
	}
	return repository.NewPostgresStore(db), func() { db.Close() }, nil
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}

// initCache returns the summary cache. Without Redis summaries are computed
// on every read; an unreachable Redis only produces cache misses.
func initCache(cfg *config.Config, zl *zap.Logger) (*redis.Client, cache.LedgerCache) {
	if !cfg.Redis.RedisEnabled() {
		return nil, cache.NewNoopLedgerCache()
	}

	client, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		zl.Warn("redis unavailable, ledger summaries will not be cached", zap.Error(err))
		return nil, cache.NewNoopLedgerCache()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetHealthTimeout())
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		zl.Warn("redis ping failed at startup", zap.Error(err))
	}
	return client, cache.NewRedisLedgerCache(client, cfg.Redis.CacheTTL)
}
