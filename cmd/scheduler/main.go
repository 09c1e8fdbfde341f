package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/segyhp/fee-engine/internal/cache"
	"github.com/segyhp/fee-engine/internal/config"
	"github.com/segyhp/fee-engine/internal/domain"
	"github.com/segyhp/fee-engine/internal/logger"
	"github.com/segyhp/fee-engine/internal/repository"
	"github.com/segyhp/fee-engine/internal/service"
)

const jobTimeout = 30 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Database.Driver != config.StorageDriverPostgres {
		log.Fatalf("The scheduler needs STORAGE_DRIVER=%s", config.StorageDriverPostgres)
	}

	zl, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck
	zl = zl.Named("scheduler")

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		zl.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	ledgerCache := cache.NewNoopLedgerCache()
	if cfg.Redis.RedisEnabled() {
		client, err := cache.NewRedisClient(cfg.Redis)
		if err != nil {
			zl.Warn("redis unavailable, cached summaries will expire by TTL", zap.Error(err))
		} else {
			defer client.Close()
			ledgerCache = cache.NewRedisLedgerCache(client, cfg.Redis.CacheTTL)
		}
	}

	svc := service.NewAccountingService(repository.NewPostgresStore(db), ledgerCache, zl, cfg)

	// Jobs run on the business calendar, not the host's.
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(cfg.Location()),
		cron.WithChain(jobWrappers(zl)...),
	)

	// Schedule tasks
	if err := setupCronJobs(c, cfg, svc, zl); err != nil {
		zl.Fatal("failed to schedule jobs", zap.Error(err))
	}

	// Start the scheduler
	c.Start()
	zl.Info("scheduler started",
		zap.String("overdue_cron", cfg.Scheduler.OverdueCron),
		zap.String("report_cron", cfg.Scheduler.ReportCron),
		zap.String("timezone", cfg.Business.Timezone))

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down scheduler")
	<-c.Stop().Done()
	zl.Info("scheduler stopped")
}

// cronLogger routes cron's own events (skipped runs, recovered panics) to zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Infow(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}

// jobWrappers skips a run while the previous one is still going and turns a
// panicking job into a logged error.
func jobWrappers(zl *zap.Logger) []cron.JobWrapper {
	logger := cronLogger{l: zl.Named("cron").Sugar()}
	return []cron.JobWrapper{cron.SkipIfStillRunning(logger), cron.Recover(logger)}
}

func setupCronJobs(c *cron.Cron, cfg *config.Config, svc *service.AccountingService, zl *zap.Logger) error {
	// Nightly sweep recomputing overdue flags and aging buckets
	if _, err := c.AddFunc(cfg.Scheduler.OverdueCron, func() {
		runOverdueSweep(svc, zl)
	}); err != nil {
		return err
	}

	// Weekly aging and collection snapshot for the accounts office
	if _, err := c.AddFunc(cfg.Scheduler.ReportCron, func() {
		logReports(svc, zl)
	}); err != nil {
		return err
	}

	return nil
}

func runOverdueSweep(svc *service.AccountingService, zl *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	result, err := svc.UpdateOverdueStatus(ctx, svc.Now())
	if err != nil {
		zl.Error("overdue sweep failed", zap.Error(err))
		return
	}
	zl.Info("overdue sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed),
		zap.Duration("took", time.Since(start)))
}

func logReports(svc *service.AccountingService, zl *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	asOf := svc.Now()
	aging, err := svc.AgingSummary(ctx, domain.LedgerFilter{}, asOf)
	if err != nil {
		zl.Error("aging report failed", zap.Error(err))
		return
	}
	fields := []zap.Field{zap.String("total_outstanding", aging.TotalOutstanding.String())}
	for _, b := range aging.Buckets {
		fields = append(fields,
			zap.Int("ledgers_"+string(b.Bucket), b.LedgerCount),
			zap.String("outstanding_"+string(b.Bucket), b.Outstanding.String()))
	}
	zl.Info("weekly aging report", fields...)

	collection, err := svc.CollectionSummary(ctx, domain.LedgerFilter{}, asOf)
	if err != nil {
		zl.Error("collection report failed", zap.Error(err))
		return
	}
	zl.Info("weekly collection report",
		zap.Int("ledgers", collection.LedgerCount),
		zap.String("net_payable", collection.NetPayable.String()),
		zap.String("total_paid", collection.TotalPaid.String()),
		zap.String("collection_rate", collection.CollectionRate.String()),
		zap.Int("overdue_ledgers", collection.OverdueLedgers))
}
