package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-inventory/internal/applog"
	"github.com/iliyamo/ticket-inventory/internal/booking"
	"github.com/iliyamo/ticket-inventory/internal/config"
	"github.com/iliyamo/ticket-inventory/internal/database"
	"github.com/iliyamo/ticket-inventory/internal/handler"
	"github.com/iliyamo/ticket-inventory/internal/lifecycle"
	"github.com/iliyamo/ticket-inventory/internal/notify"
	"github.com/iliyamo/ticket-inventory/internal/queue"
	"github.com/iliyamo/ticket-inventory/internal/repository"
	"github.com/iliyamo/ticket-inventory/internal/repository/memory"
	"github.com/iliyamo/ticket-inventory/internal/router"
	"github.com/iliyamo/ticket-inventory/internal/stats"
	"github.com/iliyamo/ticket-inventory/internal/sweeper"
	"github.com/iliyamo/ticket-inventory/internal/waitlist"
)

func main() {
	_ = godotenv.Load() // .env is optional outside dev

	cfg := config.Load()
	logger := applog.New(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, db := openStore(ctx, cfg, logger)
	if db != nil {
		defer db.Close()
	}
	runner := repository.NewRunner(store, cfg.TxMaxAttempts, cfg.TxBaseBackoff, logger)

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	var counter repository.Counter = repository.NopCounter{}
	if rdb != nil {
		defer rdb.Close()
		counter = stats.NewRedisCounter(rdb)
	} else {
		logger.Warn("redis unavailable: counters, rate limiting and caching disabled")
	}

	var notifier notify.Dispatcher = notify.Nop{}
	if bc := config.LoadBrokerConfig(); bc.Enabled {
		pub := queue.NewPublisher(bc.URL, bc.Queue, logger)
		defer pub.Close()
		async := notify.NewAsync(pub, bc.Buffer, logger)
		// drain before the publisher closes
		defer async.Close()
		notifier = async
	}

	engine := booking.NewEngine(runner, counter, notifier, logger)
	wl := waitlist.NewManager(runner, counter, notifier, logger, time.Now)
	ctrl := lifecycle.NewController(runner, counter, notifier, wl, logger, time.Now)

	sw, err := sweeper.Start(ctx, wl, cfg.PromotionSweepInterval, logger)
	if err != nil {
		logger.WithError(err).Fatal("start promotion sweeper")
	}
	defer sw.Stop()

	deps := router.Deps{
		Events:    handler.NewEventHandler(engine, wl, logger),
		Tickets:   handler.NewTicketHandler(ctrl, logger),
		JWTSecret: cfg.JWTSecret,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Redis:     rdb,
		Logger:    logger,
	}
	if db != nil {
		deps.DB = db
	}
	e := router.New(deps)

	addr := ":" + cfg.Port
	go func() {
		logger.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "store": cfg.Store}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http shutdown")
	}
}

// openStore returns the configured store and, for MySQL, the pool behind
// it after applying the schema.
func openStore(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (repository.Store, *sql.DB) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using the in-memory store: data is lost on exit")
		return memory.New(), nil
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.WithError(err).Fatal("open database")
	}
	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := database.Migrate(migrateCtx, db); err != nil {
		logger.WithError(err).Fatal("migrate database")
	}
	return repository.NewMySQLStore(db), db
}
