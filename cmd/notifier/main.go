// Command notifier consumes ticket notifications from RabbitMQ.  Delivery
// to users (email, push) plugs in behind queue.Handler; this build logs
// each notification.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/iliyamo/ticket-inventory/internal/applog"
	"github.com/iliyamo/ticket-inventory/internal/config"
	"github.com/iliyamo/ticket-inventory/internal/queue"
)

func main() {
	_ = godotenv.Load()

	logger := applog.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	bc := config.LoadBrokerConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithField("queue", bc.Queue).Info("notifier started")
	err := queue.Consume(ctx, bc.URL, bc.Queue, queue.LogHandler(logger), logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("consumer stopped")
	}
	logger.Info("notifier stopped")
}
