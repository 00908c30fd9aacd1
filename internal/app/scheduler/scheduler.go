// Package scheduler собирает процесс, который сам запускает биллинговый крон
// и сверку с провайдером по расписанию из конфига.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/metrics"
	"github.com/magabrotheeeer/entitlement-service/internal/paymentprovider"
	"github.com/magabrotheeeer/entitlement-service/internal/rabbitmq"
	"github.com/magabrotheeeer/entitlement-service/internal/services/billing"
	"github.com/magabrotheeeer/entitlement-service/internal/services/reconciliation"
	schedulerservice "github.com/magabrotheeeer/entitlement-service/internal/services/scheduler"
	"github.com/magabrotheeeer/entitlement-service/internal/storage/repository"
)

// App представляет приложение планировщика.
type App struct {
	scheduler *schedulerservice.Scheduler
	db        *repository.Storage
	conn      *amqp.Connection
	ch        *amqp.Channel
	logger    *slog.Logger
}

func waitForDB(ctx context.Context, db *repository.Storage) error {
	var err error
	for range 10 {
		if err = repository.CheckDatabaseReady(db); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return fmt.Errorf("database not ready after retries: %w", err)
}

// New создает новый экземпляр приложения планировщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "scheduler.New"

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect storage: %w", op, err)
	}
	if err := waitForDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: failed to connect RabbitMQ: %w", op, err)
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		_ = db.Close()
		return nil, fmt.Errorf("%s: failed to setup RabbitMQ channel: %w", op, err)
	}

	// Метрики отдаёт только HTTP API, здесь они не собираются.
	var m *metrics.Metrics
	grace := cfg.Billing.GracePeriod

	billingService := billing.New(db, rabbitmq.NewReminderPublisher(ch), cfg.Billing, m, logger)
	reconcileService := reconciliation.New(db, paymentprovider.NewClient(cfg.Processor, logger),
		cfg.Reconciliation, grace, m, logger)

	s := schedulerservice.New(logger,
		schedulerservice.Job{
			Name:     "billing",
			Interval: cfg.Billing.Interval,
			Run: func(ctx context.Context) {
				billingService.Run(ctx)
			},
		},
		schedulerservice.Job{
			Name:     "reconciliation",
			Interval: cfg.Reconciliation.Interval,
			Run: func(ctx context.Context) {
				if _, err := reconcileService.Run(ctx); err != nil {
					logger.Error("reconciliation run failed", sl.Err(err))
				}
			},
		},
	)

	return &App{
		scheduler: s,
		db:        db,
		conn:      conn,
		ch:        ch,
		logger:    logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", sl.Err(err))
		}
	}
}

// Run запускает планировщик и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Run(ctx)

	a.logger.Info("shutting down scheduler service")
	closeResources(a.ch, a.conn, a.logger)
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
	return nil
}
