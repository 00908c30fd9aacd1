// Package entitlementapi собирает HTTP API подписок Pro.
package entitlementapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/streadway/amqp"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/entitlement-service/internal/cache"
	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/entitlement"
	"github.com/magabrotheeeer/entitlement-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/jwt"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/metrics"
	"github.com/magabrotheeeer/entitlement-service/internal/migrations"
	"github.com/magabrotheeeer/entitlement-service/internal/paymentprovider"
	"github.com/magabrotheeeer/entitlement-service/internal/rabbitmq"
	"github.com/magabrotheeeer/entitlement-service/internal/services/billing"
	"github.com/magabrotheeeer/entitlement-service/internal/services/reconciliation"
	"github.com/magabrotheeeer/entitlement-service/internal/services/subscription"
	"github.com/magabrotheeeer/entitlement-service/internal/services/verification"
	"github.com/magabrotheeeer/entitlement-service/internal/storage/repository"
)

// App представляет HTTP API.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// New подключает хранилище, кеш и брокер, применяет миграции и собирает роутер.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "entitlementapi.New"

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	version, err := migrations.Run(db.DB, cfg.MigrationsPath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logger.Info("database schema is up to date", slog.Uint64("version", uint64(version)))

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: cache not initialized: %w", op, err)
	}

	conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		_ = cacheRedis.Close()
		_ = db.Close()
		return nil, fmt.Errorf("%s: failed to connect RabbitMQ: %w", op, err)
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		_ = cacheRedis.Close()
		_ = db.Close()
		return nil, fmt.Errorf("%s: failed to setup RabbitMQ channel: %w", op, err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	grace := cfg.Billing.GracePeriod
	processor := paymentprovider.NewClient(cfg.Processor, logger)
	evaluator := entitlement.NewEvaluator(db, logger, grace).WithMetrics(m)

	router := chi.NewRouter()
	RegisterRoutes(router, Deps{
		Logger:         logger,
		Tokens:         jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL),
		VerifyLimiter:  middlewarectx.NewClientLimiter(rate.Limit(cfg.VerifyRPS), cfg.VerifyBurst),
		CronSecret:     cfg.CronSecret,
		WebhookSecret:  cfg.Processor.SecretKey,
		DB:             db.DB,
		Payments:       db,
		Verification:   verification.New(db, processor, cacheRedis, m, cfg, logger),
		Subscription:   subscription.New(evaluator, db, cacheRedis, logger),
		Reconciliation: reconciliation.New(db, processor, cfg.Reconciliation, grace, m, logger),
		Billing:        billing.New(db, rabbitmq.NewReminderPublisher(ch), cfg.Billing, m, logger),
		Gatherer:       registry,
	})

	if !processor.Configured() {
		logger.Warn("payment processor secret key is not set, verification is disabled")
	}

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		cache:  cacheRedis,
		conn:   conn,
		ch:     ch,
	}, nil
}

// Run запускает HTTP сервер и останавливает его при отмене ctx.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err = a.server.Shutdown(timeoutCtx)
	}
	a.close()
	return err
}

func (a *App) close() {
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close cache", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
