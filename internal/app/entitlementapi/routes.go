package entitlementapi

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/health"
	jobbilling "github.com/magabrotheeeer/entitlement-service/internal/http/handlers/jobs/billing"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/jobs/reconcile"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/payment/checkout"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/payment/paymentlist"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/payment/paymentwebhook"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/payment/verify"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/subscription/cancel"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/subscription/status"
	"github.com/magabrotheeeer/entitlement-service/internal/http/middlewarectx"
)

// VerificationService проверяет платежи и создаёт их при переходе к оплате.
type VerificationService interface {
	verify.Verifier
	checkout.Service
}

// SubscriptionService отдаёт статус подписки и отменяет продление.
type SubscriptionService interface {
	status.Service
	cancel.Service
}

// Deps содержит зависимости обработчиков HTTP API.
type Deps struct {
	Logger         *slog.Logger
	Tokens         middlewarectx.TokenParser
	VerifyLimiter  *middlewarectx.ClientLimiter
	CronSecret     string
	WebhookSecret  string
	DB             health.Pinger
	Payments       paymentlist.Repository
	Verification   VerificationService
	Subscription   SubscriptionService
	Reconciliation reconcile.Runner
	Billing        jobbilling.Runner
	Gatherer       prometheus.Gatherer
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, d Deps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Get("/health", health.New(d.Logger, d.DB).ServeHTTP)
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	// Без JWT, с ограничением частоты
	r.With(middlewarectx.RateLimitMiddleware(d.VerifyLimiter, d.Logger)).
		Post("/verify-payment", verify.New(d.Logger, d.Verification).ServeHTTP)
	r.Post("/payments/webhook", paymentwebhook.New(d.Logger, d.Verification, d.WebhookSecret).ServeHTTP)

	// Группа с JWT аутентификацией
	r.Group(func(r chi.Router) {
		r.Use(middlewarectx.JWTMiddleware(d.Tokens, d.Logger))
		r.Get("/subscription-status", status.New(d.Logger, d.Subscription).ServeHTTP)
		r.Post("/cancel-subscription", cancel.New(d.Logger, d.Subscription).ServeHTTP)
		r.Post("/checkout", checkout.New(d.Logger, d.Verification).ServeHTTP)
		r.Get("/payments", paymentlist.New(d.Logger, d.Payments).ServeHTTP)
	})

	// Служебные запуски джобов внешним планировщиком
	r.Route("/jobs", func(r chi.Router) {
		r.Use(middlewarectx.CronSecretMiddleware(d.CronSecret, d.Logger))
		r.Post("/reconcile", reconcile.New(d.Logger, d.Reconciliation).ServeHTTP)
		r.Post("/billing", jobbilling.New(d.Logger, d.Billing).ServeHTTP)
	})
}
