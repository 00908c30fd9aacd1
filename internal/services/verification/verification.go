// Package verification подтверждает платёж у провайдера и зачисляет оплаченный
// период подписчику не более одного раза на ссылку платежа.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/entitlement-service/internal/cache"
	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/period"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/metrics"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/paymentprovider"
)

// PaymentRepository описывает операции хранилища, нужные сервису.
type PaymentRepository interface {
	CreatePendingPayment(ctx context.Context, p models.Payment) error
	GetPayment(ctx context.Context, reference string) (*models.Payment, error)
	FailPayment(ctx context.Context, reference string) error
	ApplyVerifiedPayment(ctx context.Context, txID string, paidAt time.Time, a models.Activation) (bool, error)
}

// Processor проверяет и создаёт транзакции у провайдера.
type Processor interface {
	Configured() bool
	Verify(ctx context.Context, reference string) (*paymentprovider.Transaction, error)
	Initialize(ctx context.Context, req paymentprovider.InitializeRequest) (*paymentprovider.InitializeResponse, error)
}

// Invalidator сбрасывает закешированный статус пользователя.
type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// Plans отдаёт цену тарифа, её реализует *config.Config.
type Plans interface {
	PlanFor(tier string) (config.Plan, bool)
}

// Service проверяет платежи и начисляет доступ.
type Service struct {
	repo      PaymentRepository
	processor Processor
	cache     Invalidator
	metrics   *metrics.Metrics
	plans     Plans
	log       *slog.Logger
	now       func() time.Time
}

// New создаёт новый Service. inv и m могут быть nil.
func New(repo PaymentRepository, processor Processor, inv Invalidator, m *metrics.Metrics, plans Plans, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		processor: processor,
		cache:     inv,
		metrics:   m,
		plans:     plans,
		log:       log,
		now:       time.Now,
	}
}

// WithClock подменяет источник текущего времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Verify подтверждает платёж по ссылке у провайдера и применяет результат.
// Платёж должен существовать. Для уже обработанного платежа повторно
// возвращается сохранённый результат без повторного зачисления.
func (s *Service) Verify(ctx context.Context, reference string) (models.VerifyResult, error) {
	const op = "verification.Verify"
	log := s.log.With(sl.Op(op), slog.String("reference", reference))

	reference = strings.TrimSpace(reference)
	if reference == "" {
		return models.VerifyResult{}, fmt.Errorf("%s: reference is required: %w", op, models.ErrNotFound)
	}
	if !s.processor.Configured() {
		return models.VerifyResult{}, fmt.Errorf("%s: processor credentials are not configured: %w", op, models.ErrAuthentication)
	}

	payment, err := s.repo.GetPayment(ctx, reference)
	if err != nil {
		return models.VerifyResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if payment.Status != models.PaymentPending {
		log.Info("payment already processed", slog.String("status", string(payment.Status)))
		s.metrics.IncVerification("already_processed")
		return storedResult(payment), nil
	}

	tx, err := s.processor.Verify(ctx, reference)
	if err != nil {
		s.metrics.IncVerification("provider_error")
		return models.VerifyResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if !tx.Succeeded() && !tx.Final() {
		// Платёж остаётся pending: следующая проверка или webhook спросят провайдера снова.
		log.Info("payment is not settled yet", slog.String("provider_status", tx.Status))
		s.metrics.IncVerification("not_settled")
		return models.VerifyResult{
			Status:   models.PaymentFailed,
			Amount:   models.MajorUnits(tx.Amount),
			Currency: currency(tx.Currency, payment.Currency),
		}, nil
	}
	if !tx.Succeeded() {
		if err := s.repo.FailPayment(ctx, reference); err != nil {
			if errors.Is(err, models.ErrConsistencyViolation) {
				return s.reread(ctx, op, reference)
			}
			return models.VerifyResult{}, fmt.Errorf("%s: %w", op, err)
		}
		log.Info("payment failed", slog.String("provider_status", tx.Status))
		s.metrics.IncVerification("failed")
		return models.VerifyResult{
			Status:   models.PaymentFailed,
			Amount:   models.MajorUnits(tx.Amount),
			Currency: currency(tx.Currency, payment.Currency),
		}, nil
	}

	if tx.Amount < payment.Amount {
		log.Warn("paid amount is below checkout amount",
			slog.Int64("paid", tx.Amount), slog.Int64("expected", payment.Amount))
	}

	now := s.now()
	tier := s.tierFor(tx, payment)
	activation := models.Activation{
		UserUID:    payment.UserUID,
		Email:      firstNonEmpty(payment.Email, tx.Email()),
		Status:     period.StatusFor(tier),
		Tier:       tier,
		StartedAt:  now,
		EndsAt:     period.End(tier, now),
		PaymentRef: reference,
	}
	if tx.Customer.CustomerCode != "" {
		code := tx.Customer.CustomerCode
		activation.ProviderCustomerID = &code
	}
	paidAt := tx.Time()
	if paidAt.IsZero() {
		paidAt = now
	}

	credited, err := s.repo.ApplyVerifiedPayment(ctx, fmt.Sprint(tx.ID), paidAt, activation)
	if err != nil {
		if errors.Is(err, models.ErrConsistencyViolation) {
			log.Info("payment was applied concurrently")
			return s.reread(ctx, op, reference)
		}
		return models.VerifyResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if credited {
		s.metrics.IncCredit("verify", string(tier))
	} else {
		log.Info("subscriber already holds lifetime access")
	}
	s.metrics.IncVerification("success")
	s.invalidate(ctx, payment.UserUID)

	log.Info("payment verified", sl.UserUID(payment.UserUID), slog.String("tier", string(tier)))
	return models.VerifyResult{
		Status:   models.PaymentSuccess,
		Amount:   models.MajorUnits(tx.Amount),
		Currency: currency(tx.Currency, payment.Currency),
	}, nil
}

// InitializeCheckout создаёт платёж в статусе pending для тарифа tier и, если
// провайдер настроен, получает у него адрес страницы оплаты.
func (s *Service) InitializeCheckout(ctx context.Context, userUID, email, tier string) (*models.Checkout, error) {
	const op = "verification.InitializeCheckout"

	t, ok := models.ParseTier(tier)
	if !ok {
		return nil, fmt.Errorf("%s: unknown tier %q: %w", op, tier, models.ErrNotFound)
	}
	plan, ok := s.plans.PlanFor(string(t))
	if !ok {
		return nil, fmt.Errorf("%s: no price for tier %q: %w", op, tier, models.ErrNotFound)
	}

	payment := models.Payment{
		Reference: uuid.NewString(),
		UserUID:   userUID,
		Email:     email,
		Amount:    plan.Amount,
		Currency:  plan.Currency,
		Tier:      t,
	}
	if err := s.repo.CreatePendingPayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	checkout := &models.Checkout{
		Reference: payment.Reference,
		Amount:    models.MajorUnits(plan.Amount),
		Currency:  plan.Currency,
		Tier:      string(t),
	}
	if !s.processor.Configured() {
		return checkout, nil
	}

	resp, err := s.processor.Initialize(ctx, paymentprovider.InitializeRequest{
		Email:     email,
		Amount:    plan.Amount,
		Currency:  plan.Currency,
		Reference: payment.Reference,
		Metadata: map[string]string{
			"interval": period.Interval(t),
			"user_uid": userUID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	checkout.AuthorizationURL = resp.AuthorizationURL
	return checkout, nil
}

func (s *Service) reread(ctx context.Context, op, reference string) (models.VerifyResult, error) {
	payment, err := s.repo.GetPayment(ctx, reference)
	if err != nil {
		return models.VerifyResult{}, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.IncVerification("already_processed")
	return storedResult(payment), nil
}

func (s *Service) tierFor(tx *paymentprovider.Transaction, payment *models.Payment) models.SubscriptionTier {
	if interval := tx.Meta("interval"); interval != "" {
		return period.TierFromInterval(strings.ToLower(interval))
	}
	if t, ok := models.ParseTier(string(payment.Tier)); ok {
		return t
	}
	return models.TierMonthly
}

func (s *Service) invalidate(ctx context.Context, userUID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cache.EntitlementKey(userUID)); err != nil {
		s.log.Warn("failed to invalidate cached entitlement", sl.UserUID(userUID), sl.Err(err))
	}
}

func storedResult(p *models.Payment) models.VerifyResult {
	status := p.Status
	if status == models.PaymentPending {
		status = models.PaymentFailed
	}
	return models.VerifyResult{
		Status:   status,
		Amount:   models.MajorUnits(p.Amount),
		Currency: p.Currency,
	}
}

func currency(fromProvider, stored string) string {
	if fromProvider != "" {
		return fromProvider
	}
	return stored
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
