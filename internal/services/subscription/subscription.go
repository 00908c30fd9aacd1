// Package subscription отдаёт пользователю статус подписки и отменяет автопродление.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/cache"
	"github.com/magabrotheeeer/entitlement-service/internal/entitlement"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// EntitlementReader вычисляет текущий доступ пользователя.
type EntitlementReader interface {
	Current(ctx context.Context, userUID string) (models.Entitlement, *models.Subscriber, error)
}

// Repository определяет запись отмены продления.
type Repository interface {
	CancelRenewal(ctx context.Context, userUID string, now time.Time) (*models.Subscriber, error)
}

// Cache сбрасывает закешированный статус.
type Cache interface {
	Invalidate(ctx context.Context, key string) error
}

// Service реализует чтение статуса и отмену продления.
type Service struct {
	evaluator EntitlementReader
	repo      Repository
	cache     Cache
	log       *slog.Logger
	now       func() time.Time
}

// New создаёт новый Service. c может быть nil.
func New(evaluator EntitlementReader, repo Repository, c Cache, log *slog.Logger) *Service {
	return &Service{
		evaluator: evaluator,
		repo:      repo,
		cache:     c,
		log:       log,
		now:       time.Now,
	}
}

// WithClock подменяет источник текущего времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Status возвращает статус подписки пользователя.
func (s *Service) Status(ctx context.Context, userUID string) (models.StatusView, error) {
	const op = "subscription.Status"
	ent, sub, err := s.evaluator.Current(ctx, userUID)
	if err != nil {
		return models.StatusView{}, fmt.Errorf("%s: %w", op, err)
	}
	updated := s.now()
	if sub != nil && !sub.UpdatedAt.IsZero() {
		updated = sub.UpdatedAt
	}
	return entitlement.View(ent, updated), nil
}

// Cancel отключает автопродление. Доступ сохраняется до даты окончания
// оплаченного периода: статус и дата окончания не меняются.
func (s *Service) Cancel(ctx context.Context, userUID string) (models.Cancellation, error) {
	const op = "subscription.Cancel"
	ent, _, err := s.evaluator.Current(ctx, userUID)
	if err != nil {
		return models.Cancellation{}, fmt.Errorf("%s: %w", op, err)
	}
	if !ent.IsActive {
		return models.Cancellation{}, fmt.Errorf("%s: %w", op, models.ErrNoActiveSubscription)
	}

	sub, err := s.repo.CancelRenewal(ctx, userUID, s.now())
	if err != nil {
		return models.Cancellation{}, fmt.Errorf("%s: %w", op, err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, cache.EntitlementKey(userUID)); err != nil {
			s.log.Warn("failed to invalidate cached entitlement", sl.UserUID(userUID), sl.Err(err))
		}
	}

	s.log.Info("renewal canceled", sl.UserUID(userUID))
	if sub.Status == models.StatusLifetime {
		return models.Cancellation{Message: "Lifetime access has no renewal. Access remains active."}, nil
	}
	return models.Cancellation{
		Message:   "Subscription canceled. Pro access remains until the end of the current period.",
		ExpiresAt: sub.EndsAt,
	}, nil
}
