package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/metrics"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// SubscriberRepository описывает доступ к подписчикам, нужный вычислителю.
type SubscriberRepository interface {
	GetSubscriber(ctx context.Context, userUID string) (*models.Subscriber, error)
	ExpireSubscriber(ctx context.Context, userUID string, cutoff time.Time) (bool, error)
}

// Evaluator загружает запись подписчика, вычисляет доступ и при необходимости
// записывает ленивое истечение обратно в хранилище.
type Evaluator struct {
	repo    SubscriberRepository
	log     *slog.Logger
	grace   time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
}

// NewEvaluator создаёт новый Evaluator.
func NewEvaluator(repo SubscriberRepository, log *slog.Logger, grace time.Duration) *Evaluator {
	return &Evaluator{
		repo:  repo,
		log:   log,
		grace: grace,
		now:   time.Now,
	}
}

// WithClock подменяет источник текущего времени.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// WithMetrics включает учёт ленивых истечений.
func (e *Evaluator) WithMetrics(m *metrics.Metrics) *Evaluator {
	e.metrics = m
	return e
}

// Current возвращает текущий доступ пользователя и запись подписчика (nil, если её нет).
// Если активная подписка просрочена, перед возвратом выполняется условная запись
// status=expired. Запись идемпотентна: повторный вызов ничего не меняет.
func (e *Evaluator) Current(ctx context.Context, userUID string) (models.Entitlement, *models.Subscriber, error) {
	const op = "entitlement.Current"

	sub, err := e.repo.GetSubscriber(ctx, userUID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return Evaluate(nil, e.now(), e.grace), nil, nil
		}
		return models.Entitlement{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	now := e.now()
	ent := Evaluate(sub, now, e.grace)
	if Overdue(sub, now, e.grace) {
		expired, err := e.repo.ExpireSubscriber(ctx, userUID, now.Add(-e.grace))
		if err != nil {
			return models.Entitlement{}, nil, fmt.Errorf("%s: %w", op, err)
		}
		if expired {
			e.log.Info("subscription expired on read", sl.UserUID(userUID))
			e.metrics.IncExpiration("lazy")
		} else {
			e.log.Debug("subscription already transitioned", sl.UserUID(userUID))
		}
		sub.Status = models.StatusExpired
		sub.PremiumBadge = false
		sub.ProEnabled = false
	}
	return ent, sub, nil
}

// IsPro сообщает, есть ли у пользователя Pro. Ошибки хранилища приводят к false.
func (e *Evaluator) IsPro(ctx context.Context, userUID string) bool {
	ent, _, err := e.Current(ctx, userUID)
	if err != nil {
		e.log.Error("failed to evaluate entitlement", sl.UserUID(userUID), sl.Err(err))
		return false
	}
	return ent.IsPro
}
