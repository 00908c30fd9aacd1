// Package clientcache реализует клиентскую модель доступа к Pro: сначала
// запрашивает статус у сервера, а при его недоступности использует последний
// сохранённый снимок, никогда не выдавая по нему Pro.
package clientcache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/cache"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// Identity определяет пользователя, для которого запрашивается статус.
type Identity struct {
	UserUID string
	Token   string
}

// Source отдаёт авторитетный статус с сервера.
type Source interface {
	Status(ctx context.Context, id Identity) (models.StatusView, error)
}

// Store хранит снимки последнего известного статуса.
type Store interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Cache объединяет серверный статус и локальный снимок.
type Cache struct {
	source Source
	store  Store
	ttl    time.Duration
	log    *slog.Logger
}

// New создаёт новый Cache. Снимок для работы без сервера живёт ttl.
func New(source Source, store Store, ttl time.Duration, log *slog.Logger) *Cache {
	return &Cache{
		source: source,
		store:  store,
		ttl:    ttl,
		log:    log,
	}
}

// Resolve возвращает флаги доступа пользователя. Ответ сервера всегда
// предпочтительнее снимка. Если сервер недоступен, отображаемые поля берутся
// из снимка, а IsPro и IsActive сбрасываются. Без снимка возвращается
// пустой доступ вместе с ошибкой сервера.
func (c *Cache) Resolve(ctx context.Context, id Identity) (models.ClientEntitlement, error) {
	const op = "clientcache.Resolve"
	key := cache.EntitlementKey(id.UserUID)

	view, err := c.source.Status(ctx, id)
	if err == nil {
		if err := c.store.Set(ctx, key, view, c.ttl); err != nil {
			c.log.Warn("failed to store entitlement snapshot", sl.UserUID(id.UserUID), sl.Err(err))
		}
		return Derive(view), nil
	}

	c.log.Warn("status server unavailable, using snapshot", sl.UserUID(id.UserUID), sl.Err(err))
	var snapshot models.StatusView
	found, storeErr := c.store.Get(ctx, key, &snapshot)
	if storeErr != nil {
		c.log.Error("failed to read entitlement snapshot", sl.UserUID(id.UserUID), sl.Err(storeErr))
	}
	if !found || storeErr != nil {
		return None(), fmt.Errorf("%s: %w", op, err)
	}
	return Fallback(snapshot), nil
}

// Derive строит флаги по ответу сервера.
func Derive(view models.StatusView) models.ClientEntitlement {
	isPro := view.PremiumBadge && view.IsActive
	return models.ClientEntitlement{
		IsPro:              isPro,
		PremiumBadge:       view.PremiumBadge,
		SubscriptionStatus: view.SubscriptionStatus,
		SubscriptionTier:   view.SubscriptionTier,
		SubscriptionEndsAt: view.SubscriptionEndsAt,
		IsActive:           view.IsActive,
		CanUpgrade:         !isPro && !paidStatus(view.SubscriptionStatus),
		ShowRemoveAds:      !paidStatus(view.SubscriptionStatus),
	}
}

// Fallback строит флаги по локальному снимку. Pro по снимку не выдаётся.
func Fallback(snapshot models.StatusView) models.ClientEntitlement {
	e := Derive(snapshot)
	e.IsPro = false
	e.IsActive = false
	e.CanUpgrade = !paidStatus(snapshot.SubscriptionStatus)
	e.Stale = true
	return e
}

// None возвращает доступ пользователя без подписки.
func None() models.ClientEntitlement {
	return Derive(models.StatusView{
		SubscriptionStatus: models.StatusNone,
		SubscriptionTier:   models.TierNone,
	})
}

func paidStatus(s models.SubscriptionStatus) bool {
	return s == models.StatusActive || s == models.StatusLifetime
}
