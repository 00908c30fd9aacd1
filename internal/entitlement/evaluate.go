// Package entitlement вычисляет текущий доступ пользователя к Pro по записи
// подписчика и текущему времени, включая ленивое истечение просроченных подписок.
package entitlement

import (
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// DefaultGracePeriod — окно после даты окончания, в течение которого доступ сохраняется.
const DefaultGracePeriod = 24 * time.Hour

// Evaluate вычисляет доступ по записи подписчика. Функция чистая:
// она не меняет запись, а только сообщает, истекла ли подписка.
// Активная подписка действует, пока now <= endsAt + grace.
func Evaluate(sub *models.Subscriber, now time.Time, grace time.Duration) models.Entitlement {
	if sub == nil {
		return models.Entitlement{Status: models.StatusNone, Tier: models.TierNone}
	}

	res := models.Entitlement{
		Status: sub.Status,
		Tier:   sub.Tier,
		EndsAt: sub.EndsAt,
	}

	switch sub.Status {
	case models.StatusLifetime:
		res.IsActive = true
		res.IsPremium = true
		res.EndsAt = nil
	case models.StatusActive:
		if Overdue(sub, now, grace) {
			res.Status = models.StatusExpired
			res.IsActive = false
			res.IsPremium = false
		} else {
			res.IsActive = true
			res.IsPremium = sub.PremiumBadge
		}
	default:
		// past_due сохраняет значок на время льготного периода
		res.IsActive = false
		res.IsPremium = sub.PremiumBadge
	}

	res.IsPro = res.IsPremium && res.IsActive
	return res
}

// Overdue сообщает, что активная подписка прошла дату окончания с учётом льготного окна
// и должна быть переведена в expired.
func Overdue(sub *models.Subscriber, now time.Time, grace time.Duration) bool {
	if sub == nil || sub.Status != models.StatusActive {
		return false
	}
	if sub.EndsAt == nil {
		// active без даты окончания нарушает инвариант записи, доступ не выдаём
		return true
	}
	return now.After(sub.EndsAt.Add(grace))
}

// AdsVisible сообщает, нужно ли показывать рекламу пользователю.
func AdsVisible(isPro bool) bool {
	return !isPro
}

// View строит клиентское представление статуса.
func View(ent models.Entitlement, updatedAt time.Time) models.StatusView {
	return models.StatusView{
		SubscriptionStatus: ent.Status,
		SubscriptionTier:   ent.Tier,
		PremiumBadge:       ent.IsPremium,
		IsActive:           ent.IsActive,
		SubscriptionEndsAt: ent.EndsAt,
		LastUpdated:        updatedAt,
	}
}
