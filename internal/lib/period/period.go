// Package period вычисляет границы оплаченных периодов подписки.
package period

import (
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// End возвращает дату окончания периода, оплаченного в момент start.
// Для lifetime возвращает nil: у такой подписки нет даты окончания.
func End(tier models.SubscriptionTier, start time.Time) *time.Time {
	var end time.Time
	switch tier {
	case models.TierLifetime:
		return nil
	case models.TierAnnual:
		end = start.AddDate(1, 0, 0)
	default:
		end = start.AddDate(0, 1, 0)
	}
	return &end
}

// StatusFor возвращает статус, который получает подписчик после оплаты тарифа.
func StatusFor(tier models.SubscriptionTier) models.SubscriptionStatus {
	if tier == models.TierLifetime {
		return models.StatusLifetime
	}
	return models.StatusActive
}

// TierFromInterval разбирает интервал оплаты из метаданных провайдера.
// Пустое или неизвестное значение означает ежемесячную оплату.
func TierFromInterval(interval string) models.SubscriptionTier {
	switch interval {
	case "annually", "annual", "yearly":
		return models.TierAnnual
	case "lifetime":
		return models.TierLifetime
	default:
		return models.TierMonthly
	}
}

// Interval возвращает интервал оплаты тарифа для метаданных провайдера.
func Interval(tier models.SubscriptionTier) string {
	switch tier {
	case models.TierAnnual:
		return "annually"
	case models.TierLifetime:
		return "lifetime"
	default:
		return "monthly"
	}
}

// Within сообщает, отстоят ли два момента времени не более чем на window.
func Within(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}
