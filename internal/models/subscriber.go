// Package models содержит доменные структуры подсистемы Pro-подписки:
// подписчика, платёж, напоминание о продлении, а также результаты
// вычисления доступа и работы фоновых задач.
package models

import "time"

// SubscriptionStatus описывает состояние подписки в хранилище.
type SubscriptionStatus string

const (
	StatusNone     SubscriptionStatus = "none"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusExpired  SubscriptionStatus = "expired"
	StatusLifetime SubscriptionStatus = "lifetime"
)

// SubscriptionTier описывает тарифный план подписчика.
type SubscriptionTier string

const (
	TierNone     SubscriptionTier = "none"
	TierMonthly  SubscriptionTier = "monthly"
	TierAnnual   SubscriptionTier = "annual"
	TierLifetime SubscriptionTier = "lifetime"
)

// ParseTier приводит строку к SubscriptionTier. Неизвестные значения возвращают false.
func ParseTier(s string) (SubscriptionTier, bool) {
	switch SubscriptionTier(s) {
	case TierMonthly, TierAnnual, TierLifetime:
		return SubscriptionTier(s), true
	default:
		return TierNone, false
	}
}

const (
	// PlanPro — план пользователя с автопродлением.
	PlanPro = "pro"
	// PlanFree — план после отмены продления.
	PlanFree = "free"
)

// Subscriber представляет запись о платном доступе пользователя.
// Ключ записи — неизменяемый UserUID, Email хранится только как контактное поле.
// ProEnabled — устаревший флаг, который пишется для совместимости
// и никогда не используется для принятия решений о доступе.
type Subscriber struct {
	UserUID            string
	Email              string
	Status             SubscriptionStatus
	Tier               SubscriptionTier
	PremiumBadge       bool
	ProEnabled         bool
	Plan               string
	StartedAt          *time.Time
	EndsAt             *time.Time // nil только для lifetime
	LastPaymentRef     *string
	ProviderCustomerID *string
	RenewalCanceledAt  *time.Time
	UpdatedAt          time.Time
}

// Activation описывает зачисление оплаченного периода подписчику.
type Activation struct {
	UserUID            string
	Email              string
	Status             SubscriptionStatus
	Tier               SubscriptionTier
	StartedAt          time.Time
	EndsAt             *time.Time
	PaymentRef         string
	ProviderCustomerID *string
}
