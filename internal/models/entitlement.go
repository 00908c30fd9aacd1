package models

import "time"

// Entitlement — вычисленное состояние доступа пользователя на момент времени.
type Entitlement struct {
	Status    SubscriptionStatus
	Tier      SubscriptionTier
	IsActive  bool
	IsPremium bool
	IsPro     bool
	EndsAt    *time.Time
}

// StatusView — представление статуса подписки для клиента.
type StatusView struct {
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	SubscriptionTier   SubscriptionTier   `json:"subscription_tier"`
	PremiumBadge       bool               `json:"premium_badge"`
	IsActive           bool               `json:"is_active"`
	SubscriptionEndsAt *time.Time         `json:"subscription_ends_at"`
	LastUpdated        time.Time          `json:"last_updated"`
}

// ClientEntitlement — набор флагов, которые потребляет интерфейс.
type ClientEntitlement struct {
	IsPro              bool               `json:"is_pro"`
	PremiumBadge       bool               `json:"premium_badge"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	SubscriptionTier   SubscriptionTier   `json:"subscription_tier"`
	SubscriptionEndsAt *time.Time         `json:"subscription_ends_at"`
	IsActive           bool               `json:"is_active"`
	CanUpgrade         bool               `json:"can_upgrade"`
	ShowRemoveAds      bool               `json:"show_remove_ads"`
	Stale              bool               `json:"stale"`
}

// Cancellation — результат отмены автопродления.
type Cancellation struct {
	Message   string     `json:"message"`
	ExpiresAt *time.Time `json:"expires_at"`
}
