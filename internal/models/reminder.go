package models

import "time"

// ReminderType описывает тип напоминания о продлении.
type ReminderType string

const (
	ReminderRenewal3d    ReminderType = "renewal_3d"
	ReminderRenewal1d    ReminderType = "renewal_1d"
	ReminderRenewalToday ReminderType = "renewal_today"
)

// BillingReminder представляет запланированное напоминание о продлении.
type BillingReminder struct {
	ID           int64
	UserUID      string
	ReminderType ReminderType
	ScheduledAt  time.Time
	SentAt       *time.Time
	CreatedAt    time.Time
}

// ReminderNotice — сообщение для отправки напоминания пользователю.
type ReminderNotice struct {
	ReminderID         int64        `json:"reminder_id"`
	UserUID            string       `json:"user_uid"`
	Email              string       `json:"email"`
	ReminderType       ReminderType `json:"reminder_type"`
	ScheduledAt        time.Time    `json:"scheduled_at"`
	SubscriptionEndsAt *time.Time   `json:"subscription_ends_at,omitempty"`
	RenewalCanceled    bool         `json:"-"`

	// Текущее состояние подписки на момент выборки, в очередь не передаётся.
	SubscriptionStatus SubscriptionStatus `json:"-"`
	SubscriptionTier   SubscriptionTier   `json:"-"`
}
