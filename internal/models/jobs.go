package models

import "time"

// DuplicatePayment описывает транзакцию, признанную повторной оплатой того же периода.
type DuplicatePayment struct {
	Email             string    `json:"email"`
	Reference         string    `json:"reference"`
	ExistingReference string    `json:"existing_reference"`
	PaidAt            time.Time `json:"paid_at"`
	ExistingStartedAt time.Time `json:"existing_started_at"`
}

// ReconcileResult — итог одного запуска сверки с платёжным провайдером.
type ReconcileResult struct {
	TotalTransactions  int                `json:"total_transactions"`
	UpdatedSubscribers int                `json:"updated_subscribers"`
	AlreadyActive      int                `json:"already_active"`
	DuplicatesFound    int                `json:"duplicates_found"`
	Unmatched          int                `json:"unmatched"`
	Skipped            int                `json:"skipped"`
	Failed             int                `json:"failed"`
	Duplicates         []DuplicatePayment `json:"duplicates"`
}

// BillingRunResult — итог одного запуска биллингового крона.
type BillingRunResult struct {
	ProcessedReminders   int `json:"processed_reminders"`
	ExpiredSubscriptions int `json:"expired_subscriptions"`
	ScheduledReminders   int `json:"scheduled_reminders"`
	Failed               int `json:"failed"`
}
