package models

import "time"

// PaymentStatus описывает состояние платежа.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

// Payment представляет одну попытку оплаты. Создаётся в статусе pending
// при инициализации оплаты и переводится в конечный статус ровно один раз.
type Payment struct {
	Reference             string
	UserUID               string
	Email                 string
	Amount                int64 // в минимальных единицах валюты
	Currency              string
	Tier                  SubscriptionTier
	Status                PaymentStatus
	ProviderTransactionID *string
	PaidAt                *time.Time
	CreatedAt             time.Time
}

// Checkout содержит данные созданного платежа для перехода к оплате.
type Checkout struct {
	Reference        string  `json:"reference"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
	Tier             string  `json:"tier"`
	AuthorizationURL string  `json:"authorization_url,omitempty"`
}

// VerifyResult — ответ на проверку платежа.
type VerifyResult struct {
	Status   PaymentStatus `json:"status"`
	Amount   float64       `json:"amount"`
	Currency string        `json:"currency"`
}

// MajorUnits переводит сумму из минимальных единиц валюты в основные.
func MajorUnits(amount int64) float64 {
	return float64(amount) / 100
}
