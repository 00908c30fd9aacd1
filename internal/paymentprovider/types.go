package paymentprovider

import (
	"encoding/json"
	"strings"
	"time"
)

// Статусы транзакций провайдера.
const (
	TxSuccess   = "success"
	TxFailed    = "failed"
	TxAbandoned = "abandoned"
	TxReversed  = "reversed"
)

// envelope — общая обёртка ответов провайдера.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    *listMeta       `json:"meta,omitempty"`
}

type listMeta struct {
	Total     int `json:"total"`
	Page      int `json:"page"`
	PageCount int `json:"pageCount"`
}

// Customer описывает покупателя.
type Customer struct {
	Email        string `json:"email"`
	CustomerCode string `json:"customer_code"`
}

// Transaction — транзакция в истории провайдера.
type Transaction struct {
	ID        int64           `json:"id"`
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Amount    int64           `json:"amount"` // в минимальных единицах валюты
	Currency  string          `json:"currency"`
	PaidAt    *time.Time      `json:"paid_at"`
	CreatedAt time.Time       `json:"created_at"`
	Customer  Customer        `json:"customer"`
	Metadata  json.RawMessage `json:"metadata"`
}

// Final сообщает, что транзакция окончательно не прошла и больше не изменится.
// abandoned, ongoing, pending и queued ещё могут завершиться успехом.
func (t *Transaction) Final() bool {
	return t.Status == TxFailed || t.Status == TxReversed
}

// Succeeded сообщает, что транзакция успешно оплачена.
func (t *Transaction) Succeeded() bool {
	return t.Status == TxSuccess
}

// Time возвращает момент оплаты, а без него момент создания.
func (t *Transaction) Time() time.Time {
	if t.PaidAt != nil && !t.PaidAt.IsZero() {
		return *t.PaidAt
	}
	return t.CreatedAt
}

// Email возвращает нормализованный email покупателя.
func (t *Transaction) Email() string {
	return strings.ToLower(strings.TrimSpace(t.Customer.Email))
}

// Meta возвращает строковое значение из метаданных транзакции.
// Провайдер может прислать метаданные пустой строкой, такие значения игнорируются.
func (t *Transaction) Meta(key string) string {
	if len(t.Metadata) == 0 {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(t.Metadata, &m); err != nil {
		return ""
	}
	v, ok := m[key].(string)
	if !ok {
		return ""
	}
	return v
}

// InitializeRequest — запрос на создание транзакции перед оплатой.
type InitializeRequest struct {
	Email     string            `json:"email"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency,omitempty"`
	Reference string            `json:"reference"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// InitializeResponse — ответ с адресом страницы оплаты.
type InitializeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}
