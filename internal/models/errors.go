package models

import "errors"

var (
	// ErrAuthentication — отсутствуют или неверны учётные данные. Не повторяется.
	ErrAuthentication = errors.New("authentication failed")
	// ErrNotFound — неизвестная ссылка на платёж или подписчик. Не повторяется.
	ErrNotFound = errors.New("not found")
	// ErrExternalProvider — провайдер недоступен или вернул некорректный ответ.
	ErrExternalProvider = errors.New("external provider error")
	// ErrConsistencyViolation — не выполнено предусловие условного обновления.
	// Считается безопасным no-op.
	ErrConsistencyViolation = errors.New("consistency violation")
	// ErrNoActiveSubscription — у пользователя нет действующей подписки.
	ErrNoActiveSubscription = errors.New("no active subscription")
)
