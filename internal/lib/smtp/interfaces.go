// Package smtp открывает аутентифицированные SMTP-сессии для рассылки напоминаний.
package smtp

import (
	"context"
	"io"
)

// Client описывает одну SMTP-сессию. *smtp.Client из стандартной библиотеки
// удовлетворяет ему без обёртки.
type Client interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// Dialer открывает сессию и знает адрес отправителя.
type Dialer interface {
	Connect(ctx context.Context) (Client, error)
	Sender() string
}
