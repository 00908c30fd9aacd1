// Package paymentprovider реализует клиент внешнего платёжного провайдера:
// проверку транзакции по ссылке, историю транзакций и инициализацию оплаты.
// Сетевые ошибки и ответы 5xx повторяются с экспоненциальной задержкой,
// вызовы защищены circuit breaker.
package paymentprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

const listPageSize = 100

// Client ходит в API платёжного провайдера.
type Client struct {
	secretKey  string
	apiURL     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	maxRetries uint64
	maxElapsed time.Duration
	log        *slog.Logger
}

// statusError описывает ответ провайдера с неуспешным HTTP-статусом.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code >= http.StatusInternalServerError || e.code == http.StatusTooManyRequests
}

// NewClient создаёт новый клиент провайдера.
func NewClient(cfg config.Processor, log *slog.Logger) *Client {
	c := &Client{
		secretKey:  cfg.SecretKey,
		apiURL:     cfg.APIURL,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		maxRetries: cfg.MaxRetries,
		maxElapsed: cfg.MaxElapsed,
		log:        log,
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "payment-processor",
		Timeout: cfg.BreakerOpenDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return !se.retryable()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return c
}

// Configured сообщает, заданы ли учётные данные провайдера.
func (c *Client) Configured() bool {
	return c.secretKey != ""
}

// Verify возвращает текущее состояние транзакции по ссылке.
// Вызов не меняет состояние у провайдера, поэтому безопасен для повторов.
func (c *Client) Verify(ctx context.Context, reference string) (*Transaction, error) {
	const op = "paymentprovider.Verify"
	var tx Transaction
	if _, err := c.call(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &tx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &tx, nil
}

// ListTransactions возвращает транзакции со статусом status за период [from, to].
func (c *Client) ListTransactions(ctx context.Context, status string, from, to time.Time) ([]Transaction, error) {
	const op = "paymentprovider.ListTransactions"
	var result []Transaction
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("status", status)
		q.Set("from", from.UTC().Format(time.RFC3339))
		q.Set("to", to.UTC().Format(time.RFC3339))
		q.Set("perPage", strconv.Itoa(listPageSize))
		q.Set("page", strconv.Itoa(page))

		var batch []Transaction
		meta, err := c.call(ctx, http.MethodGet, "/transaction?"+q.Encode(), nil, &batch)
		if err != nil {
			return nil, fmt.Errorf("%s: page %d: %w", op, page, err)
		}
		result = append(result, batch...)
		if meta == nil || page >= meta.PageCount || len(batch) == 0 {
			break
		}
	}
	return result, nil
}

// Initialize создаёт транзакцию у провайдера и возвращает адрес страницы оплаты.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	const op = "paymentprovider.Initialize"
	var resp InitializeResponse
	if _, err := c.call(ctx, http.MethodPost, "/transaction/initialize", req, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &resp, nil
}

// call выполняет запрос с повторами и разбирает обёртку ответа в out.
func (c *Client) call(ctx context.Context, method, path string, body, out any) (*listMeta, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("processor secret key is not set: %w", models.ErrAuthentication)
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, err
		}
	}

	operation := func() ([]byte, error) {
		raw, err := c.breaker.Execute(func() ([]byte, error) {
			return c.send(ctx, method, path, payload)
		})
		if err == nil {
			return raw, nil
		}
		var se *statusError
		switch {
		case errors.As(err, &se) && !se.retryable():
			return nil, backoff.Permanent(err)
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, backoff.Permanent(err)
		case ctx.Err() != nil:
			return nil, backoff.Permanent(ctx.Err())
		}
		c.log.Warn("processor call failed, retrying", slog.String("path", path), slog.String("error", err.Error()))
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = c.maxElapsed
	raw, err := backoff.RetryWithData(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrExternalProvider, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", models.ErrExternalProvider, err)
	}
	if !env.Status {
		return nil, fmt.Errorf("%w: %s", models.ErrExternalProvider, env.Message)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("%w: malformed data: %v", models.ErrExternalProvider, err)
		}
	}
	return env.Meta, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &statusError{code: resp.StatusCode, body: truncate(string(raw), 256)}
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
