// Package paymentwebhook принимает уведомления платёжного провайдера об
// успешных списаниях и прогоняет их через ту же проверку, что и возврат
// пользователя со страницы оплаты.
package paymentwebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// SignatureHeader содержит HMAC-SHA512 подписью тела запроса.
const SignatureHeader = "X-Paystack-Signature"

const (
	eventChargeSuccess = "charge.success"
	maxBodyBytes       = 1 << 20
)

// Verifier проверяет платёж у провайдера и начисляет доступ.
type Verifier interface {
	Verify(ctx context.Context, reference string) (models.VerifyResult, error)
}

// Handler обрабатывает POST /payments/webhook.
type Handler struct {
	log      *slog.Logger
	verifier Verifier
	secret   string // Секретный ключ провайдера, им же подписаны уведомления
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, verifier Verifier, secret string) *Handler {
	return &Handler{
		log:      log,
		verifier: verifier,
		secret:   secret,
	}
}

// Payload описывает уведомление провайдера. Нужна только ссылка на платёж,
// остальные данные берутся из повторной проверки.
type Payload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

// validSignature проверяет подпись уведомления.
func validSignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	signature := r.Header.Get(SignatureHeader)
	if h.secret == "" || signature == "" || !validSignature(h.secret, body, signature) {
		log.Warn("invalid or missing webhook signature")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if payload.Event != eventChargeSuccess || payload.Data.Reference == "" {
		log.Info("ignored webhook event", slog.String("event", payload.Event))
		w.WriteHeader(http.StatusOK)
		return
	}

	result, err := h.verifier.Verify(r.Context(), payload.Data.Reference)
	switch {
	case errors.Is(err, models.ErrNotFound):
		// Платёж создан не через этот сервис.
		log.Info("webhook for unknown reference", slog.String("reference", payload.Data.Reference))
	case err != nil:
		log.Error("failed to verify payment from webhook", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	default:
		log.Info("webhook processed",
			slog.String("reference", payload.Data.Reference), slog.String("status", string(result.Status)))
	}
	w.WriteHeader(http.StatusOK)
}
