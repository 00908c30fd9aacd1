// Package verify обрабатывает проверку платежа после возврата с оплаты.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/entitlement-service/internal/http/response"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// Request — тело запроса на проверку платежа.
type Request struct {
	Reference string `json:"reference" validate:"required,max=128"`
}

// Verifier проверяет платёж у провайдера и начисляет доступ.
type Verifier interface {
	Verify(ctx context.Context, reference string) (models.VerifyResult, error)
}

// Handler обрабатывает POST /verify-payment.
type Handler struct {
	log      *slog.Logger
	verifier Verifier
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, verifier Verifier) *Handler {
	return &Handler{
		log:      log,
		verifier: verifier,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.verify"
	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Warn("validation failed", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	result, err := h.verifier.Verify(r.Context(), req.Reference)
	switch {
	case errors.Is(err, models.ErrNotFound):
		log.Warn("unknown payment reference", slog.String("reference", req.Reference))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("payment not found"))
		return
	case errors.Is(err, models.ErrAuthentication):
		log.Error("payment processor credentials missing", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("payment processor is not configured"))
		return
	case err != nil:
		log.Error("payment verification failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("payment verification failed, please retry or contact support"))
		return
	}

	log.Info("payment verified", slog.String("reference", req.Reference), slog.String("status", string(result.Status)))
	render.JSON(w, r, result)
}
