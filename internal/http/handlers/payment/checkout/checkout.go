// Package checkout обрабатывает создание платежа для перехода к оплате.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/entitlement-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-service/internal/http/response"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// Request — тело запроса на создание платежа.
type Request struct {
	Tier  string `json:"tier" validate:"required,oneof=monthly annual lifetime"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

// Service создаёт платёж в статусе pending.
type Service interface {
	InitializeCheckout(ctx context.Context, userUID, email, tier string) (*models.Checkout, error)
}

// Handler обрабатывает POST /checkout.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.checkout"
	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, email, ok := middlewarectx.UserFrom(r.Context())
	if !ok {
		log.Error("user UID not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Warn("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}
	if email == "" {
		email = req.Email
	}
	if email == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("email is required"))
		return
	}

	checkout, err := h.service.InitializeCheckout(r.Context(), userUID, email, req.Tier)
	switch {
	case errors.Is(err, models.ErrNotFound):
		log.Warn("plan not available", slog.String("tier", req.Tier), sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("plan is not available"))
		return
	case err != nil:
		log.Error("failed to initialize checkout", sl.UserUID(userUID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to initialize checkout"))
		return
	}

	log.Info("checkout initialized", sl.UserUID(userUID), slog.String("reference", checkout.Reference))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, checkout)
}
