// Package cancel обрабатывает отмену автопродления подписки.
package cancel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-service/internal/http/response"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// Service отменяет автопродление подписки.
type Service interface {
	Cancel(ctx context.Context, userUID string) (models.Cancellation, error)
}

// Handler обрабатывает POST /cancel-subscription.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.cancel"
	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, _, ok := middlewarectx.UserFrom(r.Context())
	if !ok {
		log.Error("user UID not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	result, err := h.service.Cancel(r.Context(), userUID)
	switch {
	case errors.Is(err, models.ErrNoActiveSubscription):
		log.Info("nothing to cancel", sl.UserUID(userUID))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("no active subscription"))
		return
	case err != nil:
		log.Error("failed to cancel subscription", sl.UserUID(userUID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to cancel subscription"))
		return
	}

	log.Info("subscription renewal canceled", sl.UserUID(userUID))
	render.JSON(w, r, result)
}
