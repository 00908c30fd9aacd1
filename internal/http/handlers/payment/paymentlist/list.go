// Package paymentlist отдаёт историю платежей пользователя.
package paymentlist

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-service/internal/http/response"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// Repository возвращает платежи пользователя.
type Repository interface {
	ListPaymentsForUser(ctx context.Context, userUID string) ([]*models.Payment, error)
}

// Item описывает платёж в ответе.
type Item struct {
	Reference string     `json:"reference"`
	Amount    float64    `json:"amount"`
	Currency  string     `json:"currency"`
	Tier      string     `json:"tier"`
	Status    string     `json:"status"`
	PaidAt    *time.Time `json:"paid_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// Handler обрабатывает GET /payments.
type Handler struct {
	log  *slog.Logger
	repo Repository
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, repo Repository) *Handler {
	return &Handler{
		log:  log,
		repo: repo,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.list"
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

	payments, err := h.repo.ListPaymentsForUser(r.Context(), userUID)
	if err != nil {
		log.Error("failed to list payments", sl.UserUID(userUID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	items := make([]Item, 0, len(payments))
	for _, p := range payments {
		items = append(items, Item{
			Reference: p.Reference,
			Amount:    models.MajorUnits(p.Amount),
			Currency:  p.Currency,
			Tier:      string(p.Tier),
			Status:    string(p.Status),
			PaidAt:    p.PaidAt,
			CreatedAt: p.CreatedAt,
		})
	}
	render.JSON(w, r, map[string]any{
		"count":    len(items),
		"payments": items,
	})
}
