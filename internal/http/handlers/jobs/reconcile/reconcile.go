// Package reconcile запускает сверку с платёжным провайдером по запросу планировщика.
package reconcile

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-service/internal/http/response"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// Runner выполняет один проход сверки.
type Runner interface {
	Run(ctx context.Context) (models.ReconcileResult, error)
}

// Handler обрабатывает POST /jobs/reconcile.
type Handler struct {
	log    *slog.Logger
	runner Runner
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, runner Runner) *Handler {
	return &Handler{
		log:    log,
		runner: runner,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.jobs.reconcile"
	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	result, err := h.runner.Run(r.Context())
	if err != nil {
		log.Error("reconciliation run failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("reconciliation failed"))
		return
	}
	render.JSON(w, r, result)
}
