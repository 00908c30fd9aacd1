// Package billing запускает биллинговый крон по запросу планировщика.
package billing

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// Runner выполняет один проход биллинга. Ошибки строк учитываются в результате.
type Runner interface {
	Run(ctx context.Context) models.BillingRunResult
}

// Handler обрабатывает POST /jobs/billing.
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
	result := h.runner.Run(r.Context())
	h.log.Info("billing run triggered",
		slog.Int("expired", result.ExpiredSubscriptions),
		slog.Int("scheduled", result.ScheduledReminders),
		slog.Int("processed", result.ProcessedReminders),
		slog.Int("failed", result.Failed),
	)
	render.JSON(w, r, result)
}
