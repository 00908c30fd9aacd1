package middlewarectx

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-service/internal/http/response"
)

// CronSecretHeader несёт секрет планировщика.
const CronSecretHeader = "X-Cron-Secret"

// CronSecretMiddleware пропускает только запросы с верным секретом.
// Пустой секрет в конфиге закрывает эндпоинты полностью.
func CronSecretMiddleware(secret string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(CronSecretHeader)
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				log.Warn("rejected job trigger", slog.String("path", r.URL.Path))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
