// Package middlewarectx содержит HTTP middleware сервиса: проверку JWT,
// ограничение частоты запросов и защиту служебных эндпоинтов секретом.
//
// JWTMiddleware проверяет токен из заголовка Authorization и в случае успеха
// кладёт в контекст идентификатор пользователя, email и роль.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-service/internal/http/response"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/jwt"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// UserUID ключ для идентификатора пользователя в контексте
	UserUID Key = "user_uid"
	// Email ключ для email пользователя в контексте
	Email Key = "email"
	// Role ключ для роли пользователя в контексте
	Role Key = "role"
)

// TokenParser разбирает и проверяет JWT.
type TokenParser interface {
	ParseToken(tokenStr string) (*jwt.CustomClaims, error)
}

// JWTMiddleware возвращает HTTP middleware, который проверяет JWT в заголовке Authorization.
//
// Если токен валиден, добавляет данные пользователя в контекст запроса,
// иначе возвращает 401 Unauthorized.
func JWTMiddleware(parser TokenParser, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"
			log := log.With(
				sl.Op(op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Warn("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("unauthorized"))
				return
			}

			claims, err := parser.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				log.Warn("invalid or expired token", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("unauthorized"))
				return
			}

			ctx := context.WithValue(r.Context(), UserUID, claims.UserUID)
			ctx = context.WithValue(ctx, Email, claims.Email)
			ctx = context.WithValue(ctx, Role, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFrom возвращает идентификатор и email пользователя из контекста.
func UserFrom(ctx context.Context) (userUID, email string, ok bool) {
	userUID, ok = ctx.Value(UserUID).(string)
	if !ok || userUID == "" {
		return "", "", false
	}
	email, _ = ctx.Value(Email).(string)
	return userUID, email, true
}
