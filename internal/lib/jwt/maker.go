// Package jwt выпускает и проверяет токены доступа к API подписок.
//
// Токен несёт неизменяемый идентификатор пользователя (claim user_uid,
// для сторонних выпускающих достаточно sub), email и роль.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// leeway допускает расхождение часов между выпускающим сервисом и API.
const leeway = 30 * time.Second

// ErrNoUserUID возвращается для токена без пользователя.
var ErrNoUserUID = errors.New("token has no user uid")

// CustomClaims описывает пользовательские данные, хранящиеся в JWT.
type CustomClaims struct {
	UserUID string `json:"user_uid,omitempty"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// MakerImpl подписывает токены HS256 общим секретом.
type MakerImpl struct {
	secretKey []byte
	tokenTTL  time.Duration
	parser    *jwt.Parser
}

// NewJWTMaker создаёт новый экземпляр MakerImpl на основе секретного ключа и TTL.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: []byte(secretKey),
		tokenTTL:  ttl,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithLeeway(leeway),
			jwt.WithExpirationRequired(),
		),
	}
}

// GenerateToken выпускает токен для пользователя на tokenTTL.
func (j *MakerImpl) GenerateToken(userUID, email, role string) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		UserUID: userUID,
		Email:   email,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userUID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secretKey)
}

// ParseToken проверяет подпись и срок действия токена. Если user_uid
// не задан, идентификатором считается sub.
func (j *MakerImpl) ParseToken(tokenStr string) (*CustomClaims, error) {
	const op = "jwt.ParseToken"
	claims := &CustomClaims{}
	_, err := j.parser.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
		return j.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if claims.UserUID == "" {
		claims.UserUID = claims.Subject
	}
	if claims.UserUID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNoUserUID)
	}
	return claims, nil
}
