// Package middleware содержит HTTP middleware сервиса бронирования судов.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"github.com/vpanarin/vesselbook/internal/model"
)

type contextKey string

const identityKey contextKey = "identity"

const authCookieName = "auth_token"

// Identity — проверенный контекст вызова: идентификатор и роль пользователя.
// Токен выпускает внешний сервис аутентификации; ядро лишь проверяет подпись
// и повторно сверяет роль на административных операциях.
type Identity struct {
	UserID int64
	Role   model.UserRole
}

// AuthMiddleware проверяет подписанный токен аутентификации из cookie.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет токен и добавляет идентификатор и роль пользователя
// в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		id, ok := a.ParseToken(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IssueToken подписывает пару (идентификатор, роль). Используется внешним
// слоем аутентификации и тестами.
func (a *AuthMiddleware) IssueToken(userID int64, role model.UserRole) string {
	payload := strconv.FormatInt(userID, 10) + "." + string(role)
	return payload + "." + a.sign(payload)
}

// ParseToken проверяет подпись токена и возвращает идентификацию вызова.
func (a *AuthMiddleware) ParseToken(token string) (Identity, bool) {
	idx := strings.LastIndex(token, ".")
	if idx <= 0 {
		return Identity{}, false
	}

	payload := token[:idx]
	signature := token[idx+1:]

	if !hmac.Equal([]byte(signature), []byte(a.sign(payload))) {
		return Identity{}, false
	}

	parts := strings.Split(payload, ".")
	if len(parts) != 2 {
		return Identity{}, false
	}

	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Identity{}, false
	}

	role := model.UserRole(parts[1])
	if role != model.RoleAdmin && role != model.RoleUser {
		return Identity{}, false
	}

	return Identity{UserID: userID, Role: role}, true
}

func (a *AuthMiddleware) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// IdentityFromContext извлекает идентификацию вызова из контекста запроса.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
