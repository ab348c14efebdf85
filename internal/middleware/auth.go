// Package middleware содержит HTTP middleware кредитного движка.
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
	"time"

	"github.com/mmeshcher/agroloan-system/internal/model"
)

type contextKey string

const actorKey contextKey = "actor"

const (
	authCookieName = "auth_token"
	authCookieTTL  = 365 * 24 * time.Hour
)

// Actor — аутентифицированное действующее лицо запроса.
type Actor struct {
	ID   int64
	Type model.ActorType
}

// AuthMiddleware выполняет проверку аутентификации по подписанному cookie.
// Cookie выпускается пользовательским модулем платформы с тем же секретом.
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

// Middleware проверяет cookie авторизации и добавляет актора в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		actor, ok := a.parseCookie(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole пропускает запрос дальше только для актора указанного типа.
func RequireRole(role model.ActorType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := GetActorFromContext(r.Context())
			if !ok || actor.Type != role {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SetAuthCookie устанавливает cookie авторизации для указанного актора.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, actor Actor) {
	value := a.sign(encodeActor(actor))

	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(authCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func encodeActor(actor Actor) string {
	return string(actor.Type) + ":" + strconv.FormatInt(actor.ID, 10)
}

func (a *AuthMiddleware) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	signature := mac.Sum(nil)
	return payload + "." + hex.EncodeToString(signature)
}

func (a *AuthMiddleware) parseCookie(cookieValue string) (Actor, bool) {
	parts := strings.Split(cookieValue, ".")
	if len(parts) != 2 {
		return Actor{}, false
	}

	payload := parts[0]
	signature := parts[1]

	expected := a.sign(payload)
	expectedParts := strings.Split(expected, ".")
	if len(expectedParts) != 2 {
		return Actor{}, false
	}

	if !hmac.Equal([]byte(signature), []byte(expectedParts[1])) {
		return Actor{}, false
	}

	fields := strings.Split(payload, ":")
	if len(fields) != 2 {
		return Actor{}, false
	}

	actorType, err := model.ParseActorType(fields[0])
	if err != nil {
		return Actor{}, false
	}

	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Actor{}, false
	}

	return Actor{ID: id, Type: actorType}, true
}

// GetActorFromContext извлекает актора из контекста запроса.
func GetActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}
