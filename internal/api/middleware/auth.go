package middleware

import (
	"net/http"
	"strings"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/pkg/crypto"
)

// Auth - middleware аутентификации API по статическому Bearer токену
//
// Назначение:
// Защищает endpoints управления (ручные сделки, отмена ордеров,
// параметры риска, halt/resume) от неавторизованного доступа.
// Токен оператора сравнивается с bcrypt-хешем из конфигурации:
// сам токен нигде не хранится, утечка конфигурации его не раскрывает.
//
// Конфигурация:
// - API_TOKEN_HASH: bcrypt-хеш токена, генерируется утилитой cmd/tokenhash
// - Пустой хеш отключает аутентификацию (локальное развертывание)
//
// Безопасность:
// - bcrypt сравнение выполняется за константное время
// - 401 с заголовком WWW-Authenticate при отсутствии или несовпадении токена
func Auth(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Пустой хеш означает развертывание без auth
			if tokenHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w)
				return
			}

			if !crypto.CheckTokenMatch(token, tokenHash) {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken извлекает токен из заголовка Authorization: Bearer <token>
func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "

	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
