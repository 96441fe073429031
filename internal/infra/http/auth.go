package http

import (
	"crypto/hmac"
	"net/http"
	"strings"
)

// TokenAuthMiddleware проверяет заголовок Authorization: Bearer <token>.
// Пустой токен отключает проверку.
func TokenAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || !hmac.Equal([]byte(got), []byte(token)) {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
