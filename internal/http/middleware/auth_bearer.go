package middleware

import (
	"context"
	"net/http"
	"strings"
)

// AuthBearer извлекает Bearer-токен из Authorization и кладёт "сырой" токен
// в контекст (см. AccessTokenFrom). Токен нужен logout'у issuer'а; шлюз его
// не проверяет.
func AuthBearer() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const prefix = "Bearer "

			auth := r.Header.Get("Authorization")
			if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
				if token := strings.TrimSpace(auth[len(prefix):]); token != "" {
					r = r.WithContext(context.WithValue(r.Context(), ctxAccessToken, token))
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
