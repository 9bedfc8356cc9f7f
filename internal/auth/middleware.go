package auth

import (
	"context"
	"net/http"
	"strings"

	"taskpilot-backend/internal/analytics"
)

type ctxKey string

const principalKey ctxKey = "principal"

type Middleware struct {
	secret []byte
}

func New(secret []byte) Middleware {
	return Middleware{secret: secret}
}

// Wrap requires a valid bearer token and binds the resulting principal to
// the request context. Until a session resolves, nothing behind this
// middleware is reachable, which is what keeps unbound mutations out of the
// task store.
func (m Middleware) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		token := ""
		if strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		} else if t := r.URL.Query().Get("token"); t != "" {
			// EventSource cannot set headers.
			token = t
		}
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		principal, err := ParseToken(m.secret, token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		ctx = analytics.WithPrincipal(ctx, principal)

		next(w, r.WithContext(ctx))
	}
}

func PrincipalFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(principalKey).(string)
	return v, ok && v != ""
}
