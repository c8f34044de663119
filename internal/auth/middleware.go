// internal/auth/middleware.go
package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const SubscriberKey contextKey = "subscriber"

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}

		tokenStr := strings.TrimPrefix(header, "Bearer ")
		claims, err := a.ValidateToken(tokenStr)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		// Inject subscriber into context
		ctx := context.WithValue(r.Context(), SubscriberKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSubscriber extracts the subscriber id from context
func GetSubscriber(r *http.Request) string {
	if val, ok := r.Context().Value(SubscriberKey).(string); ok {
		return val
	}
	return ""
}
