package mw

import (
	"context"
	"net/http"
	"strings"

	"market-hunter/internal/database"
	"market-hunter/internal/httpserver/deps"
	"market-hunter/internal/logger"
)

type ctxKey int

const userKey ctxKey = iota

// Auth resolves "Authorization: Bearer <token>" or, for browsers opening a
// websocket, "?token=". Requests without a live session get 401.
func Auth(accounts deps.Accounts, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := Token(r)
			if token == "" {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			user, err := accounts.GetSessionUser(r.Context(), token)
			if err != nil {
				log.Error("session lookup failed", logger.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if user == nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
		})
	}
}

// Token extracts the bearer token of a request, if any.
func Token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// User returns the authenticated user. It panics outside Auth.
func User(ctx context.Context) *database.User {
	return ctx.Value(userKey).(*database.User)
}

