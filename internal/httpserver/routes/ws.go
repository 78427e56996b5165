package routes

import (
	"github.com/go-chi/chi/v5"

	"market-hunter/internal/httpserver/deps"
	"market-hunter/internal/httpserver/handlers"
	"market-hunter/internal/httpserver/mw"
)

func init() { Register(registerWS) }

// The socket outlives any request timeout, so /ws sits outside /api.
func registerWS(r chi.Router, d deps.Deps) {
	r.With(mw.Auth(d.Accounts, d.Logger)).Get("/ws", handlers.Subscribe(d))
}
