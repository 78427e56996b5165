package routes

import (
	"github.com/go-chi/chi/v5"

	"market-hunter/internal/httpserver/deps"
	"market-hunter/internal/httpserver/handlers"
)

func init() { Register(registerHealthz) }

func registerHealthz(r chi.Router, d deps.Deps) {
	r.Get("/healthz", handlers.Healthz(d))
}
