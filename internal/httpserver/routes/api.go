package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"market-hunter/internal/httpserver/deps"
	"market-hunter/internal/httpserver/handlers"
	"market-hunter/internal/httpserver/mw"
)

const defaultRequestTimeout = 30 * time.Second

func init() { Register(registerAPI) }

func registerAPI(r chi.Router, d deps.Deps) {
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))

		r.Post("/auth/register", handlers.Register(d))
		r.Post("/auth/login", handlers.Login(d))

		r.Group(func(r chi.Router) {
			r.Use(mw.Auth(d.Accounts, d.Logger))

			r.Post("/auth/logout", handlers.Logout(d))
			r.Put("/me/telegram", handlers.LinkTelegram(d))

			r.Get("/search", handlers.Search(d))

			r.Post("/monitors", handlers.StartMonitor(d))
			r.Get("/monitors", handlers.ListMonitors(d))
			r.Delete("/monitors/{id}", handlers.StopMonitor(d))
			r.Post("/monitors/{id}/trigger", handlers.TriggerMonitor(d))
			r.Get("/monitors/{id}/listings", handlers.MonitorListings(d))
		})
	})
}
