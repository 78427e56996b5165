package handlers

import (
	"net/http"

	"market-hunter/internal/httpserver/deps"
	"market-hunter/internal/httpserver/mw"
)

// Subscribe upgrades to a websocket that receives the caller's monitor
// updates.
func Subscribe(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Hub.Serve(w, r, mw.User(r.Context()).ID)
	}
}
