package handlers

import (
	"net/http"
	"time"

	"market-hunter/internal/httpserver/deps"
)

type healthzResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Subscribers   int     `json:"subscribers"`
}

func Healthz(d deps.Deps) http.HandlerFunc {
	start := d.StartTime
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthzResponse{
			Status:        "ok",
			UptimeSeconds: time.Since(start).Seconds(),
		}
		if d.Hub != nil {
			resp.Subscribers = d.Hub.Len()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
