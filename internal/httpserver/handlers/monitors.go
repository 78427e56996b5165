package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"market-hunter/internal/database"
	"market-hunter/internal/httpserver/deps"
	"market-hunter/internal/httpserver/mw"
	"market-hunter/internal/monitor"
	"market-hunter/internal/protocol"
	"market-hunter/internal/scraper"
)

type startRequest struct {
	Query           string              `json:"query"`
	Marketplace     string              `json:"marketplace"`
	MinPrice        decimal.NullDecimal `json:"min_price"`
	MaxPrice        decimal.NullDecimal `json:"max_price"`
	City            string              `json:"city"`
	IntervalSeconds int                 `json:"interval_seconds"`
}

func StartMonitor(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := decode(w, r, &req); err != nil {
			badRequest(w, "invalid request body")
			return
		}
		if req.IntervalSeconds < 0 {
			badRequest(w, "interval_seconds can not be negative")
			return
		}

		f := scraper.SearchFilters{
			Query:       req.Query,
			Marketplace: req.Marketplace,
			MinPrice:    req.MinPrice,
			MaxPrice:    req.MaxPrice,
			City:        req.City,
		}
		user := mw.User(r.Context())
		m, err := d.Engine.Start(r.Context(), user.ID, f, time.Duration(req.IntervalSeconds)*time.Second)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

func ListMonitors(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		monitors, err := d.Engine.List(r.Context(), mw.User(r.Context()).ID)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		if monitors == nil {
			monitors = []*database.Monitor{}
		}
		writeJSON(w, http.StatusOK, monitors)
	}
}

// StopMonitor is idempotent. Foreign ids look the same as unknown ones.
func StopMonitor(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := owned(w, r, d)
		if !ok {
			return
		}
		if err := d.Engine.Stop(r.Context(), m.ID); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func TriggerMonitor(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := owned(w, r, d)
		if !ok {
			return
		}
		report, err := d.Engine.Trigger(r.Context(), m.ID)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func MonitorListings(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := owned(w, r, d)
		if !ok {
			return
		}

		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				badRequest(w, "limit must be a positive integer")
				return
			}
			limit = n
		}

		listings, err := d.Engine.Listings(r.Context(), m.ID, limit)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}

		products := make([]protocol.Product, 0, len(listings))
		for _, l := range listings {
			products = append(products, monitor.ProductFromListing(l))
		}
		writeJSON(w, http.StatusOK, products)
	}
}

func owned(w http.ResponseWriter, r *http.Request, d deps.Deps) (*database.Monitor, bool) {
	id := chi.URLParam(r, "id")
	m, err := d.Engine.Owned(r.Context(), mw.User(r.Context()).ID, id)
	if err != nil {
		writeError(w, d.Logger, err)
		return nil, false
	}
	return m, true
}
