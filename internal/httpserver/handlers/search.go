package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"market-hunter/internal/httpserver/deps"
	"market-hunter/internal/logger"
	"market-hunter/internal/scraper"
)

// Search runs a one-off query: /api/search?q=&marketplace=&min_price=&max_price=&city=
func Search(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		minPrice, err := parsePrice(q.Get("min_price"))
		if err != nil {
			badRequest(w, "min_price must be a number")
			return
		}
		maxPrice, err := parsePrice(q.Get("max_price"))
		if err != nil {
			badRequest(w, "max_price must be a number")
			return
		}

		f := scraper.SearchFilters{
			Query:       q.Get("q"),
			Marketplace: q.Get("marketplace"),
			MinPrice:    minPrice,
			MaxPrice:    maxPrice,
			City:        q.Get("city"),
		}

		d.Logger.Info("search request", logger.String("query", f.Query))

		listings, err := d.Engine.Search(r.Context(), f)
		if err != nil {
			if statusOf(err) == http.StatusTooManyRequests {
				w.Header().Set("Retry-After", "60")
			}
			writeError(w, d.Logger, err)
			return
		}
		if listings == nil {
			listings = []scraper.Listing{}
		}
		writeJSON(w, http.StatusOK, listings)
	}
}

func parsePrice(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v), nil
}
