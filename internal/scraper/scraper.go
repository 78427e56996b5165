package scraper

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Listing is one candidate item returned by a marketplace client.
// (URL, Marketplace) identifies it across sources and polls.
type Listing struct {
	URL         string              `json:"url"`
	Marketplace string              `json:"marketplace"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Price       decimal.NullDecimal `json:"price"`
	PriceText   string              `json:"price_text,omitempty"`
	ImageURL    string              `json:"image_url,omitempty"`
	Location    string              `json:"location,omitempty"`
	Latitude    float64             `json:"lat,omitempty"`
	Longitude   float64             `json:"lng,omitempty"`
}

type SearchFilters struct {
	Query       string              `json:"query"`
	Marketplace string              `json:"marketplace,omitempty"`
	MinPrice    decimal.NullDecimal `json:"min_price"`
	MaxPrice    decimal.NullDecimal `json:"max_price"`
	City        string              `json:"city,omitempty"`
}

// Client searches one marketplace.
type Client interface {
	Name() string
	Search(ctx context.Context, query string) ([]Listing, error)
}

const maxQueryLength = 100

var (
	ErrEmptyQuery    = errors.New("query is required")
	ErrQueryTooLong  = fmt.Errorf("query is longer than %d characters", maxQueryLength)
	ErrNegativePrice = errors.New("prices can not be negative")
	ErrPriceRange    = errors.New("min price can not be greater than max price")
)

// Normalize trims free-text fields and lowercases the marketplace name.
func (f SearchFilters) Normalize() SearchFilters {
	f.Query = strings.Join(strings.Fields(f.Query), " ")
	f.Marketplace = strings.ToLower(strings.TrimSpace(f.Marketplace))
	f.City = strings.TrimSpace(f.City)
	return f
}

func (f SearchFilters) Validate() error {
	if f.Query == "" {
		return ErrEmptyQuery
	}
	if len([]rune(f.Query)) > maxQueryLength {
		return ErrQueryTooLong
	}
	if (f.MinPrice.Valid && f.MinPrice.Decimal.IsNegative()) ||
		(f.MaxPrice.Valid && f.MaxPrice.Decimal.IsNegative()) {
		return ErrNegativePrice
	}
	if f.MinPrice.Valid && f.MaxPrice.Valid && f.MinPrice.Decimal.GreaterThan(f.MaxPrice.Decimal) {
		return ErrPriceRange
	}
	return nil
}

// Match reports whether a listing passes the marketplace, price and city
// restrictions. A listing without a known price fails any price bound.
func (f SearchFilters) Match(l Listing) bool {
	if f.Marketplace != "" && !strings.EqualFold(f.Marketplace, l.Marketplace) {
		return false
	}

	if f.MinPrice.Valid || f.MaxPrice.Valid {
		if !l.Price.Valid {
			return false
		}
		if f.MinPrice.Valid && l.Price.Decimal.LessThan(f.MinPrice.Decimal) {
			return false
		}
		if f.MaxPrice.Valid && l.Price.Decimal.GreaterThan(f.MaxPrice.Decimal) {
			return false
		}
	}

	if f.City != "" {
		if !strings.Contains(strings.ToLower(l.Location), strings.ToLower(f.City)) {
			return false
		}
	}

	return true
}

// CacheKey is a stable key for the whole filter.
func (f SearchFilters) CacheKey() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s",
		strings.ToLower(f.Query), f.Marketplace, nullString(f.MinPrice), nullString(f.MaxPrice), strings.ToLower(f.City))
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String()
}

// NormalizeURL trims the link and drops the fragment.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	return raw
}

var (
	cssRegex      = regexp.MustCompile(`\.css-[^;]+;|\.css-[^}]+}`)
	propertyRegex = regexp.MustCompile(`[a-zA-Z-]+:\s*[^;]+;`)
	spaceRegex    = regexp.MustCompile(`\s+`)
	priceRegex    = regexp.MustCompile(`[^\d.,]`)
)

// cleanText strips inline CSS left in OLX card text and collapses whitespace.
func cleanText(text string) string {
	text = cssRegex.ReplaceAllString(text, "")
	text = propertyRegex.ReplaceAllString(text, "")
	text = spaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// parsePrice turns "12 500 грн." into 12500. Text without digits
// ("Договірна", "Безкоштовно") has no price.
func parsePrice(priceStr string) decimal.NullDecimal {
	cleaned := priceRegex.ReplaceAllString(priceStr, "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	cleaned = strings.Trim(cleaned, ".")
	if cleaned == "" {
		return decimal.NullDecimal{}
	}

	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(price)
}
