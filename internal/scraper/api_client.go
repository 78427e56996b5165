package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// APIClient talks to a marketplace's official JSON search endpoint:
//
//	GET {base}/api/search?q=...  -> {"listings":[...]} or [...]
type APIClient struct {
	name    string
	baseURL string
	client  *http.Client
}

type apiListing struct {
	URL         string              `json:"url"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Price       decimal.NullDecimal `json:"price"`
	Image       string              `json:"image"`
	Location    string              `json:"location"`
	Lat         float64             `json:"lat"`
	Lng         float64             `json:"lng"`
}

// NewAPIClient returns a client for baseURL. Request timeouts come from the
// caller's context; client may be nil.
func NewAPIClient(name, baseURL string, client *http.Client) (*APIClient, error) {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return nil, errors.New("base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if client == nil {
		client = &http.Client{}
	}
	return &APIClient{
		name:    name,
		baseURL: strings.TrimRight(base, "/"),
		client:  client,
	}, nil
}

func (a *APIClient) Name() string { return a.name }

func (a *APIClient) Search(ctx context.Context, query string) ([]Listing, error) {
	u := a.baseURL + "/api/search?" + url.Values{"q": {strings.TrimSpace(query)}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	items, err := decodeAPIListings(body)
	if err != nil {
		return nil, err
	}

	listings := make([]Listing, 0, len(items))
	for _, it := range items {
		link := NormalizeURL(it.URL)
		if link == "" {
			continue
		}
		listings = append(listings, Listing{
			URL:         link,
			Marketplace: a.name,
			Title:       strings.TrimSpace(it.Title),
			Description: strings.TrimSpace(it.Description),
			Price:       it.Price,
			ImageURL:    strings.TrimSpace(it.Image),
			Location:    strings.TrimSpace(it.Location),
			Latitude:    it.Lat,
			Longitude:   it.Lng,
		})
	}
	return listings, nil
}

// decodeAPIListings accepts both object-wrapped and bare-array payloads.
func decodeAPIListings(body []byte) ([]apiListing, error) {
	var wrapped struct {
		Listings []apiListing `json:"listings"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Listings != nil {
		return wrapped.Listings, nil
	}

	var arr []apiListing
	if err := json.Unmarshal(body, &arr); err != nil {
		return nil, fmt.Errorf("search payload parse: %w", err)
	}
	return arr, nil
}
