package scraper

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// MockClient produces deterministic listings without network calls.
// The same query always yields the same items, so repeated polls exercise
// deduplication.
type MockClient struct {
	name    string
	baseURL string
	perPage int
}

func NewMockClient(name, baseURL string) *MockClient {
	if name == "" {
		name = "mock"
	}
	base := strings.TrimSpace(baseURL)
	if base == "" {
		base = "https://example-marketplace.invalid"
	}
	return &MockClient{
		name:    name,
		baseURL: strings.TrimRight(base, "/"),
		perPage: 8,
	}
}

func (m *MockClient) Name() string { return m.name }

func (m *MockClient) Search(ctx context.Context, query string) ([]Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := strings.TrimSpace(query)
	if q == "" {
		q = "example"
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(m.name + "|" + strings.ToLower(q)))
	seed := h.Sum64()

	out := make([]Listing, 0, m.perPage)
	for i := 0; i < m.perPage; i++ {
		id := fmt.Sprintf("%x-%d", seed&0xffffff, i+1)
		price := decimal.NewFromInt(int64(100 + (seed>>uint(i*3))%900))
		out = append(out, Listing{
			URL:         m.baseURL + "/listings/" + url.PathEscape(id),
			Marketplace: m.name,
			Title:       fmt.Sprintf("%s item %d", q, i+1),
			Description: "Synthetic listing",
			Price:       decimal.NewNullDecimal(price),
			PriceText:   price.String(),
			Location:    "Example City",
		})
	}
	return out, nil
}
