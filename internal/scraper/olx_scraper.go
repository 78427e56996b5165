package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"market-hunter/internal/utils"
)

// OLXScraper reads the public OLX search page.
type OLXScraper struct {
	name    string
	baseURL string
}

func NewOLXScraper(name, baseURL string) *OLXScraper {
	if name == "" {
		name = "olx"
	}
	if baseURL == "" {
		baseURL = "https://www.olx.ua"
	}
	return &OLXScraper{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *OLXScraper) Name() string { return s.name }

func (s *OLXScraper) Search(ctx context.Context, query string) ([]Listing, error) {
	searchURL := fmt.Sprintf("%s/uk/list/q-%s/", s.baseURL, url.PathEscape(strings.ReplaceAll(query, " ", "-")))

	c := colly.NewCollector(colly.StdlibContext(ctx))
	if deadline, ok := ctx.Deadline(); ok {
		c.SetRequestTimeout(time.Until(deadline))
	}

	urlMap := make(map[string]bool)
	var listings []Listing

	c.OnHTML("a[href*='/d/uk/obyavlenie/']", func(e *colly.HTMLElement) {
		fullURL := s.absoluteURL(e.Attr("href"))
		if fullURL == "" || urlMap[fullURL] {
			return
		}
		urlMap[fullURL] = true

		card := e.DOM.Closest("[data-cy='l-card']")

		priceText := cleanText(card.Find("p[data-testid='ad-price']").Text())
		location := cleanText(card.Find("p[data-testid='location-date']").Text())

		listings = append(listings, Listing{
			URL:         fullURL,
			Marketplace: s.name,
			Title:       cleanText(card.Find("h4").Text()),
			Price:       parsePrice(priceText),
			PriceText:   priceText,
			ImageURL:    card.Find("img").AttrOr("src", ""),
			Location:    utils.AdjustedTimeToKyiv(location),
		})
	})

	if err := c.Visit(searchURL); err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", searchURL, err)
	}

	return listings, nil
}

// absoluteURL resolves card links and drops the search tracking query.
func (s *OLXScraper) absoluteURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if i := strings.IndexByte(href, '?'); i >= 0 {
		href = href[:i]
	}
	if strings.HasPrefix(href, "/") {
		href = s.baseURL + href
	}
	return NormalizeURL(href)
}
