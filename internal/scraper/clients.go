package scraper

import (
	"fmt"

	"market-hunter/internal/config"
)

// NewClients builds one client per configured source.
func NewClients(sources []config.Source) ([]Client, error) {
	clients := make([]Client, 0, len(sources))
	for _, src := range sources {
		switch src.Kind {
		case config.SourceKindHTML:
			clients = append(clients, NewOLXScraper(src.Name, src.BaseURL))
		case config.SourceKindAPI:
			c, err := NewAPIClient(src.Name, src.BaseURL, nil)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", src.Name, err)
			}
			clients = append(clients, c)
		case config.SourceKindMock:
			clients = append(clients, NewMockClient(src.Name, src.BaseURL))
		default:
			return nil, fmt.Errorf("source %s: unknown kind %q", src.Name, src.Kind)
		}
	}
	return clients, nil
}
