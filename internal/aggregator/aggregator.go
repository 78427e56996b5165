package aggregator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"market-hunter/internal/config"
	"market-hunter/internal/logger"
	"market-hunter/internal/scraper"
)

const defaultTimeout = 15 * time.Second

// Source is a marketplace client with its own call budget.
type Source struct {
	Client  scraper.Client
	Timeout time.Duration
}

// Result is the union of what every source returned for one query.
type Result struct {
	Listings []scraper.Listing
	Failed   []string
}

type Aggregator struct {
	sources []Source
	log     logger.Logger
}

func New(sources []Source, log logger.Logger) *Aggregator {
	for i := range sources {
		if sources[i].Timeout <= 0 {
			sources[i].Timeout = defaultTimeout
		}
	}
	return &Aggregator{sources: sources, log: log}
}

// FromConfig builds the clients named in the sources file.
func FromConfig(cfg []config.Source, log logger.Logger) (*Aggregator, error) {
	clients, err := scraper.NewClients(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build marketplace clients: %w", err)
	}

	sources := make([]Source, len(clients))
	for i, c := range clients {
		sources[i] = Source{Client: c, Timeout: cfg[i].Timeout}
	}
	return New(sources, log), nil
}

func (a *Aggregator) Sources() []string {
	names := make([]string, len(a.sources))
	for i, s := range a.sources {
		names[i] = s.Client.Name()
	}
	return names
}

// Aggregate queries every source concurrently and returns the union of the
// successful results, unfiltered. Failing sources are logged and skipped;
// if all fail the result is empty.
func (a *Aggregator) Aggregate(ctx context.Context, query string) []scraper.Listing {
	return a.Collect(ctx, query).Listings
}

// Collect is Aggregate with the names of the sources that failed.
func (a *Aggregator) Collect(ctx context.Context, query string) Result {
	results := make([][]scraper.Listing, len(a.sources))
	errs := make([]error, len(a.sources))

	var g errgroup.Group
	for i, src := range a.sources {
		g.Go(func() error {
			results[i], errs[i] = a.search(ctx, src, query)
			return nil
		})
	}
	_ = g.Wait()

	var out Result
	for i, src := range a.sources {
		if errs[i] != nil {
			a.log.Warn("source search failed",
				logger.String("source", src.Client.Name()),
				logger.String("query", query),
				logger.Error(errs[i]))
			out.Failed = append(out.Failed, src.Client.Name())
			continue
		}
		out.Listings = append(out.Listings, results[i]...)
	}

	if out.Listings == nil {
		out.Listings = []scraper.Listing{}
	}
	return out
}

type reply struct {
	listings []scraper.Listing
	err      error
}

// search bounds one client call by its timeout even if the client ignores
// the context.
func (a *Aggregator) search(ctx context.Context, src Source, query string) ([]scraper.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, src.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("source panicked: %v", r)}
			}
		}()
		listings, err := src.Client.Search(ctx, query)
		done <- reply{listings: listings, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		a.log.Debug("source search done",
			logger.String("source", src.Client.Name()),
			logger.Int("count", len(r.listings)),
			logger.Duration("took", time.Since(start)))
		return r.listings, nil
	}
}
