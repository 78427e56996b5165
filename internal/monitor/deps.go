package monitor

import (
	"context"
	"errors"
	"time"

	"market-hunter/internal/aggregator"
	"market-hunter/internal/database"
	"market-hunter/internal/logger"
	"market-hunter/internal/protocol"
	"market-hunter/internal/scraper"
)

var (
	ErrInvalidFilter      = errors.New("invalid monitor filter")
	ErrIntervalTooShort   = errors.New("poll interval is below the allowed minimum")
	ErrUnknownMarketplace = errors.New("unknown marketplace")
	ErrMonitorNotFound    = errors.New("monitor not found")
	ErrNotRunning         = errors.New("monitor is not running")
	ErrQuotaExceeded      = errors.New("active monitor limit reached")
	ErrRateLimited        = errors.New("query was searched too recently, try again later")
)

// Store is the persistence the engine needs. *database.DB implements it.
type Store interface {
	CreateMonitor(ctx context.Context, m *database.Monitor) error
	GetMonitor(ctx context.Context, monitorID string) (*database.Monitor, error)
	GetUserMonitors(ctx context.Context, userID uint) ([]*database.Monitor, error)
	GetActiveMonitors(ctx context.Context) ([]*database.Monitor, error)
	CountActiveMonitors(ctx context.Context, userID uint) (int, error)
	DeactivateMonitor(ctx context.Context, monitorID string) (bool, error)
	GetEntitlement(ctx context.Context, userID uint) (*database.Entitlement, error)

	SaveListing(ctx context.Context, l *database.Listing) (uint, bool, error)
	LinkListing(ctx context.Context, monitorID string, listingID uint) (bool, error)
	ListingKeys(ctx context.Context) ([]database.ListingKey, error)
	MonitorListingKeys(ctx context.Context, monitorID string) ([]database.ListingKey, error)
	GetMonitorListings(ctx context.Context, monitorID string, limit int) ([]*database.Listing, error)
}

// Searcher fans a query out to the marketplaces. *aggregator.Aggregator
// implements it.
type Searcher interface {
	Collect(ctx context.Context, query string) aggregator.Result
	Sources() []string
}

// Broadcaster delivers a message to the live connections of one owner.
type Broadcaster interface {
	BroadcastScoped(monitorID string, ownerID uint, msg protocol.Message)
}

// Notifier mirrors lifecycle and discovery events to other services.
type Notifier interface {
	MonitorStarted(ctx context.Context, m *database.Monitor) error
	MonitorStopped(ctx context.Context, m *database.Monitor) error
	NewProducts(ctx context.Context, m *database.Monitor, products []protocol.Product) error
}

// TickRecorder keeps a journal of completed ticks.
type TickRecorder interface {
	RecordTick(ctx context.Context, r TickReport) error
}

// SearchCache holds search-only results and gates repeated scrapes.
type SearchCache interface {
	Get(ctx context.Context, key string) ([]scraper.Listing, bool)
	Set(ctx context.Context, key string, listings []scraper.Listing)
	Allow(ctx context.Context, key string) bool
}

type Config struct {
	DefaultInterval    time.Duration
	MinInterval        time.Duration
	DefaultMaxMonitors int
}

// Deps are the collaborators of a Service. Notifier, Journal and Cache are
// optional.
type Deps struct {
	Store    Store
	Sources  Searcher
	Hub      Broadcaster
	Notifier Notifier
	Journal  TickRecorder
	Cache    SearchCache
	Logger   logger.Logger
	TimeNow  func() time.Time
}
