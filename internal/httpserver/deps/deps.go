package deps

import (
	"context"
	"net/http"
	"time"

	"market-hunter/internal/database"
	"market-hunter/internal/logger"
	"market-hunter/internal/monitor"
	"market-hunter/internal/scraper"
)

// Engine is the monitor service as seen by the API. *monitor.Service
// implements it.
type Engine interface {
	Start(ctx context.Context, ownerID uint, f scraper.SearchFilters, interval time.Duration) (*database.Monitor, error)
	Stop(ctx context.Context, monitorID string) error
	Owned(ctx context.Context, ownerID uint, monitorID string) (*database.Monitor, error)
	List(ctx context.Context, ownerID uint) ([]*database.Monitor, error)
	Listings(ctx context.Context, monitorID string, limit int) ([]*database.Listing, error)
	Trigger(ctx context.Context, monitorID string) (monitor.TickReport, error)
	Search(ctx context.Context, f scraper.SearchFilters) ([]scraper.Listing, error)
}

// Accounts covers users and bearer sessions. *database.DB implements it.
type Accounts interface {
	CreateUser(ctx context.Context, username, password string) (*database.User, error)
	Authenticate(ctx context.Context, username, password string) (*database.User, error)
	CreateSession(ctx context.Context, userID uint, ttl time.Duration) (*database.Session, error)
	GetSessionUser(ctx context.Context, token string) (*database.User, error)
	DeleteSession(ctx context.Context, token string) error
	SetTelegramID(ctx context.Context, userID uint, telegramID int64) error
}

// Subscribers accepts websocket upgrades. *hub.Hub implements it.
type Subscribers interface {
	Serve(w http.ResponseWriter, r *http.Request, ownerID uint)
	Len() int
}

type Deps struct {
	Logger     logger.Logger
	StartTime  time.Time
	Engine     Engine
	Accounts   Accounts
	Hub        Subscribers
	SessionTTL time.Duration
	// Requests other than /ws are cancelled after this long.
	RequestTimeout time.Duration
}
