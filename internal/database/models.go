package database

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"market-hunter/internal/scraper"
)

type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"size:50;uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"size:100;not null"`
	TelegramID   *int64    `json:"telegram_id,omitempty" gorm:"uniqueIndex"`
	CreatedAt    time.Time `json:"created_at"`

	Monitors []Monitor `json:"-" gorm:"foreignKey:UserID"`
}

type Session struct {
	Token     string    `json:"token" gorm:"primaryKey;size:36"`
	UserID    uint      `json:"user_id" gorm:"not null;index"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`

	User User `json:"-"`
}

// Entitlement caps what a user may run. Users without a row get the
// configured defaults.
type Entitlement struct {
	UserID             uint      `json:"user_id" gorm:"primaryKey"`
	MaxMonitors        int       `json:"max_monitors" gorm:"not null"`
	MinIntervalSeconds int       `json:"min_interval_seconds" gorm:"not null"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (e *Entitlement) MinInterval() time.Duration {
	return time.Duration(e.MinIntervalSeconds) * time.Second
}

// Monitor is a standing search. Its filter never changes after creation;
// stopping only clears IsActive so the surfaced history stays linked.
type Monitor struct {
	ID              string              `json:"id" gorm:"primaryKey;size:36"`
	UserID          uint                `json:"user_id" gorm:"not null;index"`
	Query           string              `json:"query" gorm:"size:100;not null"`
	Marketplace     string              `json:"marketplace,omitempty" gorm:"size:50"`
	MinPrice        decimal.NullDecimal `json:"min_price" gorm:"type:numeric(14,2)"`
	MaxPrice        decimal.NullDecimal `json:"max_price" gorm:"type:numeric(14,2)"`
	City            string              `json:"city,omitempty" gorm:"size:50"`
	IntervalSeconds int                 `json:"interval_seconds" gorm:"not null"`
	IsActive        bool                `json:"is_active" gorm:"default:true;index"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func (m *Monitor) Filters() scraper.SearchFilters {
	return scraper.SearchFilters{
		Query:       m.Query,
		Marketplace: m.Marketplace,
		MinPrice:    m.MinPrice,
		MaxPrice:    m.MaxPrice,
		City:        m.City,
	}
}

func (m *Monitor) Interval() time.Duration {
	return time.Duration(m.IntervalSeconds) * time.Second
}

type Listing struct {
	ID           uint                `json:"id" gorm:"primaryKey"`
	URL          string              `json:"url" gorm:"size:1024;not null;uniqueIndex:idx_listing_identity"`
	Marketplace  string              `json:"marketplace" gorm:"size:50;not null;uniqueIndex:idx_listing_identity"`
	Title        string              `json:"title" gorm:"size:255"`
	Description  string              `json:"description,omitempty" gorm:"type:text"`
	Price        decimal.NullDecimal `json:"price" gorm:"type:numeric(14,2)"`
	ImageURL     string              `json:"image_url,omitempty" gorm:"size:1024"`
	Location     string              `json:"location,omitempty" gorm:"size:255"`
	Latitude     float64             `json:"lat,omitempty"`
	Longitude    float64             `json:"lng,omitempty"`
	DiscoveredAt time.Time           `json:"discovered_at" gorm:"not null"`
}

// NewListing copies a scraped candidate into a row stamped with now.
func NewListing(l scraper.Listing, now time.Time) *Listing {
	return &Listing{
		URL:          l.URL,
		Marketplace:  l.Marketplace,
		Title:        l.Title,
		Description:  l.Description,
		Price:        l.Price,
		ImageURL:     l.ImageURL,
		Location:     l.Location,
		Latitude:     l.Latitude,
		Longitude:    l.Longitude,
		DiscoveredAt: now,
	}
}

type MonitorListing struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	MonitorID string    `json:"monitor_id" gorm:"size:36;not null;uniqueIndex:idx_monitor_listing"`
	ListingID uint      `json:"listing_id" gorm:"not null;uniqueIndex:idx_monitor_listing"`
	CreatedAt time.Time `json:"created_at"`

	Monitor Monitor `json:"-" gorm:"constraint:OnDelete:RESTRICT"`
	Listing Listing `json:"-" gorm:"constraint:OnDelete:RESTRICT"`
}

// ListingKey is the identity of a stored listing.
type ListingKey struct {
	ID          uint
	URL         string
	Marketplace string
}

type DB struct {
	*gorm.DB
}

func Connect(dsn string) (*DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

func (db *DB) Migrate() error {
	if err := db.AutoMigrate(&User{}, &Session{}, &Entitlement{}, &Monitor{}, &Listing{}, &MonitorListing{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
