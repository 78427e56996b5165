package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

func (db *DB) CreateUser(ctx context.Context, username, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &User{
		Username:     strings.TrimSpace(username),
		PasswordHash: string(hash),
	}

	err = db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrUsernameTaken
	}
	return user, err
}

func (db *DB) Authenticate(ctx context.Context, username, password string) (*User, error) {
	var user User
	err := db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func (db *DB) GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	var user User
	err := db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &user, err
}

func (db *DB) GetUserByID(ctx context.Context, userID uint) (*User, error) {
	var user User
	err := db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &user, err
}

func (db *DB) SetTelegramID(ctx context.Context, userID uint, telegramID int64) error {
	return db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Update("telegram_id", telegramID).Error
}

func (db *DB) CreateSession(ctx context.Context, userID uint, ttl time.Duration) (*Session, error) {
	session := &Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl),
	}
	err := db.WithContext(ctx).Create(session).Error
	return session, err
}

// GetSessionUser returns the owner of a live session, or nil.
func (db *DB) GetSessionUser(ctx context.Context, token string) (*User, error) {
	var session Session
	err := db.WithContext(ctx).
		Preload("User").
		Where("token = ? AND expires_at > ?", token, time.Now()).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session.User, nil
}

func (db *DB) DeleteSession(ctx context.Context, token string) error {
	return db.WithContext(ctx).Where("token = ?", token).Delete(&Session{}).Error
}

func (db *DB) GetEntitlement(ctx context.Context, userID uint) (*Entitlement, error) {
	var ent Entitlement
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&ent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &ent, err
}

func (db *DB) SetEntitlement(ctx context.Context, ent *Entitlement) error {
	return db.WithContext(ctx).Save(ent).Error
}

func (db *DB) CreateMonitor(ctx context.Context, m *Monitor) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.IsActive = true
	return db.WithContext(ctx).Create(m).Error
}

func (db *DB) GetMonitor(ctx context.Context, monitorID string) (*Monitor, error) {
	var m Monitor
	err := db.WithContext(ctx).Where("id = ?", monitorID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &m, err
}

func (db *DB) GetUserMonitors(ctx context.Context, userID uint) ([]*Monitor, error) {
	var monitors []*Monitor
	err := db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc").Find(&monitors).Error
	return monitors, err
}

func (db *DB) GetActiveMonitors(ctx context.Context) ([]*Monitor, error) {
	var monitors []*Monitor
	err := db.WithContext(ctx).Where("is_active = ?", true).Order("created_at").Find(&monitors).Error
	return monitors, err
}

func (db *DB) CountActiveMonitors(ctx context.Context, userID uint) (int, error) {
	var count int64
	err := db.WithContext(ctx).Model(&Monitor{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Count(&count).Error
	return int(count), err
}

// DeactivateMonitor marks the monitor inactive. It reports true only for the
// call that actually flipped the row.
func (db *DB) DeactivateMonitor(ctx context.Context, monitorID string) (bool, error) {
	res := db.WithContext(ctx).Model(&Monitor{}).
		Where("id = ? AND is_active = ?", monitorID, true).
		Update("is_active", false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SaveListing inserts the listing unless its (url, marketplace) identity is
// already stored, and returns the row id either way.
func (db *DB) SaveListing(ctx context.Context, l *Listing) (uint, bool, error) {
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "url"}, {Name: "marketplace"}},
			DoNothing: true,
		}).
		Create(l).Error
	if err != nil {
		return 0, false, err
	}
	if l.ID != 0 {
		return l.ID, true, nil
	}

	var existing Listing
	err = db.WithContext(ctx).
		Select("id").
		Where("url = ? AND marketplace = ?", l.URL, l.Marketplace).
		First(&existing).Error
	if err != nil {
		return 0, false, err
	}
	return existing.ID, false, nil
}

// LinkListing records that a monitor surfaced a listing. It reports false
// when the edge already existed.
func (db *DB) LinkListing(ctx context.Context, monitorID string, listingID uint) (bool, error) {
	edge := &MonitorListing{MonitorID: monitorID, ListingID: listingID}
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "monitor_id"}, {Name: "listing_id"}},
			DoNothing: true,
		}).
		Create(edge)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (db *DB) ListingKeys(ctx context.Context) ([]ListingKey, error) {
	var keys []ListingKey
	err := db.WithContext(ctx).Model(&Listing{}).
		Select("id, url, marketplace").
		Scan(&keys).Error
	return keys, err
}

func (db *DB) MonitorListingKeys(ctx context.Context, monitorID string) ([]ListingKey, error) {
	var keys []ListingKey
	err := db.WithContext(ctx).Table("monitor_listings").
		Select("listings.id, listings.url, listings.marketplace").
		Joins("JOIN listings ON listings.id = monitor_listings.listing_id").
		Where("monitor_listings.monitor_id = ?", monitorID).
		Scan(&keys).Error
	return keys, err
}

func (db *DB) GetMonitorListings(ctx context.Context, monitorID string, limit int) ([]*Listing, error) {
	var listings []*Listing
	err := db.WithContext(ctx).
		Joins("JOIN monitor_listings ON monitor_listings.listing_id = listings.id").
		Where("monitor_listings.monitor_id = ?", monitorID).
		Order("monitor_listings.created_at desc").
		Limit(limit).
		Find(&listings).Error
	return listings, err
}
