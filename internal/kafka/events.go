package kafka

import (
	"time"

	"market-hunter/internal/database"
	"market-hunter/internal/protocol"
)

const (
	EventMonitorStarted = "monitor_started"
	EventMonitorStopped = "monitor_stopped"
	EventNewProducts    = "new_monitored_products"
	EventScrapeRequest  = "scrape_request"
)

type MonitorEvent struct {
	EventType       string    `json:"event_type"`
	MonitorID       string    `json:"monitor_id"`
	UserID          uint      `json:"user_id"`
	Query           string    `json:"query"`
	Marketplace     string    `json:"marketplace,omitempty"`
	City            string    `json:"city,omitempty"`
	IntervalSeconds int       `json:"interval_seconds"`
	At              time.Time `json:"at"`
}

func newMonitorEvent(eventType string, m *database.Monitor, at time.Time) MonitorEvent {
	return MonitorEvent{
		EventType:       eventType,
		MonitorID:       m.ID,
		UserID:          m.UserID,
		Query:           m.Query,
		Marketplace:     m.Marketplace,
		City:            m.City,
		IntervalSeconds: m.IntervalSeconds,
		At:              at,
	}
}

// ScrapeRequestEvent asks the engine to tick one monitor now, or every
// running monitor when MonitorID is empty.
type ScrapeRequestEvent struct {
	EventType string    `json:"event_type"`
	MonitorID string    `json:"monitor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type NewProductsEvent struct {
	EventType string             `json:"event_type"`
	MonitorID string             `json:"monitor_id"`
	UserID    uint               `json:"user_id"`
	Query     string             `json:"query"`
	Products  []protocol.Product `json:"products"`
	FoundAt   time.Time          `json:"found_at"`
}
