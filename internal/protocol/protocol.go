package protocol

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Message types. Consumers ignore types they do not know.
const (
	TypeConnectionEstablished = "connection_established"
	TypeNewMonitoredProducts  = "new_monitored_products"
)

var ErrMissingType = errors.New("message has no type")

// Message is one JSON document on the subscriber channel.
type Message struct {
	Type      string    `json:"type"`
	MonitorID string    `json:"monitorId,omitempty"`
	Products  []Product `json:"products,omitempty"`
}

// Product is a listing as pushed to subscribers.
type Product struct {
	ID           uint                `json:"id"`
	URL          string              `json:"originalUrl"`
	Marketplace  string              `json:"marketplace"`
	Title        string              `json:"title"`
	Description  string              `json:"description,omitempty"`
	Price        decimal.NullDecimal `json:"price"`
	ImageURL     string              `json:"image,omitempty"`
	Location     string              `json:"location,omitempty"`
	Latitude     float64             `json:"lat,omitempty"`
	Longitude    float64             `json:"lng,omitempty"`
	DiscoveredAt time.Time           `json:"discoveredAt"`
}

func ConnectionEstablished() Message {
	return Message{Type: TypeConnectionEstablished}
}

func NewMonitoredProducts(monitorID string, products []Product) Message {
	return Message{Type: TypeNewMonitoredProducts, MonitorID: monitorID, Products: products}
}

func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode parses one document. A document without a type is malformed.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, err
	}
	if msg.Type == "" {
		return Message{}, ErrMissingType
	}
	return msg, nil
}
