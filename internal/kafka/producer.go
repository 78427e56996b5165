package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"market-hunter/internal/database"
	"market-hunter/internal/logger"
	"market-hunter/internal/protocol"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes engine events. It satisfies monitor.Notifier.
type Producer struct {
	writer messageWriter
	log    logger.Logger
	now    func() time.Time
}

func NewProducer(brokers []string, topic string, log logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return newProducer(writer, log)
}

func newProducer(w messageWriter, log logger.Logger) *Producer {
	if log == nil {
		log = logger.Nop()
	}
	return &Producer{writer: w, log: log, now: time.Now}
}

func (p *Producer) MonitorStarted(ctx context.Context, m *database.Monitor) error {
	return p.publish(ctx, m.ID, newMonitorEvent(EventMonitorStarted, m, p.now()))
}

func (p *Producer) MonitorStopped(ctx context.Context, m *database.Monitor) error {
	return p.publish(ctx, m.ID, newMonitorEvent(EventMonitorStopped, m, p.now()))
}

func (p *Producer) NewProducts(ctx context.Context, m *database.Monitor, products []protocol.Product) error {
	event := NewProductsEvent{
		EventType: EventNewProducts,
		MonitorID: m.ID,
		UserID:    m.UserID,
		Query:     m.Query,
		Products:  products,
		FoundAt:   p.now(),
	}
	if err := p.publish(ctx, m.ID, event); err != nil {
		return err
	}
	p.log.Debug("published new products", logger.String("monitor_id", m.ID), logger.Int("count", len(products)))
	return nil
}

// PublishScrapeRequest asks the engine to tick monitorID, or every running
// monitor when monitorID is empty.
func (p *Producer) PublishScrapeRequest(ctx context.Context, monitorID string) error {
	key := monitorID
	if key == "" {
		key = EventScrapeRequest
	}
	return p.publish(ctx, key, ScrapeRequestEvent{
		EventType: EventScrapeRequest,
		MonitorID: monitorID,
		Timestamp: p.now(),
	})
}

// Events for one monitor share a key so they stay ordered on one partition.
func (p *Producer) publish(ctx context.Context, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  p.now(),
	}
	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
