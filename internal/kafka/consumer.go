package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"market-hunter/internal/logger"
	"market-hunter/internal/monitor"
)

const readRetryDelay = time.Second

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader messageReader
	log    logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    10e3,
		MaxBytes:    10e6,
		MaxWait:     1 * time.Second,
	})
	return newConsumer(reader, log)
}

func newConsumer(r messageReader, log logger.Logger) *Consumer {
	if log == nil {
		log = logger.Nop()
	}
	return &Consumer{reader: r, log: log}
}

// ProcessEvents reads until ctx is done. Handler errors are logged and the
// message is skipped.
func (c *Consumer) ProcessEvents(ctx context.Context, handler EventHandler) error {
	for {
		message, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("consumer stopping")
				return ctx.Err()
			}
			c.log.Warn("error reading message", logger.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(readRetryDelay):
			}
			continue
		}

		if err := c.handleMessage(ctx, message, handler); err != nil {
			c.log.Warn("error handling message",
				logger.Int("partition", message.Partition),
				logger.Int("offset", int(message.Offset)),
				logger.Error(err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

type EventHandler interface {
	HandleMonitorStarted(ctx context.Context, event MonitorEvent) error
	HandleMonitorStopped(ctx context.Context, event MonitorEvent) error
	HandleNewProducts(ctx context.Context, event NewProductsEvent) error
	HandleScrapeRequest(ctx context.Context, event ScrapeRequestEvent) error
}

// BaseHandler ignores every event. Embed it and override what you need.
type BaseHandler struct{}

func (BaseHandler) HandleMonitorStarted(context.Context, MonitorEvent) error { return nil }
func (BaseHandler) HandleMonitorStopped(context.Context, MonitorEvent) error { return nil }
func (BaseHandler) HandleNewProducts(context.Context, NewProductsEvent) error { return nil }
func (BaseHandler) HandleScrapeRequest(context.Context, ScrapeRequestEvent) error { return nil }

var errUnknownFormat = errors.New("unknown event format")

func (c *Consumer) handleMessage(ctx context.Context, message kafka.Message, handler EventHandler) error {
	c.log.Debug("received message",
		logger.String("key", string(message.Key)),
		logger.Int("partition", message.Partition),
		logger.Int("offset", int(message.Offset)))

	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return fmt.Errorf("%w: %w", errUnknownFormat, err)
	}

	switch envelope.EventType {
	case EventMonitorStarted, EventMonitorStopped:
		var event MonitorEvent
		if err := json.Unmarshal(message.Value, &event); err != nil {
			return err
		}
		if envelope.EventType == EventMonitorStarted {
			return handler.HandleMonitorStarted(ctx, event)
		}
		return handler.HandleMonitorStopped(ctx, event)

	case EventNewProducts:
		var event NewProductsEvent
		if err := json.Unmarshal(message.Value, &event); err != nil {
			return err
		}
		return handler.HandleNewProducts(ctx, event)

	case EventScrapeRequest:
		var event ScrapeRequestEvent
		if err := json.Unmarshal(message.Value, &event); err != nil {
			return err
		}
		return handler.HandleScrapeRequest(ctx, event)

	case "":
		return errUnknownFormat

	default:
		c.log.Debug("ignoring unknown event type", logger.String("event_type", envelope.EventType))
		return nil
	}
}

// Triggerer runs ticks on demand. *monitor.Service implements it.
type Triggerer interface {
	Trigger(ctx context.Context, monitorID string) (monitor.TickReport, error)
	TriggerAll(ctx context.Context) int
}

// ScrapeRequests turns scrape_request events into engine ticks.
type ScrapeRequests struct {
	BaseHandler
	Engine Triggerer
	Log    logger.Logger
}

func (h ScrapeRequests) HandleScrapeRequest(ctx context.Context, event ScrapeRequestEvent) error {
	if event.MonitorID == "" {
		n := h.Engine.TriggerAll(ctx)
		h.Log.Info("scrape request handled", logger.Int("monitors", n))
		return nil
	}

	report, err := h.Engine.Trigger(ctx, event.MonitorID)
	if errors.Is(err, monitor.ErrNotRunning) {
		h.Log.Debug("scrape request for idle monitor", logger.String("monitor_id", event.MonitorID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to trigger %s: %w", event.MonitorID, err)
	}
	h.Log.Info("scrape request handled",
		logger.String("monitor_id", event.MonitorID),
		logger.Int("new_links", report.NewLinks))
	return nil
}
