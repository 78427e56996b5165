package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-hunter/internal/aggregator"
	"market-hunter/internal/analytics"
	"market-hunter/internal/cache"
	"market-hunter/internal/config"
	"market-hunter/internal/database"
	"market-hunter/internal/httpserver"
	"market-hunter/internal/httpserver/deps"
	"market-hunter/internal/hub"
	"market-hunter/internal/kafka"
	"market-hunter/internal/logger"
	"market-hunter/internal/monitor"
)

const shutdownTimeout = 15 * time.Second

// MarketService owns every long-lived component of the server process.
type MarketService struct {
	cfg *config.Config
	log logger.Logger

	db       *database.DB
	hub      *hub.Hub
	cache    *cache.SearchCache
	producer *kafka.Producer
	consumer *kafka.Consumer
	journal  *analytics.ClickHouseJournal
	engine   *monitor.Service
	server   *httpserver.Server
}

func NewMarketService(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *MarketService, err error) {
	s := &MarketService{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			s.cleanup()
		}
	}()

	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = db
	if err := db.Migrate(); err != nil {
		return nil, err
	}
	log.Info("database connected")

	sources, err := config.LoadSources(cfg.SourcesFile, cfg.SourceTimeout)
	if err != nil {
		return nil, err
	}
	agg, err := aggregator.FromConfig(sources, log)
	if err != nil {
		return nil, err
	}
	log.Info("marketplaces configured", logger.Int("sources", len(sources)))

	s.hub = hub.New(cfg.HubPingInterval, log.With(logger.String("component", "hub")))

	d := monitor.Deps{
		Store:   db,
		Sources: agg,
		Hub:     s.hub,
		Logger:  log.With(logger.String("component", "monitor")),
	}

	redisClient := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis connection failed, search cache is process local", logger.Error(err))
		redisClient.Close()
		redisClient = nil
	}
	s.cache, err = cache.New(redisClient, cfg.SearchCacheTTL, cfg.SearchRateWindow, log)
	if err != nil {
		return nil, err
	}
	d.Cache = s.cache

	if len(cfg.KafkaBrokers) > 0 {
		s.producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		s.consumer = kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup, log)
		d.Notifier = s.producer
		log.Info("kafka enabled", logger.String("topic", cfg.KafkaTopic))
	}

	if cfg.ClickHouseAddr != "" {
		s.journal, err = analytics.NewClickHouseJournal(ctx, analytics.Config{
			Addr:     cfg.ClickHouseAddr,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		})
		if err != nil {
			log.Warn("clickhouse unavailable, tick journal disabled", logger.Error(err))
		} else {
			d.Journal = s.journal
		}
	}

	s.engine = monitor.New(monitor.Config{
		DefaultInterval:    cfg.MonitorInterval,
		MinInterval:        cfg.MonitorMinInterval,
		DefaultMaxMonitors: cfg.DefaultMaxMonitors,
	}, d)

	s.server = httpserver.New(cfg.HTTPAddr, log, deps.Deps{
		Logger:    log.With(logger.String("component", "http")),
		StartTime: time.Now(),
		Engine:    s.engine,
		Accounts:  db,
		Hub:       s.hub,
	})

	return s, nil
}

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cfg, log)
	cancel()

	if err != nil {
		log.Error("server failed", logger.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	log.Info("starting market hunter server")

	service, err := NewMarketService(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer service.cleanup()

	resumed, err := service.engine.Resume(ctx)
	if err != nil {
		return fmt.Errorf("failed to resume monitors: %w", err)
	}
	log.Info("monitors armed", logger.Int("count", resumed))

	go service.hub.Run(ctx)

	if service.consumer != nil {
		go func() {
			handler := kafka.ScrapeRequests{Engine: service.engine, Log: log}
			if err := service.consumer.ProcessEvents(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("kafka consumer stopped", logger.Error(err))
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- service.server.Start() }()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case runErr = <-serverErr:
		if runErr != nil {
			log.Error("http server failed", logger.Error(runErr))
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	if err := service.server.Stop(shutdownCtx); err != nil {
		log.Warn("http shutdown", logger.Error(err))
	}
	if err := service.engine.Shutdown(shutdownCtx); err != nil {
		log.Warn("monitor shutdown", logger.Error(err))
	}
	log.Info("server stopped")
	return runErr
}

// cleanup closes whatever NewMarketService managed to open.
func (s *MarketService) cleanup() {
	if s.hub != nil {
		s.hub.Close()
	}

	if s.consumer != nil {
		if err := s.consumer.Close(); err != nil {
			s.log.Warn("error closing consumer", logger.Error(err))
		}
	}
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			s.log.Warn("error closing producer", logger.Error(err))
		}
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.log.Warn("error closing clickhouse", logger.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.log.Warn("error closing cache", logger.Error(err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("error closing database", logger.Error(err))
		}
	}
}
