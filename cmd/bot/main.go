package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"market-hunter/internal/bot"
	"market-hunter/internal/config"
	"market-hunter/internal/database"
	"market-hunter/internal/kafka"
	"market-hunter/internal/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cfg, log)
	cancel()

	if err != nil {
		log.Error("bot failed", logger.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	if cfg.BotToken == "" {
		return errors.New("BOT_TOKEN is not set")
	}

	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("error connecting to db: %w", err)
	}
	defer db.Close()

	var refresh bot.Refresher
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer producer.Close()
		refresh = producer
	}

	telegramBot, err := bot.NewBot(cfg.BotToken, db, refresh, log)
	if err != nil {
		return fmt.Errorf("error creating bot: %w", err)
	}

	if len(cfg.KafkaBrokers) > 0 {
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup+"-bot", log)
		defer consumer.Close()

		go func() {
			log.Info("starting bot kafka consumer for notifications")
			if err := consumer.ProcessEvents(ctx, telegramBot); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("bot kafka consumer error", logger.Error(err))
			}
		}()
	} else {
		log.Warn("KAFKA_BROKERS is empty, notifications and /refresh are disabled")
	}

	log.Info("starting telegram bot")
	telegramBot.Start(ctx)
	log.Info("bot stopped")
	return nil
}
