package main

import (
	"context"
	"testing"
	"time"

	"market-hunter/internal/config"
	"market-hunter/internal/logger"
)

func TestRunReportsStartupFailure(t *testing.T) {
	cfg := &config.Config{
		DatabaseDSN: "host=127.0.0.1 port=1 user=nobody dbname=none sslmode=disable connect_timeout=1",
		LogLevel:    "error",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := run(ctx, cfg, logger.Nop()); err == nil {
		t.Fatal("Expected an error for an unreachable database")
	}
}
