package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"market-hunter/internal/logger"
	"market-hunter/internal/protocol"
	"market-hunter/internal/session"
)

type monitorList []string

func (m *monitorList) String() string { return strings.Join(*m, ",") }

func (m *monitorList) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var monitors monitorList
	flags := flag.NewFlagSet("watch", flag.ContinueOnError)
	flags.SetOutput(stderr)
	url := flags.String("url", "ws://localhost:8080/ws", "hub websocket url")
	token := flags.String("token", "", "bearer token")
	attempts := flags.Int("attempts", session.DefaultMaxAttempts, "failed connects before giving up")
	verbose := flags.Bool("v", false, "debug logging")
	flags.Var(&monitors, "monitor", "monitor id to show (repeatable, default all)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logger.New(level, true)
	defer log.Sync()

	header := http.Header{}
	if *token != "" {
		header.Set("Authorization", "Bearer "+*token)
	}

	s := session.New(session.Config{
		URL:         *url,
		Header:      header,
		MaxAttempts: *attempts,
		Monitors:    monitors,
	}, nil, log)
	s.OnStateChange(func(st session.State) {
		fmt.Fprintf(stderr, "[%s]\n", st)
	})
	s.OnMessage(func(msg protocol.Message) {
		for _, p := range msg.Products {
			price := "?"
			if p.Price.Valid {
				price = p.Price.Decimal.String()
			}
			fmt.Fprintf(stdout, "%s  %-8s %-10s %s\n      %s\n", msg.MonitorID, p.Marketplace, price, p.Title, p.URL)
		}
	})

	if err := s.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
