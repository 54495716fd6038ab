package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BranchIntl/gobroker/config"
	"github.com/BranchIntl/gobroker/internal/logging"
	"github.com/BranchIntl/gobroker/transports"
	"github.com/BranchIntl/gobroker/worker"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	hostname := flag.String("hostname", "", "hostname reported to the broker (default: worker.hostname or the OS hostname)")
	url := flag.String("url", "", "websocket URL of the broker (default: derived from transport.listen_addr)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *hostname == "" {
		*hostname = cfg.Worker.Hostname
	}
	if *url == "" {
		*url = cfg.Worker.URL
	}

	logger, err := logging.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	conn, err := transports.Dial(ctx, cfg.Transport, *url)
	if err != nil {
		logger.Error("Failed to connect to broker", "transport", cfg.Transport.Type, "error", err)
		os.Exit(1)
	}

	w := worker.New(conn, worker.PlaceholderProcessor{},
		worker.WithHostname(*hostname),
		worker.WithLogger(logger))

	if err := w.Run(ctx); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	stats := w.Stats()
	logger.Info("Worker exited", "processed", stats.Processed, "failed", stats.Failed, "rejected", stats.Rejected)
}
