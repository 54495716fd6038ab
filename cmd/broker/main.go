package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/BranchIntl/gobroker"
	"github.com/BranchIntl/gobroker/config"
	"github.com/BranchIntl/gobroker/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default: ./configs/gobroker.yaml or ./gobroker.yaml)")
	logLevel := flag.String("log-level", "", "override logging.level: debug, info, warn or error")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "gobroker: pairs generation requests with GPU workers")
		fmt.Fprintln(os.Stderr, "\nUsage: broker [options]")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEvery setting can also be set with %s_ environment variables,\n", config.EnvPrefix)
		fmt.Fprintf(os.Stderr, "e.g. %s_TRANSPORT_LISTEN_ADDR=:5555\n", config.EnvPrefix)
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger, err := logging.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	slog.SetDefault(logger)

	service, err := gobroker.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to create broker", "error", err)
		os.Exit(1)
	}

	if err := service.Run(context.Background()); err != nil {
		logger.Error("Broker stopped with error", "error", err)
		os.Exit(1)
	}
}
