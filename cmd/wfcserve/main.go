package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lawnchairsociety/wfcgen/internal/config"
	"github.com/lawnchairsociety/wfcgen/internal/database"
	"github.com/lawnchairsociety/wfcgen/internal/logger"
	"github.com/lawnchairsociety/wfcgen/internal/sample"
	"github.com/lawnchairsociety/wfcgen/internal/server"
)

func main() {
	configFile := flag.String("config", "data/wfcgen.yaml", "Path to wfcgen config YAML file")
	loggingConfig := flag.String("logging", "data/logging.yaml", "Path to logging config YAML file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	samplePath := flag.String("sample", "", "Default sample file (overrides config)")
	flag.Parse()

	logConfig, err := logger.LoadConfig(*loggingConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using default logging)\n", err)
		logConfig = logger.DefaultConfig()
	}
	if err := logger.Initialize(logConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Info("Starting wfcgen server")

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Warning("Failed to load config, using defaults", "path", *configFile, "error", err)
	}
	if *addr != "" {
		cfg.Server.Address = *addr
	}
	if *samplePath != "" {
		cfg.Sample.Path = *samplePath
	}
	if err := cfg.Validate(); err != nil {
		fatal("Invalid config", err)
	}

	smp := sample.Coastline()
	if cfg.Sample.Path != "" {
		if smp, err = sample.Load(cfg.Sample.Path); err != nil {
			fatal("Failed to load sample", err)
		}
	}
	logger.Info("Default sample", "name", smp.Name, "width", smp.Width(), "height", smp.Height())

	var store *database.Database
	if cfg.Storage.Enabled() {
		store, err = database.Open(cfg.Storage.DatabaseConfig())
		if err != nil {
			fatal("Failed to open database", err)
		}
		defer store.Close()
		logger.Info("Database initialized", "driver", cfg.Storage.Driver)
	} else {
		logger.Info("Storage disabled, generations will not be saved")
	}

	switch origins := cfg.Server.WebSocket.AllowedOrigins; {
	case len(origins) == 0:
		logger.Info("WebSocket CORS policy", "mode", "same-origin")
	case len(origins) == 1 && origins[0] == "*":
		logger.Warning("WebSocket CORS allows all origins (not recommended for production)")
	default:
		logger.Info("WebSocket CORS policy", "allowed_origins", origins)
	}

	srv, err := server.NewServer(cfg.Server, smp, store)
	if err != nil {
		fatal("Failed to create server", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Press Ctrl+C to shutdown")
	if err := srv.ListenAndServe(ctx); err != nil {
		fatal("Server error", err)
	}
	logger.Info("Server stopped")
}

func fatal(msg string, err error) {
	logger.Error(msg, "error", err)
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	logger.Close()
	os.Exit(1)
}
