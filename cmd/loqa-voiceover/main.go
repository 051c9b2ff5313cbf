package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loqalabs/loqa-voiceover/internal/config"
	"github.com/loqalabs/loqa-voiceover/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to optional YAML configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := runtime.NewLogger(cfg.Telemetry, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := runtime.New(cfg, logger).Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("voiceover generation interrupted", slog.Int("jobs", len(report.Jobs)))
			stop()
			os.Exit(130)
		}
		logger.Error("voiceover generation failed", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}

	logger.Info("voiceover generation complete")
}
