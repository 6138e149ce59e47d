// Command alferd keeps a language model loaded and serves alfred requests
// over loopback TCP until it is told to stop or goes idle.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/leonletto/alfred/internal/config"
	"github.com/leonletto/alfred/internal/daemon"
	"github.com/leonletto/alfred/internal/llm"
	"github.com/leonletto/alfred/internal/logging"
	"github.com/leonletto/alfred/internal/paths"
)

var (
	// Build info (set via ldflags).
	Version = "dev"
	Build   = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "alferd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Stderr(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	dir, err := paths.EnsureDir()
	if err != nil {
		return err
	}

	modelPath := cfg.ResolvedModelPath(dir)
	logger.Info("alferd starting",
		zap.String("version", Version),
		zap.String("build", Build),
		zap.String("model", modelPath),
		zap.String("runner", cfg.Runner),
	)

	engine := llm.NewCommandEngine(cfg.Runner, modelPath)
	lifecycle := daemon.NewLifecycle(engine, daemon.LifecycleConfig{
		Addr:        cfg.Daemon.Addr(),
		IdleTimeout: cfg.Daemon.IdleTimeout(),
		PIDFile:     paths.PIDFile(dir),
		Version:     Version,
		Logger:      logger,
	})
	return lifecycle.Run(context.Background())
}
