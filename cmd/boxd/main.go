package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LunatiChemist/seva-box/internal/api"
	"github.com/LunatiChemist/seva-box/internal/cache"
	"github.com/LunatiChemist/seva-box/internal/config"
	"github.com/LunatiChemist/seva-box/internal/hardware"
	"github.com/LunatiChemist/seva-box/internal/logger"
	"github.com/LunatiChemist/seva-box/internal/plot"
	"github.com/LunatiChemist/seva-box/internal/progress"
	"github.com/LunatiChemist/seva-box/internal/registry"
	"github.com/LunatiChemist/seva-box/internal/run"
	"github.com/LunatiChemist/seva-box/pkg/httpserver"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Initialize logger early to report config problems
	log := logger.New()

	// Load configuration (file plus environment overrides)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load configuration",
			"error", err.Error(),
		)
		os.Exit(1)
	}
	log = logger.NewWithLevel(logger.ParseLevel(cfg.Log.Level))

	log.Info("configuration loaded",
		"box_id", cfg.Box.ID,
		"runs_root", cfg.Box.RunsRoot,
		"channels", cfg.Box.Channels,
	)

	// The simulated controller stands in until a hardware driver is
	// wired behind the Controller interface.
	controller := hardware.NewSimulator(cfg.Box.Channels)

	// Device registry with initial discovery
	devices := registry.NewDevices(controller, log)
	if _, err := devices.Discover(); err != nil {
		log.Error("initial device discovery failed",
			"error", err.Error(),
		)
		os.Exit(1)
	}

	// Run directory registry with restart recovery
	runDirs := registry.NewRunDirs(log)
	if err := runDirs.Configure(cfg.Box.RunsRoot); err != nil {
		log.Error("failed to configure run directory registry",
			"error", err.Error(),
		)
		os.Exit(1)
	}

	// Orchestration service
	svc := run.NewService(run.Options{
		Devices:      devices,
		Slots:        registry.NewSlots(),
		RunDirs:      runDirs,
		Controller:   controller,
		Plotter:      plot.Discard{},
		Estimator:    progress.Linear{Fallback: cfg.Jobs.DefaultPlannedDuration},
		Meta:         cache.New(cfg.Cache.TTL),
		MetaTTL:      cfg.Cache.TTL,
		PollInterval: cfg.Jobs.PollInterval,
		Logger:       log,
	})

	// HTTP handler and server
	handler := api.NewHandler(svc, cfg.Box.ID, cfg.Box.APIKey, log)
	srv := httpserver.New(
		cfg.Server.Addr,
		handler.Router(),
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		log,
	)

	log.Info("starting box service")

	// Setup signal handling for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			serverErrors <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		log.Error("server error",
			"error", err.Error(),
		)
	case sig := <-quit:
		log.Info("received shutdown signal",
			"signal", sig.String(),
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown failed",
			"error", err.Error(),
		)
	}

	// Give in-flight slot workers a bounded window to wind down;
	// measurements past it are abandoned with the process.
	drained := make(chan struct{})
	go func() {
		svc.Drain()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(10 * time.Second):
		log.Warn("slot workers still busy at shutdown, abandoning")
	}

	log.Info("shutdown complete")
}
