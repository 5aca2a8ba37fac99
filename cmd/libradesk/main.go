// Package main is the libradesk server: the circulation API plus the
// recurring overdue sweep.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"libradesk/internal/config"
	"libradesk/internal/di"
	"libradesk/internal/logger"
)

var version = "dev"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Format: cfg.Logger.Format,
		Level:  logger.ParseLevel(cfg.Logger.Level),
	})

	injector := di.NewContainer(cfg, log, di.BuildInfo{Version: version})
	if err := di.Bootstrap(injector); err != nil {
		log.Error("Failed to bootstrap server", "error", err)
		_ = injector.Shutdown()
		os.Exit(1)
	}
	log.Info("libradesk started", "version", version, "env", cfg.App.Environment)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down gracefully...")

	// The container stops dependents before their dependencies: HTTP server,
	// scheduler, dispatcher (drains its queue), sender, database.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	log.Info("Bye")
}
