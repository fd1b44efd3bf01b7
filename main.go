package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"forefront/arena/internal/config"
	"forefront/arena/internal/logging"
	"forefront/arena/internal/stats"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("host stopped with error", logging.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("host stopped")
}

func run(cfg *config.Config, logger *logging.Logger) error {
	store, err := stats.OpenSQLite(cfg.StatsPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close stats store", logging.Error(err))
		}
	}()

	a, err := newApp(cfg, logger, store)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		stop()
		a.close()
		return err
	}
	serveErr := a.serve(ctx)
	//1.- Cancel before close so every consumer goroutine can return.
	stop()
	a.close()
	return serveErr
}
