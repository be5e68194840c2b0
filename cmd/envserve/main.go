// Command envserve serves the collected datasets as a read-only JSON
// API. It shares the store file with envcrawl and never writes to it.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/stadtlab/envcrawl/api"
	"github.com/stadtlab/envcrawl/crawler"
	"github.com/stadtlab/envcrawl/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	addr := flag.String("addr", "", "listen address (overrides the config)")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	cfg, err := crawler.LoadConfigFile(*configPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("config file missing, using defaults", "path", *configPath)
		cfg = crawler.DefaultConfig()
	} else if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.API.Addr = *addr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	server := api.New(store.New(cfg.StorePath), api.Config{
		BasicUser:         cfg.API.BasicUser,
		BasicPasswordHash: cfg.API.BasicPasswordHash,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info("serving", "addr", cfg.API.Addr, "store", cfg.StorePath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("serve", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
