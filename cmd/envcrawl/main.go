// Command envcrawl executes one crawl pass over every subject. It is
// meant to run under an external scheduler (cron, systemd timer); the
// crawl logs make repeated invocations idempotent per period.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/stadtlab/envcrawl/crawler"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := crawler.New(cfg, logger).Run(ctx); err != nil {
		slog.Error("crawl pass", "error", err)
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
