// Command uploadd serves multipart uploads over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/indigo-web/formstream/config"
	"github.com/indigo-web/formstream/server"
	"github.com/indigo-web/formstream/store"
)

func main() {
	var (
		configPath string
		envFiles   []string
	)

	flags := pflag.NewFlagSet("uploadd", pflag.ExitOnError)
	flags.StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	flags.StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")
	_ = flags.Parse(os.Args[1:])

	if err := run(configPath, envFiles); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "uploadd:", err)
		os.Exit(1)
	}
}

func run(configPath string, envFiles []string) error {
	cfg, err := config.Load(configPath, envFiles...)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Server.LogFormat)
	slog.SetDefault(logger)

	if err = os.MkdirAll(cfg.Upload.TempDir, 0700); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := store.New(ctx, cfg.Store)
	if err != nil {
		return err
	}

	logger.Info("starting",
		slog.String("addr", cfg.Server.Addr),
		slog.Any("domains", cfg.Server.Domains),
		slog.String("store", cfg.Store.Backend),
		slog.String("temp_dir", cfg.Upload.TempDir),
	)

	err = server.ListenAndServe(ctx, cfg.Server, server.New(cfg, storage, logger))
	logger.Info("stopped")

	return err
}

func newLogger(format string) *slog.Logger {
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}
