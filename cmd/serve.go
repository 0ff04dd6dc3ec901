package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"boq-estimator/internal/config"
	"boq-estimator/internal/estimate"
	providerfactory "boq-estimator/internal/provider/factory"
	"boq-estimator/internal/server"
)

const defaultEnvFile = ".env"

const serveUsage = `Usage:
  boq-estimator serve [--config <path>] [--profile analyzer|boq] [--port <port>] [--env-file <path>]

Flags:
  --config   string   Path to YAML configuration file (defaults are used when omitted)
  --profile  string   analyzer (drawing analysis only, port 8000) or boq (all endpoints, port 8001)
  --port     int      Override server port from configuration
  --env-file string   Load environment variables from this file (default .env when present)`

func serve(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var (
		cfgPath      string
		profile      string
		envFile      string
		overridePort int
	)
	flags.StringVar(&cfgPath, "config", "", "path to configuration file")
	flags.StringVar(&profile, "profile", "", "process profile: analyzer or boq")
	flags.IntVar(&overridePort, "port", 0, "override server port")
	flags.StringVar(&envFile, "env-file", "", "path to a .env file")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	if overridePort < 0 || overridePort > 65535 {
		return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
	}

	if err := loadEnv(envFile); err != nil {
		return err
	}

	cfg, err := config.Load(cfgPath, config.Overrides{Profile: profile, Port: overridePort})
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	p, err := providerfactory.New(ctx, cfg.Provider)
	if err != nil {
		return err
	}
	defer func() {
		if closer, ok := p.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				logger.Warn("close provider", "err", err)
			}
		}
	}()

	svc, err := estimate.New(p, cfg, logger)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, svc, logger)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

// loadEnv never overrides variables that are already set. A missing default
// file is ignored; a missing explicit file is an error.
func loadEnv(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %q: %w", path, err)
		}
		return nil
	}

	if err := godotenv.Load(defaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %q: %w", defaultEnvFile, err)
	}
	return nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
