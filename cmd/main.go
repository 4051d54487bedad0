package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/studyctl/internal/services"
	"github.com/desertthunder/studyctl/internal/shared"
	"github.com/urfave/cli/v3"
)

// EnvConfigPath selects the config file instead of ./config.toml.
const EnvConfigPath = "STUDYCTL_CONFIG"

func main() {
	logger := shared.NewLogger(nil)

	configPath := "config.toml"
	if v := os.Getenv(EnvConfigPath); v != "" {
		configPath = v
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if loadedConfig, err := shared.LoadConfig(configPath); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config, using defaults", "path", configPath, "error", err)
		}
	}
	if err := shared.LoadEnv(config, ".env"); err != nil {
		logger.Warn("invalid configuration", "error", err)
	}

	api, err := newAPIService(config, logger)
	if err != nil {
		logger.Warn("API client unavailable", "error", err)
	}

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		API:        api,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:    "studyctl",
		Usage:   "Chat with the study assistant and manage AI-generated study plans",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("debug") {
				shared.SetLogLevel(logger, log.DebugLevel)
			}
			return ctx, nil
		},
		Commands: runner.register(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = app.Run(ctx, os.Args)
	stop()
	runner.Close()

	if err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		logger.Fatalf("application error: %v", err)
	}
}

// newAPIService builds the backend client from the config, restoring saved session cookies.
func newAPIService(config *shared.Config, logger *log.Logger) (*services.APIService, error) {
	session, err := services.NewSession(services.SessionOptions{
		BaseURL:    config.API.BaseURL,
		Token:      config.API.Token,
		CookiePath: config.StatePath(services.CookieFile),
	}, logger)
	if err != nil {
		return nil, err
	}

	return services.NewAPIService(session, services.Options{
		Timeout:    config.API.Timeout(),
		Retries:    config.API.Retries,
		RateLimit:  config.API.RateLimit,
		EventDelay: config.Chat.EventDelay(),
	}, logger), nil
}
