package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nport/nport-edge/internal/cloudflare"
	"github.com/nport/nport-edge/internal/config"
	"github.com/nport/nport-edge/internal/events"
	ilog "github.com/nport/nport-edge/internal/log"
	"github.com/nport/nport-edge/internal/reaper"
	"github.com/nport/nport-edge/internal/server"
	"github.com/nport/nport-edge/internal/tracing"
)

const tracingFlushTimeout = 5 * time.Second

type serveCommand struct {
	cmd       *cobra.Command
	listen    string
	opsListen string
	logLevel  string
	logFormat string
	envFile   string
}

func ServeCommand() *serveCommand {
	c := &serveCommand{}
	c.cmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the provisioning edge server",
		RunE:  c.run,
	}

	flags := c.cmd.Flags()
	flags.StringVar(&c.listen, "listen", "", "public listen address (overrides NPORT_LISTEN)")
	flags.StringVar(&c.opsListen, "ops-listen", "", "ops listen address (overrides NPORT_OPS_LISTEN)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug|info|warn|error (overrides NPORT_LOG_LEVEL)")
	flags.StringVar(&c.logFormat, "log-format", "", "log format: text|json (overrides NPORT_LOG_FORMAT)")
	flags.StringVar(&c.envFile, "env-file", ".env", "env file loaded before reading configuration")

	return c
}

// serverConfig reads the runtime configuration from the environment and
// applies flag overrides on top.
func (c *serveCommand) serverConfig() (config.ServerConfig, error) {
	cfg := config.ServerFromEnv()
	if c.listen != "" {
		cfg.Listen = c.listen
	}
	if c.opsListen != "" {
		cfg.OpsListen = c.opsListen
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if c.logFormat != "" {
		cfg.LogFormat = c.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return config.ServerConfig{}, err
	}
	return cfg, nil
}

func (c *serveCommand) run(cmd *cobra.Command, _ []string) error {
	loadEnvFromDotEnv(c.envFile)

	cfg, err := c.serverConfig()
	if err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	logger := ilog.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx := cmd.Context()

	shutdownTracing, err := tracing.Init(ctx, cfg.OTLPEndpoint, Version, func(err error) {
		logger.Warn("tracing error", "err", err)
	})
	if err != nil {
		return fmt.Errorf("tracing init: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), tracingFlushTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", "err", err)
		}
	}()

	// Provider settings are resolved per request, so an incomplete
	// environment is not fatal here. Surfacing the gap at startup saves a
	// confused first deploy.
	lookup := config.FromEnv()
	if _, err := config.Resolve(lookup); err != nil {
		logger.Warn("provider configuration incomplete", "err", err)
	}

	provider := cloudflare.New(logger.With(slog.String("component", "provider")), cfg.ProviderBaseURL)
	hub := events.NewHub(logger.With(slog.String("component", "events")))

	sweeper := reaper.New(lookup, provider, hub, logger.With(slog.String("component", "reaper")), cfg.ReapInterval)
	go sweeper.Run(ctx)

	srv := server.New(cfg, lookup, provider, hub, logger, Version)
	return srv.Run(ctx)
}
