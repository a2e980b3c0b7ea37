package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nport/nport-edge/internal/cloudflare"
	"github.com/nport/nport-edge/internal/config"
	ilog "github.com/nport/nport-edge/internal/log"
	"github.com/nport/nport-edge/internal/reaper"
)

type reapCommand struct {
	cmd     *cobra.Command
	envFile string
	timeout time.Duration
}

// ReapCommand deletes expired tunnels once and exits, for cron-style
// deployments where the serve loop's built-in sweeper is not running.
func ReapCommand() *reapCommand {
	c := &reapCommand{}
	c.cmd = &cobra.Command{
		Use:   "reap",
		Short: "Delete expired tunnels once and exit",
		RunE:  c.run,
	}

	flags := c.cmd.Flags()
	flags.StringVar(&c.envFile, "env-file", ".env", "env file loaded before reading configuration")
	flags.DurationVar(&c.timeout, "timeout", 2*time.Minute, "overall sweep deadline")

	return c
}

func (c *reapCommand) run(cmd *cobra.Command, _ []string) error {
	loadEnvFromDotEnv(c.envFile)

	cfg := config.ServerFromEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	logger := ilog.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()

	provider := cloudflare.New(logger.With(slog.String("component", "provider")), cfg.ProviderBaseURL)
	sweeper := reaper.New(config.FromEnv(), provider, nil, logger, cfg.ReapInterval)

	reaped, err := sweeper.RunOnce(ctx)
	if err != nil {
		return err
	}
	logger.Info("sweep complete", "reaped", reaped)
	return nil
}
