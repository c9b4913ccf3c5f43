// Command charmbot runs the Discord charm bot.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/keshon/charmbot/internal/charm"
	"github.com/keshon/charmbot/internal/charms"
	"github.com/keshon/charmbot/internal/config"
	"github.com/keshon/charmbot/internal/discord"
	"github.com/keshon/charmbot/internal/dispatch"
	"github.com/keshon/charmbot/internal/logging"
	"github.com/keshon/charmbot/internal/ratelimit"
	"github.com/keshon/charmbot/internal/security"
	"github.com/keshon/charmbot/pkg/jobmgr"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	token   string
	prefix  string
	envFile string
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "charmbot",
		Short: "Discord bot that runs prefixed charms",
		Long: `charmbot listens for messages such as "$ping" or "$embed[Title|Body|red]"
and runs the matching charm after rate-limit and input checks.

Configuration comes from the environment (and an optional .env file):
  DISCORD_TOKEN, PREFIX, ADMIN_USERS, ALLOWED_GUILDS, RATE_LIMIT_MAX,
  RATE_LIMIT_WINDOW, CLEANUP_INTERVAL, TRUST_GUILD_ADMINS, LOG_LEVEL, LOG_FILE`,
		Version:       version,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&f.token, "token", "t", "", "Discord bot token (overrides DISCORD_TOKEN)")
	cmd.Flags().StringVarP(&f.prefix, "prefix", "p", "", "command prefix (overrides PREFIX)")
	cmd.Flags().StringVar(&f.envFile, "env-file", ".env", "dotenv file to load if present")
	return cmd
}

func loadConfig(f flags) (*config.Config, error) {
	cfg, err := config.Load(f.envFile)
	if err != nil {
		return nil, err
	}
	if f.token != "" {
		cfg.DiscordToken = f.token
	}
	if f.prefix != "" {
		cfg.Prefix = f.prefix
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer closer.Close()

	if cfg.EnvFile != "" {
		logger.Info().Str("file", cfg.EnvFile).Msg("loaded environment file")
	} else {
		logger.Info().Msg("no .env file found, using system environment variables")
	}
	logger.Info().Str("version", version).Str("prefix", cfg.Prefix).Msg("starting charmbot")

	validator := security.New(logger)
	if err := validator.SelfCheck(); err != nil {
		return fmt.Errorf("security self-check failed: %w", err)
	}
	limiter := ratelimit.New(logger)
	registry := charm.NewRegistry(logger, validator)

	engine, err := dispatch.New(dispatch.Config{
		Prefix:          cfg.Prefix,
		AllowedGuilds:   cfg.AllowedGuilds,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
	}, registry, limiter, validator, logger)
	if err != nil {
		return err
	}

	bot, err := discord.New(cfg, engine, logger)
	if err != nil {
		return err
	}

	if err := charms.Register(registry, charms.Deps{
		Prefix:  cfg.Prefix,
		Admin:   engine,
		Latency: bot.Latency,
	}); err != nil {
		return fmt.Errorf("register charms: %w", err)
	}
	logger.Info().Int("charms", registry.Len()).Msg("charms registered")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs := jobmgr.NewManager(func(status string) {
		logger.Debug().Str("job", status).Msg("job status")
	})
	if err := jobs.StartPeriodic(ctx, "cleanup", cfg.CleanupInterval, func(context.Context) error {
		engine.Cleanup()
		return nil
	}); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		jobs.StopAll()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("bot stopped with error")
		return err
	}
	logger.Info().Msg("bye")
	return nil
}
