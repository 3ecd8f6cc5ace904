package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"autokudo/internal/bridge"
	"autokudo/internal/config"
	"autokudo/internal/domain"
)

var (
	configPath string
	runDepth   int
)

var rootCmd = &cobra.Command{
	Use:           "autokudo",
	Short:         "Give kudos to every activity in your Strava following feed",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Walk the feed once and give kudos",
	RunE:  runOnce,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the settings API until interrupted",
	RunE:  serve,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	runCmd.Flags().IntVar(&runDepth, "depth", 0, "feed pages to walk (default: stored feed_search_depth)")

	rootCmd.AddCommand(runCmd, serveCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		setupLogger("info").Error("failed to load config", "error", err)
		return nil, err
	}
	return cfg, nil
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.LogLevel)

	if cmd.Flags().Changed("depth") && (runDepth < domain.MinFeedSearchDepth || runDepth > domain.MaxFeedSearchDepth) {
		err := fmt.Errorf("depth must be between %d and %d", domain.MinFeedSearchDepth, domain.MaxFeedSearchDepth)
		logger.Error("invalid flags", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return err
	}
	defer a.close()

	depth := runDepth
	if depth == 0 {
		stored, err := a.settingsStore.Load(ctx)
		if err != nil {
			logger.Error("failed to load settings", "error", err)
			return err
		}
		depth = domain.DefaultSettings().FeedSearchDepth
		if stored != nil {
			depth = stored.FeedSearchDepth
		}
	}

	summary, err := a.controller.RunDepth(ctx, depth)
	if err != nil {
		logger.Error("run failed", "error", err)
		return err
	}

	fmt.Fprintf(os.Stdout, "\nkudos given: %d/%d (failed %d, activities seen %d)\n",
		summary.Succeeded, summary.Eligible, summary.Failed, summary.Total)
	return nil
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return err
	}
	defer a.close()

	if err := a.controller.Restore(ctx, a.settingsStore); err != nil {
		logger.Error("failed to restore settings", "error", err)
		return err
	}

	applier := bridge.NewApplier(a.controller, a.settingsStore, logger)
	server := bridge.NewServer(a.controller, applier, a.console, a.runStore, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, cfg.Bridge.Addr)
	})
	if path := cfg.Bridge.SettingsFile; path != "" {
		g.Go(func() error {
			return bridge.Watch(gctx, path, applier, logger)
		})
	}

	settings := a.controller.Settings()
	logger.Info("autokudo serving",
		"addr", cfg.Bridge.Addr,
		"auto_kudo_enabled", settings.AutoKudoEnabled,
		"auto_kudo_check_seconds", settings.AutoKudoCheckSeconds,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("serve failed", "error", err)
		return err
	}

	logger.Info("shutting down")
	return nil
}
