package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/overhead/internal/api"
	"github.com/unklstewy/overhead/internal/auth"
	"github.com/unklstewy/overhead/internal/db"
	"github.com/unklstewy/overhead/internal/display"
	"github.com/unklstewy/overhead/internal/log"
	"github.com/unklstewy/overhead/internal/refresh"
	"github.com/unklstewy/overhead/internal/snapshot"
	"github.com/unklstewy/overhead/pkg/config"
	"github.com/unklstewy/overhead/pkg/connectivity"
)

var showTUI bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tracker",
	Long: `Run the connectivity state machine, the refresh orchestrator and the HTTP API
until interrupted. With --tui the nearest flights are also shown in the terminal.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&showTUI, "tui", false, "Show the terminal display")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootCfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	lg := log.New(log.Options{Level: bootCfg.Log.Level, Dir: bootCfg.Log.Dir, Stderr: !showTUI})
	defer lg.Close()
	logger := lg.Logger

	store, closeStore, err := openStore(ctx, bootCfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	cfg := bootCfg
	if exists, err := store.Exists(ctx); err != nil {
		return fmt.Errorf("check settings: %w", err)
	} else if exists {
		if cfg, err = store.Load(ctx); err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
	}
	if cfg.Server.JWTSecret == "" {
		logger.Warn("no jwt secret configured, admin sessions end at restart")
		cfg.Server.JWTSecret = auth.RandomSecret()
	}

	settings := config.NewHolder(cfg)

	machine := connectivity.New(connectivity.Options{
		Link:     connectivity.NewProbeLink(cfg.Network.ProbeAddress, logger),
		Config:   store,
		Settings: settings,
		Logger:   logger,
	})

	opts := refresh.Options{
		Chain:           buildChain(cfg, logger),
		Modes:           machine,
		Settings:        settings,
		Logger:          logger,
		Debounce:        cfg.Refresh.Debounce(),
		WeatherInterval: cfg.Refresh.WeatherInterval(),
	}
	if cfg.Snapshot.Path != "" {
		opts.Snapshot = snapshot.NewFile(cfg.Snapshot.Path)
	}
	orch := refresh.New(opts)

	// Fetch as soon as the device comes online.
	machine.OnChange(func(from, to connectivity.Mode) {
		if to == connectivity.Operational {
			orch.Trigger()
		}
	})

	server := api.New(api.Options{
		Settings:     settings,
		Store:        store,
		Machine:      machine,
		Orchestrator: orch,
		Auth:         auth.NewService(auth.Config{JWTSecret: cfg.Server.JWTSecret}),
		OnSettingsChange: func(c *config.Config) {
			orch.SetChain(buildChain(c, logger))
		},
		Logger: logger,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return machine.Run(ctx) })
	eg.Go(func() error { return orch.Run(ctx) })
	eg.Go(func() error { return server.ListenAndServe(ctx, cfg.Server.Addr()) })
	if showTUI {
		eg.Go(func() error {
			defer cancel()
			return display.Run(ctx, orch, machine, settings)
		})
	}

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stopped", slog.Any("error", err))
		return err
	}
	logger.Info("stopped")
	return nil
}

// openStore returns the settings store: PostgreSQL when the database is
// enabled, the configuration file otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (config.Store, func(), error) {
	if !cfg.Database.Enabled {
		return config.NewFileStore(configPath), func() {}, nil
	}

	database, err := db.ConnectWithRetry(ctx, cfg.Database, 5, 2*time.Second, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := database.InitSchema(ctx); err != nil {
		database.Close()
		return nil, nil, err
	}
	logger.Info("settings stored in database", slog.String("host", cfg.Database.Host), slog.String("database", cfg.Database.Database))
	return db.NewSettingsRepository(database), func() { database.Close() }, nil
}
