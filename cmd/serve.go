package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/compresr/lingua-gateway/internal/config"
	"github.com/compresr/lingua-gateway/internal/engine"
	"github.com/compresr/lingua-gateway/internal/gateway"
	"github.com/compresr/lingua-gateway/internal/monitoring"
	"github.com/compresr/lingua-gateway/internal/store"
)

const shutdownTimeout = 30 * time.Second

type serveOptions struct {
	configPath string
	debug      bool
	port       int
	noBanner   bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the gateway proxy server",
		Long: `Start the gateway proxy server.

Config is read from --config, then ~/.config/lingua-gateway/config.yaml,
then ./configs/config.yaml, then ./config.yaml, and finally the built-in
default.

Examples:
  lingua-gateway serve
  lingua-gateway serve --config gateway.yaml --debug
  ANTHROPIC_BASE_URL=http://127.0.0.1:8080 claude`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVarP(&opts.debug, "debug", "d", false, "enable debug logging")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "override server.port")
	cmd.Flags().BoolVar(&opts.noBanner, "no-banner", false, "suppress startup banner")
	return cmd
}

// loadServeConfig resolves, parses and adjusts the configuration.
func loadServeConfig(opts *serveOptions, searchPaths []string) (*config.Config, string, error) {
	data, source, err := resolveServeConfig(opts.configPath, searchPaths)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.LoadFromBytes(data)
	if err != nil {
		return nil, source, fmt.Errorf("failed to load configuration from %s: %w", source, err)
	}

	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
	if opts.debug {
		cfg.Monitoring.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, source, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, source, nil
}

// openLedger opens the savings ledger: SQLite when a path is configured,
// memory otherwise.
func openLedger(ctx context.Context, path string) (store.Store, error) {
	if path == "" {
		return store.NewMemoryStore(), nil
	}
	return store.OpenSQLite(ctx, path)
}

func runServe(parent context.Context, opts *serveOptions) error {
	loadEnvFiles()

	if !opts.noBanner {
		printBanner()
	}

	cfg, source, err := loadServeConfig(opts, configSearchPaths())
	if err != nil {
		return err
	}

	logger := monitoring.Global(monitoring.LoggerConfig{
		Level:  cfg.Monitoring.LogLevel,
		Format: cfg.Monitoring.LogFormat,
		Output: cfg.Monitoring.LogOutput,
	})

	log.Info().
		Str("version", gateway.Version).
		Str("config", source).
		Msg("Lingua Gateway starting")

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(cfg.Engine)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := eng.Health(healthCtx); err != nil {
		log.Warn().Err(err).Str("engine", eng.Name()).Msg("compression engine not reachable yet")
	}
	cancel()

	ledger, err := openLedger(ctx, cfg.Monitoring.SavingsDB)
	if err != nil {
		return fmt.Errorf("failed to open savings ledger: %w", err)
	}

	log.Info().
		Int("port", cfg.Server.Port).
		Str("upstream", cfg.Upstream.BaseURL).
		Str("engine", cfg.Engine.Strategy).
		Bool("lingua_pipe", cfg.Pipes.Lingua.Enabled).
		Str("savings_db", cfg.Monitoring.SavingsDB).
		Msg("configuration loaded")

	gw, err := gateway.New(cfg, eng,
		gateway.WithLogger(logger),
		gateway.WithSavings(monitoring.NewSavingsTracker(ledger)),
	)
	if err != nil {
		_ = ledger.Close()
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = gw.Shutdown(context.Background())
			return fmt.Errorf("gateway error: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway shutdown error")
	}

	log.Info().Msg("Lingua Gateway stopped")
	return nil
}
