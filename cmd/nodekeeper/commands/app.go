package commands

import (
	"context"
	"fmt"

	"github.com/nodekeeper/nodekeeper/pkg/archive"
	"github.com/nodekeeper/nodekeeper/pkg/config"
	"github.com/nodekeeper/nodekeeper/pkg/deps"
	"github.com/nodekeeper/nodekeeper/pkg/layout"
	"github.com/nodekeeper/nodekeeper/pkg/manager"
	"github.com/nodekeeper/nodekeeper/pkg/pack"
	"github.com/nodekeeper/nodekeeper/pkg/registry"
	"github.com/nodekeeper/nodekeeper/pkg/stores"
	"github.com/nodekeeper/nodekeeper/pkg/telemetry"
	"github.com/nodekeeper/nodekeeper/pkg/vcs"
)

// app wires the configured collaborators behind one Manager for the
// duration of a command.
type app struct {
	cfg     *config.AppConfig
	tel     *telemetry.Telemetry
	store   *stores.SQLiteStore
	manager *manager.Manager
}

// newApp boots the application from the config file. The returned
// context carries the telemetry handle so manager operations emit
// spans and metrics; the cleanup must run before the process exits.
func newApp(ctx context.Context) (*app, context.Context, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	telCfg := telemetry.DefaultConfig()
	telCfg.Logging.Level = cfg.Telemetry.LogLevel
	telCfg.Logging.Format = cfg.Telemetry.LogFormat
	telCfg.Tracing.Enabled = cfg.Telemetry.TracingEnabled
	telCfg.Tracing.Exporter = cfg.Telemetry.TracingExporter
	telCfg.Tracing.Endpoint = cfg.Telemetry.OTLPEndpoint
	telCfg.Metrics.Enabled = cfg.Telemetry.MetricsEnabled
	telCfg.Metrics.ListenAddress = cfg.Telemetry.MetricsListen
	if verbose {
		telCfg.Logging.Level = "debug"
	}

	tel, err := telemetry.NewTelemetry(telCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	store, err := stores.NewSQLiteStore(stores.Config{
		Path:     cfg.Database.Path,
		CacheTTL: cfg.Registry.CacheTTL.Std(),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, nil, err
	}

	logger := tel.Logger.Zerolog()
	client := registry.NewClient(registry.Config{
		BaseURL:  cfg.Registry.BaseURL,
		Timeout:  cfg.Registry.Timeout.Std(),
		RetryMax: cfg.Registry.RetryMax,
	}, store, logger)

	git := vcs.NewGit()
	if cfg.Git.Binary != "" {
		git.Binary = cfg.Git.Binary
	}

	m := manager.New(manager.Options{
		Layout:    layout.New(cfg.PackagesDir),
		Fetcher:   client,
		Extractor: archive.NewZipExtractor(),
		Cloner:    git,
		Deps:      deps.NewRunner(cfg.Deps.Interpreter, logger),
		Journal:   store,
		Telemetry: tel,
		DepsOptions: pack.DepsOptions{
			Skip: cfg.Deps.Skip || skipDeps,
		},
		Logger: logger,
	})

	if telCfg.Metrics.Enabled {
		if err := tel.StartMetricsServer(); err != nil {
			tel.Logger.WithError(err).Warn("Failed to start metrics server")
		}
	}

	cleanup := func() {
		store.Close()
		_ = tel.Shutdown(context.Background())
	}

	return &app{cfg: cfg, tel: tel, store: store, manager: m}, tel.WithContext(ctx), cleanup, nil
}
