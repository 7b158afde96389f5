package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/modgate/internal/config"
	"github.com/vk/modgate/internal/ctxlog"
	"github.com/vk/modgate/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *config.Config
	registry *registry.Registry
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and a locked
// registry built from the manifests under cfg.ModulesPath. A nil catalog
// selects the modules compiled into the binary.
func NewApp(outW io.Writer, cfg *config.Config, catalog registry.Catalog) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	if catalog == nil {
		catalog = coreModules()
	}

	reg := registry.New(catalog)
	if err := reg.Discover(ctx, cfg.ModulesPath); err != nil {
		return nil, fmt.Errorf("failed to load modules: %w", err)
	}
	logger.Debug("Registry validation passed.", "modules", reg.Len())

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		registry: reg,
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Logger returns the application's logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}
