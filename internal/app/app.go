package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/specialistvlad/assetgrid/internal/asset"
	"github.com/specialistvlad/assetgrid/internal/config"
	"github.com/specialistvlad/assetgrid/internal/ctxlog"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
	model  *config.Model

	// source overrides the manifest's source block when set.
	source asset.Source

	httpServer *http.Server
	scenes     atomic.Int32
	ready      atomic.Int32
}

// Option customises an App.
type Option func(*App)

// WithSource makes every scene fetch from src instead of the source the
// manifest declares.
func WithSource(src asset.Source) Option {
	return func(a *App) { a.source = src }
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger. A manifest that
// cannot be loaded is a fatal startup error and panics.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, opts ...Option) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.ManifestPath)
	if err != nil {
		panic(fmt.Errorf("failed to load manifest: %w", err))
	}
	logger.Debug("Manifest loaded.", "scenes", len(model.Scenes), "assets", model.AssetCount())

	a := &App{
		outW:   outW,
		logger: logger,
		config: appConfig,
		model:  model,
	}
	// Readiness counts against the manifest from the start, so /ready
	// cannot report READY before Run has preloaded anything.
	a.scenes.Store(int32(len(model.Scenes)))
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Model returns the loaded manifest model. This is primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}

// Ready reports whether every scene finished preloading and initialized.
func (a *App) Ready() bool {
	return a.ready.Load() >= a.scenes.Load()
}
