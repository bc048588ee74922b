package app

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/assetgrid/internal/asset"
	"github.com/specialistvlad/assetgrid/internal/config"
	"github.com/specialistvlad/assetgrid/internal/ctxlog"
	"golang.org/x/sync/errgroup"
)

// Run preloads every scene of the manifest concurrently and writes one
// report per scene to the app's output. The first scene that fails to
// preload in time cancels the others.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(ctx, a.config.HealthcheckPort)
		defer a.closeHealthcheckServer(ctx)
	}

	src := a.source
	if src == nil {
		opened, closeSrc, err := openSource(ctx, a.model.Source, a.config.ManifestPath)
		if err != nil {
			return fmt.Errorf("failed to open asset source: %w", err)
		}
		defer func() {
			if err := closeSrc(); err != nil {
				a.logger.Warn("Failed to close asset source.", "error", err)
			}
		}()
		src = opened
	}

	scenes := a.model.Scenes
	if len(scenes) == 0 {
		a.logger.Warn("No scenes found in manifest, nothing to preload.")
		return nil
	}

	a.logger.Info("🚀 Preloading scenes...", "scenes", len(scenes), "assets", a.model.AssetCount())
	reports := make([]*SceneReport, len(scenes))
	g, gctx := errgroup.WithContext(ctx)
	for i, sc := range scenes {
		g.Go(func() error {
			rep := a.runScene(gctx, src, sc)
			reports[i] = rep
			return rep.Err
		})
	}
	err := g.Wait()

	for _, rep := range reports {
		if rep != nil {
			rep.Write(a.outW)
		}
	}
	if err != nil {
		return fmt.Errorf("preload failed: %w", err)
	}
	a.logger.Info("🏁 All scenes preloaded.")
	return nil
}

func (a *App) runScene(ctx context.Context, src asset.Source, sc *config.Scene) *SceneReport {
	timeout := sc.Timeout
	if timeout == 0 {
		timeout = a.config.Timeout
	}
	logger := ctxlog.FromContext(ctx).With("scene", sc.Name)
	ctx = ctxlog.WithLogger(ctx, logger)

	scope := NewScope(sc.Name, src, timeout)
	defer scope.Close()
	scope.OnInitialize(func(ctx context.Context, s *Scope) error {
		a.ready.Add(1)
		ctxlog.FromContext(ctx).Debug("Scene ready.", "instances", len(s.Root().Children()))
		return nil
	})

	began := time.Now()
	if err := scope.Bind(ctx, sc.Assets); err != nil {
		return &SceneReport{Scene: sc.Name, Err: fmt.Errorf("scene '%s': %w", sc.Name, err)}
	}
	// Loaders that refuse to start are logged by the coordinator and show
	// up as unloaded in the report.
	_ = scope.Start(ctx)
	err := scope.Wait(ctx)
	if err != nil {
		logger.Error("Scene preload failed.", "error", err)
	}
	return newSceneReport(scope, time.Since(began), err)
}
