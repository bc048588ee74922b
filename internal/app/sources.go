package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/assetgrid/internal/asset"
	"github.com/specialistvlad/assetgrid/internal/config"
	"github.com/specialistvlad/assetgrid/internal/ctxlog"
	"github.com/specialistvlad/assetgrid/internal/source"
)

// openSource builds the asset source a manifest asks for. Without a source
// block, assets are read from the manifest's own directory.
func openSource(ctx context.Context, cfg *config.Source, manifestPath string) (asset.Source, func() error, error) {
	logger := ctxlog.FromContext(ctx)
	noop := func() error { return nil }

	if cfg == nil {
		dir := manifestPath
		if info, err := os.Stat(manifestPath); err == nil && !info.IsDir() {
			dir = filepath.Dir(manifestPath)
		}
		logger.Debug("No source block, reading assets next to the manifest.", "path", dir)
		src, err := source.NewDir(dir)
		return src, noop, err
	}

	logger.Debug("Opening asset source.", "type", cfg.Type)
	switch cfg.Type {
	case config.SourceDir:
		src, err := source.NewDir(cfg.Path)
		return src, noop, err
	case config.SourceHTTP:
		src, err := source.NewHTTP(cfg.URL, cfg.Timeout)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	case config.SourceSocketIO:
		src, err := source.DialSocketIO(ctx, source.SocketIOConfig{
			URL:                cfg.URL,
			Namespace:          cfg.Namespace,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		})
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown source type '%s'", cfg.Type)
	}
}
