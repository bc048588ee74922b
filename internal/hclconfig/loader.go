package hclconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/assetgrid/internal/asset"
	"github.com/specialistvlad/assetgrid/internal/config"
	"github.com/specialistvlad/assetgrid/internal/ctxlog"
	"github.com/specialistvlad/assetgrid/internal/fsutil"
)

// Loader is the HCL implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new HCL manifest loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// Load parses every .hcl file under paths and merges them into one model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := findManifests(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl manifest files found in %v", paths)
	}
	logger.Debug("Discovered manifest files.", "files", files)

	parser := hclparse.NewParser()
	model := &config.Model{}
	seenScenes := make(map[string]string)

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		if len(root.Sources) == 0 && len(root.Scenes) == 0 {
			// Prefabs and data documents often live next to manifests.
			logger.Debug("Skipping HCL file without manifest blocks.", "file", file)
			continue
		}
		if diags := unexpectedContent(root.Remain); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, s := range root.Sources {
			if model.Source != nil {
				return nil, fmt.Errorf("%s: only one source block is allowed, found another of type '%s'", file, s.Type)
			}
			src, err := translateSource(file, s)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			model.Source = src
		}

		for _, s := range root.Scenes {
			if prev, dup := seenScenes[s.Name]; dup {
				return nil, fmt.Errorf("%s: scene '%s' already defined in %s", file, s.Name, prev)
			}
			seenScenes[s.Name] = file
			scene, err := translateScene(s)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			model.Scenes = append(model.Scenes, scene)
		}
	}

	logger.Debug("HCL loading complete.", "scenes", len(model.Scenes), "assets", model.AssetCount())
	return model, nil
}

// unexpectedContent reports any attribute left over after decoding the
// known blocks.
func unexpectedContent(body hcl.Body) hcl.Diagnostics {
	if body == nil {
		return nil
	}
	attrs, diags := body.JustAttributes()
	for name, attr := range attrs {
		diags = diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Unsupported argument",
			Detail:   fmt.Sprintf("An argument named %q is not expected at the top level of a manifest.", name),
			Subject:  attr.NameRange.Ptr(),
		})
	}
	return diags
}

func translateSource(file string, s *hclSource) (*config.Source, error) {
	src := &config.Source{
		Type:               s.Type,
		URL:                s.URL,
		Timeout:            s.Timeout,
		Namespace:          s.Namespace,
		InsecureSkipVerify: s.InsecureSkipVerify,
	}
	switch s.Type {
	case config.SourceDir:
		if s.Path == "" {
			return nil, fmt.Errorf("source \"dir\" requires a path")
		}
		src.Path = s.Path
		if !filepath.IsAbs(src.Path) {
			src.Path = filepath.Join(filepath.Dir(file), src.Path)
		}
	case config.SourceHTTP, config.SourceSocketIO:
		if s.URL == "" {
			return nil, fmt.Errorf("source %q requires a url", s.Type)
		}
	default:
		return nil, fmt.Errorf("unknown source type '%s': must be one of %s, %s, %s",
			s.Type, config.SourceDir, config.SourceHTTP, config.SourceSocketIO)
	}
	if s.Timeout != "" {
		if _, err := time.ParseDuration(s.Timeout); err != nil {
			return nil, fmt.Errorf("source %q: invalid timeout: %w", s.Type, err)
		}
	}
	return src, nil
}

func translateScene(s *hclScene) (*config.Scene, error) {
	scene := &config.Scene{Name: s.Name}
	if s.Timeout != "" {
		d, err := time.ParseDuration(s.Timeout)
		if err != nil {
			return nil, fmt.Errorf("scene '%s': invalid timeout: %w", s.Name, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("scene '%s': timeout must be positive, got %s", s.Name, s.Timeout)
		}
		scene.Timeout = d
	}

	seen := make(map[string]struct{}, len(s.Assets))
	for _, a := range s.Assets {
		if _, dup := seen[a.Name]; dup {
			return nil, fmt.Errorf("scene '%s': asset '%s' declared twice", s.Name, a.Name)
		}
		seen[a.Name] = struct{}{}

		kind, err := asset.ParseKind(a.Kind)
		if err != nil {
			return nil, fmt.Errorf("scene '%s': asset '%s': %w", s.Name, a.Name, err)
		}
		out := &config.Asset{
			Name:        a.Name,
			Ref:         asset.Ref{Key: a.Key, Kind: kind, Part: a.Part},
			Instantiate: a.Instantiate,
		}
		if err := out.Validate(); err != nil {
			return nil, fmt.Errorf("scene '%s': %w", s.Name, err)
		}
		scene.Assets = append(scene.Assets, out)
	}
	return scene, nil
}

// findManifests returns the .hcl files named by paths, searching
// directories recursively. Missing paths are an error.
func findManifests(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			files = append(files, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			if filepath.Ext(path) == ".hcl" {
				add(path)
			}
			continue
		}
		found, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", path, err)
		}
		for _, f := range found {
			add(f)
		}
	}
	return files, nil
}
