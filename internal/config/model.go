package config

import (
	"fmt"
	"time"

	"github.com/specialistvlad/assetgrid/internal/asset"
)

// Source types understood by the application.
const (
	SourceDir      = "dir"
	SourceHTTP     = "http"
	SourceSocketIO = "socketio"
)

// Model is the merged content of all manifests.
type Model struct {
	// Source is where every asset is fetched from. Nil means the manifest
	// directory itself.
	Source *Source
	Scenes []*Scene
}

// Source describes the asset store.
type Source struct {
	Type string
	// Path is the asset directory for "dir" sources, already resolved
	// against the manifest file that declared it.
	Path string
	// URL is the base URL for "http" and "socketio" sources.
	URL                string
	Timeout            string
	Namespace          string
	InsecureSkipVerify bool
}

// Scene is one unit of work that waits for its assets before it starts.
type Scene struct {
	Name string
	// Timeout bounds the preload wait. Zero means the application default.
	Timeout time.Duration
	Assets  []*Asset
}

// Asset is one named resource a scene preloads.
type Asset struct {
	Name string
	Ref  asset.Ref
	// Instantiate places the prefab under the scene's root once loaded.
	Instantiate bool
}

// Scene returns the scene with the given name.
func (m *Model) Scene(name string) (*Scene, bool) {
	for _, s := range m.Scenes {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// AssetCount returns the number of assets over all scenes.
func (m *Model) AssetCount() int {
	n := 0
	for _, s := range m.Scenes {
		n += len(s.Assets)
	}
	return n
}

// Validate checks the asset against the rules every loader relies on.
func (a *Asset) Validate() error {
	if err := a.Ref.Validate(); err != nil {
		return fmt.Errorf("asset '%s': %w", a.Name, err)
	}
	if a.Instantiate && (a.Ref.Kind != asset.KindPrefab || a.Ref.Part != "") {
		return fmt.Errorf("asset '%s': instantiate requires a %s asset without a part", a.Name, asset.KindPrefab)
	}
	return nil
}
