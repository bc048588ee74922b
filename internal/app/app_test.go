package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/specialistvlad/assetgrid/internal/preload"
	"github.com/specialistvlad/assetgrid/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const heroPrefab = `
name = "hero"
component "animator" {
  controller = "idle.anim"
}
child "sword" {
  component "mesh" {}
}
`

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func TestApp_Run_PreloadsAllScenes(t *testing.T) {
	// --- Arrange ---
	root := writeTree(t, map[string]string{
		"manifest/main.hcl": `
source "dir" {
  path = "../assets"
}

scene "level" {
  asset "hero" {
    kind        = "prefab"
    key         = "hero.hcl"
    instantiate = true
  }
  asset "hero_anim" {
    kind = "prefab"
    key  = "hero.hcl"
    part = "animator"
  }
  asset "palette" {
    kind = "data"
    key  = "palette.json"
  }
}

scene "menu" {
  asset "title" {
    kind = "text"
    key  = "title.txt"
  }
}
`,
		"assets/hero.hcl":     heroPrefab,
		"assets/palette.json": `{"primary": "#ff0000"}`,
		"assets/title.txt":    "Welcome",
	})
	cfg, err := NewConfig(Config{ManifestPath: filepath.Join(root, "manifest"), LogFormat: "text"})
	require.NoError(t, err)
	testApp, out := SetupAppTest(t, cfg)

	// --- Act ---
	err = testApp.Run(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	logs := out.String()
	assert.Contains(t, logs, `Scene "level": 3/3 assets loaded`)
	assert.Contains(t, logs, `Scene "menu": 1/1 assets loaded`)
	assert.Contains(t, logs, "level\n  hero [animator]\n    sword [mesh]\n")
	assert.Contains(t, logs, "Preload completed.")
	assert.True(t, testApp.Ready())
}

func TestApp_Run_StalledSceneFails(t *testing.T) {
	// --- Arrange ---
	root := writeTree(t, map[string]string{
		"main.hcl": `
scene "broken" {
  timeout = "100ms"
  asset "hero_rig" {
    kind = "prefab"
    key  = "hero.hcl"
    part = "rigidbody"
  }
  asset "title" {
    kind = "text"
    key  = "title.txt"
  }
}
`,
		"hero.hcl":  heroPrefab,
		"title.txt": "Welcome",
	})
	cfg, err := NewConfig(Config{ManifestPath: root, LogFormat: "json"})
	require.NoError(t, err)
	testApp, out := SetupAppTest(t, cfg)

	// --- Act ---
	err = testApp.Run(context.Background())

	// --- Assert ---
	require.Error(t, err)
	var stalled *preload.StalledError
	require.ErrorAs(t, err, &stalled)
	require.Len(t, stalled.Assets, 1)
	assert.Equal(t, "prefab:hero.hcl#rigidbody", stalled.Assets[0].Ref.String())

	logs := out.String()
	assert.Contains(t, logs, `Scene "broken": 1/2 assets loaded`)
	assert.Contains(t, logs, "failed: prefab:hero.hcl#rigidbody: conversion failed")
	assert.False(t, testApp.Ready())
}

func TestApp_Run_WithInjectedSource(t *testing.T) {
	root := writeTree(t, map[string]string{"main.hcl": `
scene "main" {
  asset "logo" {
    kind = "blob"
    key  = "logo.png"
  }
}
`})
	cfg, err := NewConfig(Config{ManifestPath: root})
	require.NoError(t, err)
	mem := source.NewMemory(map[string][]byte{"logo.png": {0x89, 'P', 'N', 'G'}})
	testApp, out := SetupAppTest(t, cfg, WithSource(mem))

	require.NoError(t, testApp.Run(context.Background()))
	assert.Contains(t, out.String(), `Scene "main": 1/1 assets loaded`)
}

func TestNewApp_PanicsOnBadManifest(t *testing.T) {
	root := writeTree(t, map[string]string{"main.hcl": `scene "x" {`})
	cfg, err := NewConfig(Config{ManifestPath: root})
	require.NoError(t, err)

	assert.Panics(t, func() { SetupAppTest(t, cfg) })
}

func TestNewConfig(t *testing.T) {
	_, err := NewConfig(Config{})
	assert.Error(t, err)

	_, err = NewConfig(Config{ManifestPath: "m", Timeout: -time.Second})
	assert.Error(t, err)

	_, err = NewConfig(Config{ManifestPath: "m", HealthcheckPort: 70000})
	assert.Error(t, err)

	cfg, err := NewConfig(Config{ManifestPath: "m"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
}

func TestHealthHandlers(t *testing.T) {
	root := writeTree(t, map[string]string{"main.hcl": `scene "main" {}`})
	cfg, err := NewConfig(Config{ManifestPath: root})
	require.NoError(t, err)
	testApp, _ := SetupAppTest(t, cfg)
	mux := testApp.healthMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Not ready before Run has preloaded the manifest's scene.
	assert.False(t, testApp.Ready())
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "PRELOADING 0/1\n", rec.Body.String())

	require.NoError(t, testApp.Run(context.Background()))
	assert.True(t, testApp.Ready())
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	testApp.scenes.Store(2)
	testApp.ready.Store(1)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "PRELOADING 1/2\n", rec.Body.String())

	testApp.ready.Store(2)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("warn").String())
	assert.Equal(t, "INFO", parseLevel("bogus").String())
}
