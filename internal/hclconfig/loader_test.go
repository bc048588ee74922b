package hclconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/assetgrid/internal/asset"
	"github.com/specialistvlad/assetgrid/internal/config"
	"github.com/specialistvlad/assetgrid/internal/ctxlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCtx() context.Context {
	return ctxlog.WithLogger(context.Background(), ctxlog.Discard())
}

// writeFiles creates files below a temp dir and returns the dir.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

const mainManifest = `
source "dir" {
  path = "./assets"
}

scene "main" {
  timeout = "5s"

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
    kind = "DATA"
    key  = "palette.json"
  }
}
`

func TestLoader_Load(t *testing.T) {
	// --- Arrange ---
	root := writeFiles(t, map[string]string{
		"main.hcl": mainManifest,
		"menu/menu.hcl": `
scene "menu" {
  asset "logo" {
    kind = "blob"
    key  = "logo.png"
  }
}`,
		// Prefabs next to manifests are not manifests themselves.
		"assets/hero.hcl": "name = \"hero\"\ncomponent \"animator\" {}\n",
	})

	// --- Act ---
	model, err := NewLoader().Load(testCtx(), root)

	// --- Assert ---
	require.NoError(t, err)
	want := &config.Model{
		Source: &config.Source{Type: config.SourceDir, Path: filepath.Join(root, "assets")},
		Scenes: []*config.Scene{
			{
				Name:    "main",
				Timeout: 5 * time.Second,
				Assets: []*config.Asset{
					{Name: "hero", Ref: asset.Prefab("hero.hcl"), Instantiate: true},
					{Name: "hero_anim", Ref: asset.Prefab("hero.hcl").WithPart("animator")},
					{Name: "palette", Ref: asset.Data("palette.json")},
				},
			},
			{
				Name:   "menu",
				Assets: []*config.Asset{{Name: "logo", Ref: asset.Blob("logo.png")}},
			},
		},
	}
	if diff := cmp.Diff(want, model); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 4, model.AssetCount())
	_, ok := model.Scene("menu")
	assert.True(t, ok)
}

func TestLoader_LoadSingleFile(t *testing.T) {
	root := writeFiles(t, map[string]string{"main.hcl": mainManifest, "ignored.txt": "x"})

	model, err := NewLoader().Load(testCtx(), filepath.Join(root, "main.hcl"))

	require.NoError(t, err)
	require.Len(t, model.Scenes, 1)
	assert.Equal(t, "main", model.Scenes[0].Name)
}

func TestLoader_RemoteSources(t *testing.T) {
	root := writeFiles(t, map[string]string{"main.hcl": `
source "socketio" {
  url                  = "https://assets.example.com/socket.io/"
  namespace            = "/assets"
  insecure_skip_verify = true
}
scene "main" {}
`})

	model, err := NewLoader().Load(testCtx(), root)

	require.NoError(t, err)
	want := &config.Source{
		Type:               config.SourceSocketIO,
		URL:                "https://assets.example.com/socket.io/",
		Namespace:          "/assets",
		InsecureSkipVerify: true,
	}
	if diff := cmp.Diff(want, model.Source); diff != "" {
		t.Errorf("source mismatch (-want +got):\n%s", diff)
	}
}

func TestLoader_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "syntax error",
			files:   map[string]string{"a.hcl": `scene "x" {`},
			wantErr: "failed to parse HCL file",
		},
		{
			name:    "unknown kind",
			files:   map[string]string{"a.hcl": "scene \"x\" {\n asset \"a\" {\n kind = \"mesh\"\n key = \"a\"\n }\n}"},
			wantErr: "unknown asset kind 'mesh'",
		},
		{
			name: "duplicate asset",
			files: map[string]string{"a.hcl": `
scene "x" {
  asset "a" {
    kind = "blob"
    key  = "a"
  }
  asset "a" {
    kind = "blob"
    key  = "b"
  }
}`},
			wantErr: "asset 'a' declared twice",
		},
		{
			name: "duplicate scene across files",
			files: map[string]string{
				"a.hcl": `scene "x" {}`,
				"b.hcl": `scene "x" {}`,
			},
			wantErr: "scene 'x' already defined",
		},
		{
			name: "two sources",
			files: map[string]string{"a.hcl": `
source "dir" { path = "a" }
source "dir" { path = "b" }
scene "x" {}
`},
			wantErr: "only one source block",
		},
		{
			name:    "unknown source type",
			files:   map[string]string{"a.hcl": `source "ftp" { url = "ftp://x" }`},
			wantErr: "unknown source type 'ftp'",
		},
		{
			name:    "http without url",
			files:   map[string]string{"a.hcl": `source "http" {}`},
			wantErr: `source "http" requires a url`,
		},
		{
			name:    "bad scene timeout",
			files:   map[string]string{"a.hcl": `scene "x" { timeout = "soon" }`},
			wantErr: "invalid timeout",
		},
		{
			name:    "instantiate with part",
			files:   map[string]string{"a.hcl": "scene \"x\" {\n asset \"a\" {\n kind = \"prefab\"\n key = \"h.hcl\"\n part = \"p\"\n instantiate = true\n }\n}"},
			wantErr: "instantiate requires",
		},
		{
			name:    "part on text",
			files:   map[string]string{"a.hcl": "scene \"x\" {\n asset \"a\" {\n kind = \"text\"\n key = \"a.txt\"\n part = \"p\"\n }\n}"},
			wantErr: "part is only supported",
		},
		{
			name:    "stray top-level argument",
			files:   map[string]string{"a.hcl": "scene \"x\" {}\nverbose = true\n"},
			wantErr: "Unsupported argument",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root := writeFiles(t, tc.files)
			_, err := NewLoader().Load(testCtx(), root)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoader_NoManifests(t *testing.T) {
	_, err := NewLoader().Load(testCtx(), t.TempDir())
	assert.ErrorContains(t, err, "no .hcl manifest files")

	_, err = NewLoader().Load(testCtx(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
