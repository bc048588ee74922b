package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
)

// ErrNotFound is returned when a source has nothing stored under a key.
var ErrNotFound = errors.New("asset not found")

// Dir serves files below a root directory. Keys are slash-separated paths
// relative to the root and may not escape it.
type Dir struct {
	root string
	fsys fs.FS
}

// NewDir returns a source rooted at the directory path.
func NewDir(root string) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("asset directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("asset directory %s is not a directory", root)
	}
	return &Dir{root: root, fsys: os.DirFS(root)}, nil
}

// NewFS returns a source backed by an arbitrary file system.
func NewFS(fsys fs.FS) *Dir {
	return &Dir{root: ".", fsys: fsys}
}

// Root returns the directory the source was created for.
func (d *Dir) Root() string { return d.root }

// Fetch reads the file at key.
func (d *Dir) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := path.Clean(strings.TrimPrefix(key, "/"))
	if !fs.ValidPath(name) {
		return nil, fmt.Errorf("invalid asset key '%s'", key)
	}
	b, err := fs.ReadFile(d.fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, key, d.root)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return b, nil
}
