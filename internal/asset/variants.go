package asset

import (
	"context"

	"github.com/specialistvlad/assetgrid/internal/scene"
	"github.com/zclconf/go-cty/cty"
)

// NewBlob returns a loader for a raw byte resource.
func NewBlob(ref Ref, src Source) *Loader[[]byte, []byte] {
	return New(ref, FetchBlob(src))
}

// NewText returns a loader for a text resource.
func NewText(ref Ref, src Source) *Loader[string, string] {
	return New(ref, FetchText(src))
}

// NewData returns a loader for a structured document.
func NewData(ref Ref, src Source) *Loader[cty.Value, cty.Value] {
	return New(ref, FetchData(src))
}

// NewPrefab returns a loader for a prefab definition. The prefab is not
// instantiated; see NewInstance for that.
func NewPrefab(ref Ref, src Source) *Loader[*scene.Prefab, *scene.Prefab] {
	return New(ref, FetchPrefab(src))
}

// NewInstance returns a loader that fetches a prefab and instantiates it
// under parent. Disposing the loader detaches the instance again.
func NewInstance(ref Ref, src Source, parent *scene.Node) *Loader[*scene.Node, *scene.Node] {
	fetchPrefab := FetchPrefab(src)
	var fetch FetchFunc[*scene.Node] = func(ctx context.Context, ref Ref) (*scene.Node, error) {
		p, err := fetchPrefab(ctx, ref)
		if err != nil {
			return nil, err
		}
		return scene.Instantiate(p, parent), nil
	}
	return New(ref, fetch).
		WithVariant("instance").
		WithRelease(func(n *scene.Node) { n.Detach() })
}

// NewComponent returns a loader that fetches a prefab and extracts the
// component named by ref.Part. A prefab without that component fails
// conversion, so the loader never signals.
func NewComponent(ref Ref, src Source) *Loader[*scene.Prefab, *scene.Component] {
	part := ref.Part
	convert := func(p *scene.Prefab) (*scene.Component, bool) {
		c := p.Component(part)
		return c, c != nil
	}
	return NewWithConverter[*scene.Prefab, *scene.Component](ref, FetchPrefab(src), convert).WithVariant("component")
}
