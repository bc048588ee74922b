package binder

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/assetgrid/internal/asset"
	"github.com/specialistvlad/assetgrid/internal/scene"
)

// ErrUnknownKind is returned for a ref whose kind no loader variant handles.
var ErrUnknownKind = errors.New("no loader for asset kind")

// Factory builds the loader variant that fits a ref.
type Factory struct {
	// Source serves the bytes of every loader built by this factory.
	Source asset.Source
	// Parent, when set, receives instantiated prefabs.
	Parent *scene.Node
}

// NewLoader picks a loader by the ref's declared kind. Prefabs with a part
// are narrowed to that component; other prefabs are instantiated under
// Parent when there is one.
func (f Factory) NewLoader(ref asset.Ref) (asset.Untyped, error) {
	if f.Source == nil {
		return nil, fmt.Errorf("%s: factory has no source", ref)
	}
	if ref.Key == "" {
		return nil, fmt.Errorf("%s: empty key", ref)
	}
	switch ref.Kind {
	case asset.KindBlob, asset.KindText, asset.KindData:
		if ref.Part != "" {
			return nil, fmt.Errorf("%s: part is only supported for %s assets", ref, asset.KindPrefab)
		}
	}

	switch ref.Kind {
	case asset.KindBlob:
		return asset.NewBlob(ref, f.Source), nil
	case asset.KindText:
		return asset.NewText(ref, f.Source), nil
	case asset.KindData:
		return asset.NewData(ref, f.Source), nil
	case asset.KindPrefab:
		switch {
		case ref.Part != "":
			return asset.NewComponent(ref, f.Source), nil
		case f.Parent != nil:
			return asset.NewInstance(ref, f.Source, f.Parent), nil
		default:
			return asset.NewPrefab(ref, f.Source), nil
		}
	default:
		return nil, fmt.Errorf("%s: %w '%s'", ref, ErrUnknownKind, ref.Kind)
	}
}
