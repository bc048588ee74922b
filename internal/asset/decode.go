package asset

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/assetgrid/internal/scene"
	"github.com/zclconf/go-cty/cty"
)

// Source retrieves the bytes stored under a key.
type Source interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// FetchBlob fetches raw bytes.
func FetchBlob(src Source) FetchFunc[[]byte] {
	return func(ctx context.Context, ref Ref) ([]byte, error) {
		return src.Fetch(ctx, ref.Key)
	}
}

// FetchText fetches a resource and returns it as a string.
func FetchText(src Source) FetchFunc[string] {
	return func(ctx context.Context, ref Ref) (string, error) {
		b, err := src.Fetch(ctx, ref.Key)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// FetchData fetches a structured document and decodes it with DecodeData.
func FetchData(src Source) FetchFunc[cty.Value] {
	return func(ctx context.Context, ref Ref) (cty.Value, error) {
		b, err := src.Fetch(ctx, ref.Key)
		if err != nil {
			return cty.NilVal, err
		}
		return DecodeData(ref.Key, b)
	}
}

// FetchPrefab fetches and decodes a prefab definition.
func FetchPrefab(src Source) FetchFunc[*scene.Prefab] {
	return func(ctx context.Context, ref Ref) (*scene.Prefab, error) {
		b, err := src.Fetch(ctx, ref.Key)
		if err != nil {
			return nil, err
		}
		return scene.DecodePrefab(ref.Key, b)
	}
}

// DecodeData parses a document into a cty object of its top-level
// attributes. Keys ending in .json are read as JSON, anything else as HCL.
func DecodeData(filename string, src []byte) (cty.Value, error) {
	parser := hclparse.NewParser()
	var (
		file  *hcl.File
		diags hcl.Diagnostics
	)
	if strings.EqualFold(path.Ext(filename), ".json") {
		file, diags = parser.ParseJSON(src, filename)
	} else {
		file, diags = parser.ParseHCL(src, filename)
	}
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("failed to parse %s: %w", filename, diags)
	}

	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("failed to read attributes of %s: %w", filename, diags)
	}
	if len(attrs) == 0 {
		return cty.EmptyObjectVal, nil
	}

	vals := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		v, valDiags := attr.Expr.Value(nil)
		if valDiags.HasErrors() {
			return cty.NilVal, fmt.Errorf("failed to evaluate %s in %s: %w", name, filename, valDiags)
		}
		vals[name] = v
	}
	return cty.ObjectVal(vals), nil
}
