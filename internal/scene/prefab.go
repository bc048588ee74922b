// Package scene models what prefab assets turn into: a Prefab is an
// immutable definition decoded from HCL, a Node is a live instance of one
// attached to a parent container.
package scene

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Component is a named bag of attributes attached to a prefab or node,
// e.g. a "transform" or an "animator".
type Component struct {
	Type  string
	Attrs map[string]cty.Value
}

// Value returns the component's attributes as a cty object.
func (c *Component) Value() cty.Value {
	if len(c.Attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(c.Attrs)
}

// Decode converts the component into a Go value using `cty` struct tags.
func (c *Component) Decode(target any) error {
	if err := gocty.FromCtyValue(c.Value(), target); err != nil {
		return fmt.Errorf("failed to decode component '%s': %w", c.Type, err)
	}
	return nil
}

// Keys returns the attribute names in sorted order.
func (c *Component) Keys() []string {
	keys := make([]string, 0, len(c.Attrs))
	for k := range c.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Component) clone() *Component {
	attrs := make(map[string]cty.Value, len(c.Attrs))
	for k, v := range c.Attrs {
		attrs[k] = v
	}
	return &Component{Type: c.Type, Attrs: attrs}
}

// Prefab is a definition that can be instantiated any number of times.
type Prefab struct {
	Name       string
	Components []*Component
	Children   []*Prefab
}

// Component returns the component of the given type, or nil.
func (p *Prefab) Component(typ string) *Component {
	for _, c := range p.Components {
		if c.Type == typ {
			return c
		}
	}
	return nil
}

// hclPrefab is the decoding target for a prefab body. Child blocks reuse
// it, so prefabs nest to any depth.
type hclPrefab struct {
	Name       string          `hcl:"name,optional"`
	Components []*hclComponent `hcl:"component,block"`
	Children   []*hclChild     `hcl:"child,block"`
}

type hclComponent struct {
	Type string   `hcl:"type,label"`
	Body hcl.Body `hcl:",remain"`
}

type hclChild struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

// DecodePrefab parses an HCL prefab definition. The filename is only used
// for diagnostics and as the fallback prefab name.
func DecodePrefab(filename string, src []byte) (*Prefab, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse prefab %s: %w", filename, diags)
	}

	p, diags := decodePrefabBody(file.Body)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode prefab %s: %w", filename, diags)
	}
	if p.Name == "" {
		p.Name = filename
	}
	return p, nil
}

func decodePrefabBody(body hcl.Body) (*Prefab, hcl.Diagnostics) {
	var raw hclPrefab
	diags := gohcl.DecodeBody(body, nil, &raw)
	if diags.HasErrors() {
		return nil, diags
	}

	p := &Prefab{Name: raw.Name}
	seen := make(map[string]hcl.Range)
	for _, rc := range raw.Components {
		attrs, attrDiags := rc.Body.JustAttributes()
		diags = append(diags, attrDiags...)
		if prev, dup := seen[rc.Type]; dup {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate \"component\" block",
				Detail:   fmt.Sprintf("Component %q was already declared at %s.", rc.Type, prev),
				Subject:  rc.Body.MissingItemRange().Ptr(),
			})
			continue
		}
		seen[rc.Type] = rc.Body.MissingItemRange()

		c := &Component{Type: rc.Type, Attrs: make(map[string]cty.Value, len(attrs))}
		for name, attr := range attrs {
			val, valDiags := attr.Expr.Value(nil)
			diags = append(diags, valDiags...)
			c.Attrs[name] = val
		}
		p.Components = append(p.Components, c)
	}

	for _, rc := range raw.Children {
		child, childDiags := decodePrefabBody(rc.Body)
		diags = append(diags, childDiags...)
		if child == nil {
			continue
		}
		child.Name = rc.Name
		p.Children = append(p.Children, child)
	}
	return p, diags
}
