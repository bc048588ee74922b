package binder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/assetgrid/internal/asset"
	"github.com/specialistvlad/assetgrid/internal/ctxlog"
)

// ErrNotDiscovered is returned when a Schema has no field definitions to
// apply, e.g. a zero Schema that was never built with NewSchema.
var ErrNotDiscovered = errors.New("schema fields not discovered")

// Declared is one named asset reference read from a configuration value.
type Declared struct {
	Name string
	Ref  asset.Ref
}

type field[C any] struct {
	name   string
	access func(C) asset.Ref
}

// Fields collects the asset fields of configuration type C while a Schema
// is being defined.
type Fields[C any] struct {
	list  []field[C]
	names map[string]struct{}
}

// Ref declares a field named name whose asset reference is read by access.
// Field names are unique per schema; declaring one twice panics.
func (f *Fields[C]) Ref(name string, access func(C) asset.Ref) *Fields[C] {
	if _, exists := f.names[name]; exists {
		panic(fmt.Sprintf("asset field with name '%s' already declared", name))
	}
	if access == nil {
		panic(fmt.Sprintf("asset field '%s' has no accessor", name))
	}
	f.names[name] = struct{}{}
	f.list = append(f.list, field[C]{name: name, access: access})
	return f
}

// Schema is the cached list of asset fields for configuration type C.
// Schemas are meant to be package-level variables: the definition runs on
// first use and its result is kept for the life of the process.
type Schema[C any] struct {
	define func(*Fields[C])

	once   sync.Once
	fields []field[C]
}

// NewSchema returns a Schema whose fields are declared by define.
func NewSchema[C any](define func(*Fields[C])) *Schema[C] {
	return &Schema[C]{define: define}
}

func (s *Schema[C]) load() []field[C] {
	s.once.Do(func() {
		if s.define == nil {
			return
		}
		f := &Fields[C]{names: make(map[string]struct{})}
		s.define(f)
		s.fields = f.list
	})
	return s.fields
}

// Names returns the declared field names in definition order.
func (s *Schema[C]) Names() []string {
	fields := s.load()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}
	return names
}

// Declarations reads every declared field from cfg, in definition order.
// A schema without definitions yields ErrNotDiscovered and no declarations.
func (s *Schema[C]) Declarations(ctx context.Context, cfg C) ([]Declared, error) {
	fields := s.load()
	if s.define == nil {
		ctxlog.FromContext(ctx).Error("Asset schema was never defined, nothing to bind.",
			"config_type", fmt.Sprintf("%T", cfg))
		return nil, ErrNotDiscovered
	}
	out := make([]Declared, 0, len(fields))
	for _, f := range fields {
		out = append(out, Declared{Name: f.name, Ref: f.access(cfg)})
	}
	return out, nil
}
