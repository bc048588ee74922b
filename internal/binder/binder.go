package binder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/assetgrid/internal/asset"
	"github.com/specialistvlad/assetgrid/internal/ctxlog"
)

// ErrDuplicateName is returned when a binder already holds a loader under
// the requested name.
var ErrDuplicateName = errors.New("asset name already bound")

// Registrar accepts loaders for a preload pass. *preload.Coordinator
// satisfies it.
type Registrar interface {
	Register(l asset.Untyped) error
}

// Binder owns the loaders it built and indexes them by field name.
type Binder struct {
	factory Factory

	mu      sync.RWMutex
	loaders map[string]asset.Untyped
	order   []string
}

// New returns an empty Binder that builds loaders with factory.
func New(factory Factory) *Binder {
	return &Binder{factory: factory, loaders: make(map[string]asset.Untyped)}
}

// Bind reads schema's fields from cfg and binds one loader per field.
func Bind[C any](ctx context.Context, b *Binder, schema *Schema[C], cfg C, reg Registrar) (map[string]asset.Untyped, error) {
	decls, err := schema.Declarations(ctx, cfg)
	if err != nil {
		return map[string]asset.Untyped{}, err
	}
	return b.BindDeclared(ctx, decls, reg)
}

// BindDeclared builds a loader for every declaration and registers it on
// reg in declaration order. Declarations that cannot be bound are skipped
// and reported in the joined error; the rest are still bound.
func (b *Binder) BindDeclared(ctx context.Context, decls []Declared, reg Registrar) (map[string]asset.Untyped, error) {
	logger := ctxlog.FromContext(ctx)
	bound := make(map[string]asset.Untyped, len(decls))
	var errs []error

	for _, d := range decls {
		l, err := b.bindOne(d, reg)
		if err != nil {
			logger.Error("Failed to bind asset.", "name", d.Name, "asset", d.Ref.String(), "error", err)
			errs = append(errs, fmt.Errorf("bind '%s': %w", d.Name, err))
			continue
		}
		logger.Debug("Asset bound.", "name", d.Name, "asset", d.Ref.String())
		bound[d.Name] = l
	}
	return bound, errors.Join(errs...)
}

func (b *Binder) bindOne(d Declared, reg Registrar) (asset.Untyped, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.loaders[d.Name]; exists {
		return nil, ErrDuplicateName
	}
	l, err := b.factory.NewLoader(d.Ref)
	if err != nil {
		return nil, err
	}
	if reg != nil {
		if err := reg.Register(l); err != nil {
			l.Dispose()
			return nil, err
		}
	}
	b.loaders[d.Name] = l
	b.order = append(b.order, d.Name)
	return l, nil
}

// Loader returns the loader bound under name.
func (b *Binder) Loader(name string) (asset.Untyped, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.loaders[name]
	return l, ok
}

// Names returns the bound names in binding order.
func (b *Binder) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.order...)
}

// Lookup returns the loader bound under name as a typed loader. It fails
// when the name is unbound or the loader's result is not a T.
func Lookup[T any](b *Binder, name string) (asset.Typed[T], bool) {
	l, ok := b.Loader(name)
	if !ok {
		return nil, false
	}
	typed, ok := l.(asset.Typed[T])
	return typed, ok
}

// Dispose disposes every loader the binder built and forgets them.
func (b *Binder) Dispose() {
	b.mu.Lock()
	loaders := make([]asset.Untyped, 0, len(b.order))
	for _, name := range b.order {
		loaders = append(loaders, b.loaders[name])
	}
	b.loaders = make(map[string]asset.Untyped)
	b.order = nil
	b.mu.Unlock()

	for _, l := range loaders {
		l.Dispose()
	}
}
