package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/specialistvlad/assetgrid/internal/asset"
	"github.com/specialistvlad/assetgrid/internal/binder"
	"github.com/specialistvlad/assetgrid/internal/config"
	"github.com/specialistvlad/assetgrid/internal/ctxlog"
	"github.com/specialistvlad/assetgrid/internal/preload"
	"github.com/specialistvlad/assetgrid/internal/scene"
)

// Initializer runs once a scope's assets are loaded.
type Initializer func(ctx context.Context, s *Scope) error

// Scope is one unit of work, such as a scene, that must not initialize
// before its assets are loaded. It owns a scene root that instantiated
// prefabs are attached to, the loaders bound for it and the preload pass
// that waits for them.
type Scope struct {
	name    string
	timeout time.Duration
	root    *scene.Node

	assets    *binder.Binder
	instances *binder.Binder
	coord     *preload.Coordinator

	mu           sync.Mutex
	initializers []Initializer
	initErr      error
	initialized  chan struct{}
	started      bool
}

// NewScope creates a scope whose loaders fetch from src. A zero timeout
// means DefaultTimeout.
func NewScope(name string, src asset.Source, timeout time.Duration) *Scope {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	root := scene.NewRoot(name)
	return &Scope{
		name:        name,
		timeout:     timeout,
		root:        root,
		assets:      binder.New(binder.Factory{Source: src}),
		instances:   binder.New(binder.Factory{Source: src, Parent: root}),
		coord:       preload.New(),
		initialized: make(chan struct{}),
	}
}

// Name returns the scope's name.
func (s *Scope) Name() string { return s.name }

// Root returns the container instantiated prefabs are attached to.
func (s *Scope) Root() *scene.Node { return s.root }

// Coordinator returns the scope's preload pass.
func (s *Scope) Coordinator() *preload.Coordinator { return s.coord }

// Bind binds the manifest's assets. Prefabs marked for instantiation are
// placed under the scope's root once loaded.
func (s *Scope) Bind(ctx context.Context, assets []*config.Asset) error {
	var plain, inst []binder.Declared
	for _, a := range assets {
		d := binder.Declared{Name: a.Name, Ref: a.Ref}
		if a.Instantiate {
			inst = append(inst, d)
		} else {
			plain = append(plain, d)
		}
	}
	_, errPlain := s.assets.BindDeclared(ctx, plain, s.coord)
	_, errInst := s.instances.BindDeclared(ctx, inst, s.coord)
	return errors.Join(errPlain, errInst)
}

// BindSchema binds the asset fields schema declares on cfg.
func BindSchema[C any](ctx context.Context, s *Scope, schema *binder.Schema[C], cfg C) error {
	_, err := binder.Bind(ctx, s.assets, schema, cfg, s.coord)
	return err
}

// OnInitialize registers fn to run once all assets are loaded.
// Initializers run in registration order.
func (s *Scope) OnInitialize(fn Initializer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initializers = append(s.initializers, fn)
}

// Start begins preloading. Initializers run from the completion callback,
// possibly before Start returns when every asset was already loaded.
func (s *Scope) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scope '%s' already started", s.name)
	}
	s.started = true
	s.mu.Unlock()

	logger := ctxlog.FromContext(ctx).With("scope", s.name)
	ctx = ctxlog.WithLogger(ctx, logger)

	var unsubscribe func()
	unsubscribe = s.coord.OnCompleted(func() {
		unsubscribe()
		s.initialize(ctx)
	})

	logger.Info("Preloading scope assets.", "assets", s.coord.Len())
	if err := s.coord.Start(ctx); err != nil {
		logger.Warn("Some asset loaders did not start.", "error", err)
		return err
	}
	return nil
}

func (s *Scope) initialize(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	s.mu.Lock()
	inits := append([]Initializer(nil), s.initializers...)
	s.mu.Unlock()

	var errs []error
	for _, fn := range inits {
		if err := fn(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		logger.Error("Scope initialization failed.", "error", err)
	} else {
		logger.Info("Scope initialized.", "initializers", len(inits))
	}

	s.mu.Lock()
	s.initErr = err
	s.mu.Unlock()
	close(s.initialized)
}

// Wait blocks until the scope initialized, the scope's timeout elapsed or
// ctx ended. A timeout is reported as a *preload.StalledError.
func (s *Scope) Wait(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.coord.Wait(ctx); err != nil {
		return fmt.Errorf("scope '%s': %w", s.name, err)
	}
	select {
	case <-s.initialized:
	case <-ctx.Done():
		return fmt.Errorf("scope '%s': initializers did not finish: %w", s.name, ctx.Err())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initErr != nil {
		return fmt.Errorf("scope '%s': %w", s.name, s.initErr)
	}
	return nil
}

// Initialized reports whether the initializers ran.
func (s *Scope) Initialized() bool {
	select {
	case <-s.initialized:
		return true
	default:
		return false
	}
}

// Loader returns the loader bound under name.
func (s *Scope) Loader(name string) (asset.Untyped, bool) {
	if l, ok := s.assets.Loader(name); ok {
		return l, true
	}
	return s.instances.Loader(name)
}

// Names returns the bound asset names.
func (s *Scope) Names() []string {
	return append(s.assets.Names(), s.instances.Names()...)
}

// Close disposes every loader the scope bound. Instantiated prefabs are
// detached from the root.
func (s *Scope) Close() {
	s.assets.Dispose()
	s.instances.Dispose()
}

// Lookup returns the loader bound under name as a typed loader.
func Lookup[T any](s *Scope, name string) (asset.Typed[T], bool) {
	if _, ok := s.assets.Loader(name); ok {
		return binder.Lookup[T](s.assets, name)
	}
	return binder.Lookup[T](s.instances, name)
}
