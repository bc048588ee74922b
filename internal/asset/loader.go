// Package asset implements typed asynchronous resource loaders.
//
// A Loader issues exactly one fetch for a Ref, converts the raw result to
// its target type and then fires two one-shot signals: an untyped "loaded"
// signal for generic listeners such as the preload coordinator, followed by
// a typed signal carrying the converted value.
//
// Failures are silent by contract. When the fetch fails or the conversion
// is rejected the loader becomes ready but never signals; the cause is
// logged and kept in Err. Hosts that cannot afford to wait forever bound
// the wait themselves.
package asset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/specialistvlad/assetgrid/internal/ctxlog"
	"github.com/specialistvlad/assetgrid/internal/signal"
)

var (
	// ErrAlreadyStarted is returned by Start on a loader that already issued its fetch.
	ErrAlreadyStarted = errors.New("asset loader already started")
	// ErrDisposed is returned by Start on a disposed loader.
	ErrDisposed = errors.New("asset loader disposed")
	// ErrNoResult is recorded when a fetch returns neither a value nor an error.
	ErrNoResult = errors.New("fetch returned no result")
	// ErrConversion is recorded when the raw value cannot be converted.
	ErrConversion = errors.New("conversion failed")
)

// FetchFunc issues the underlying fetch for a ref.
type FetchFunc[R any] func(ctx context.Context, ref Ref) (R, error)

// ConvertFunc adapts a raw fetched value to the loader's target type.
type ConvertFunc[R, T any] func(raw R) (T, bool)

// ReleaseFunc frees whatever the fetch produced. It runs at most once.
type ReleaseFunc[R any] func(raw R)

// Untyped is the part of a loader the preload coordinator depends on.
type Untyped interface {
	Ref() Ref
	Start(ctx context.Context) error
	IsReady() bool
	OnLoaded(fn func()) (cancel func())
	Err() error
	Dispose()
}

// Typed is a loader whose converted result has type T.
type Typed[T any] interface {
	Untyped
	Result() (T, bool)
	OnLoadedTyped(fn func(T)) (cancel func())
}

// Status is the state of a loader's fetch handle.
type Status int32

const (
	// StatusNone means the fetch has not settled (or was never issued).
	StatusNone Status = iota
	// StatusSucceeded means the fetch produced a value.
	StatusSucceeded
	// StatusFailed means the fetch produced an error or no value.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "none"
	}
}

// handle tracks one issued fetch and owns its raw result.
type handle[R any] struct {
	status   Status
	raw      R
	hasRaw   bool
	released bool
}

// take hands out the raw value for release exactly once. Callers hold the
// loader's mutex.
func (h *handle[R]) take() (R, bool) {
	var zero R
	if h == nil || !h.hasRaw || h.released {
		return zero, false
	}
	h.released = true
	raw := h.raw
	h.raw = zero
	return raw, true
}

// Loader fetches a single resource of raw type R and converts it to T.
type Loader[R, T any] struct {
	ref     Ref
	variant string
	fetch   FetchFunc[R]
	convert ConvertFunc[R, T]
	release ReleaseFunc[R]

	mu        sync.Mutex
	started   bool
	disposed  bool
	handle    *handle[R]
	result    T
	hasResult bool
	err       error

	loaded signal.Event[struct{}]
	typed  signal.Event[T]
}

// New returns a loader whose result is the fetched value itself.
func New[T any](ref Ref, fetch FetchFunc[T]) *Loader[T, T] {
	return NewWithConverter[T, T](ref, fetch, nil)
}

// NewWithConverter returns a loader that adapts the raw value with convert.
// A nil convert falls back to a type-compatibility check.
func NewWithConverter[R, T any](ref Ref, fetch FetchFunc[R], convert ConvertFunc[R, T]) *Loader[R, T] {
	l := &Loader[R, T]{
		ref:     ref,
		variant: "generic",
		fetch:   fetch,
		convert: convert,
	}
	if l.convert == nil {
		l.convert = identity[R, T]
		l.variant = "identity"
	}
	return l
}

// WithRelease sets the function that frees the raw value on Dispose.
// It must be called before Start.
func (l *Loader[R, T]) WithRelease(fn ReleaseFunc[R]) *Loader[R, T] {
	l.release = fn
	return l
}

// WithVariant names the loader variant in diagnostics.
func (l *Loader[R, T]) WithVariant(name string) *Loader[R, T] {
	l.variant = name
	return l
}

func identity[R, T any](raw R) (T, bool) {
	t, ok := any(raw).(T)
	return t, ok
}

// Ref returns the resource this loader was built for.
func (l *Loader[R, T]) Ref() Ref { return l.ref }

// Variant names the loader flavour, such as "instance" or "component".
func (l *Loader[R, T]) Variant() string { return l.variant }

// Start issues the fetch and returns immediately. It may be called once.
func (l *Loader[R, T]) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return ErrDisposed
	}
	if l.started {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.started = true
	h := &handle[R]{}
	l.handle = h
	l.mu.Unlock()

	logger := ctxlog.FromContext(ctx).With("asset", l.ref.String(), "loader", l.variant)
	logger.Debug("Asset fetch issued.")
	go l.run(ctx, logger, h)
	return nil
}

func (l *Loader[R, T]) run(ctx context.Context, logger *slog.Logger, h *handle[R]) {
	raw, err := l.fetch(ctx, l.ref)
	if err == nil && isAbsent(raw) {
		err = ErrNoResult
	}

	l.mu.Lock()
	if err != nil {
		h.status = StatusFailed
		l.err = fmt.Errorf("fetch %s: %w", l.ref, err)
		l.mu.Unlock()
		logger.Warn("Asset fetch failed, loader will not signal.", "error", err)
		return
	}
	h.status = StatusSucceeded
	h.raw = raw
	h.hasRaw = true
	if l.disposed {
		raw, ok := h.take()
		l.mu.Unlock()
		logger.Debug("Loader disposed while fetching, releasing result.")
		if ok {
			l.releaseRaw(raw)
		}
		return
	}
	l.mu.Unlock()

	converted, ok := l.convert(raw)
	if !ok {
		l.mu.Lock()
		l.err = fmt.Errorf("%s: %w to %s", l.ref, ErrConversion, typeName[T]())
		l.mu.Unlock()
		logger.Error("Asset loader could not convert the fetched value, loader will not signal.",
			"raw_type", fmt.Sprintf("%T", raw), "target_type", typeName[T]())
		return
	}

	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return
	}
	l.result = converted
	l.hasResult = true
	l.mu.Unlock()

	logger.Debug("Asset loaded.")
	l.loaded.Fire(struct{}{})
	l.typed.Fire(converted)
}

func (l *Loader[R, T]) releaseRaw(raw R) {
	if l.release != nil {
		l.release(raw)
	}
}

// IsReady reports whether the fetch settled, successfully or not. It is
// independent of conversion: a ready loader may never have signalled.
func (l *Loader[R, T]) IsReady() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle != nil && l.handle.status != StatusNone
}

// Status returns the fetch handle status.
func (l *Loader[R, T]) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle == nil {
		return StatusNone
	}
	return l.handle.status
}

// Result returns the converted value once the loader signalled.
func (l *Loader[R, T]) Result() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.result, l.hasResult
}

// Err returns why a settled loader did not signal, if it did not.
func (l *Loader[R, T]) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// OnLoaded subscribes to the untyped loaded signal.
func (l *Loader[R, T]) OnLoaded(fn func()) (cancel func()) {
	return l.loaded.Subscribe(func(struct{}) { fn() })
}

// OnLoadedTyped subscribes to the typed loaded signal.
func (l *Loader[R, T]) OnLoadedTyped(fn func(T)) (cancel func()) {
	return l.typed.Subscribe(fn)
}

// Done returns a channel closed when the loader signals.
func (l *Loader[R, T]) Done() <-chan struct{} {
	return l.loaded.Done()
}

// Dispose releases the fetched resource and drops all subscribers. A
// disposed loader cannot be started again.
func (l *Loader[R, T]) Dispose() {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return
	}
	l.disposed = true
	raw, ok := l.handle.take()
	var zero T
	l.result = zero
	l.hasResult = false
	l.mu.Unlock()

	l.loaded.Reset()
	l.typed.Reset()
	if ok {
		l.releaseRaw(raw)
	}
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

// isAbsent reports whether a fetched value carries nothing, such as a nil
// pointer or slice.
func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
