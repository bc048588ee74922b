// Package preload provides the fan-in barrier that holds a unit of work
// back until every asset it depends on has loaded.
//
// A Coordinator collects loaders, starts the ones that are not ready yet
// and fires a single completion event when the last of them signals.
// Loaders that are already ready when Start runs are treated as free and
// contribute nothing to the wait, which lets a loader be shared between
// several preload passes.
package preload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/specialistvlad/assetgrid/internal/asset"
	"github.com/specialistvlad/assetgrid/internal/ctxlog"
	"github.com/specialistvlad/assetgrid/internal/signal"
)

var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("preload coordinator already started")
	// ErrStarted is returned by Register once Start has begun.
	ErrStarted = errors.New("preload coordinator already started, registration closed")
)

// State is the coordinator's position in its one-shot lifecycle.
type State int32

const (
	// Collecting accepts registrations; Start has not been called.
	Collecting State = iota
	// Starting is the synchronous scan inside Start.
	Starting
	// Waiting means at least one started loader has not signalled.
	Waiting
	// Completed means the completion event fired.
	Completed
)

func (s State) String() string {
	switch s {
	case Collecting:
		return "collecting"
	case Starting:
		return "starting"
	case Waiting:
		return "waiting"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Coordinator is a one-shot fan-in barrier over asset loaders.
type Coordinator struct {
	id string

	mu      sync.Mutex
	loaders []asset.Untyped
	waiting []*entry

	state   atomic.Int32
	pending atomic.Int32
	logger  *slog.Logger

	completed signal.Event[struct{}]
}

// entry tracks one loader the coordinator is waiting on.
type entry struct {
	loader    asset.Untyped
	signalled atomic.Bool
}

// New creates an empty coordinator.
func New() *Coordinator {
	return &Coordinator{id: uuid.NewString(), logger: slog.Default()}
}

// ID returns the coordinator's unique pass id, used in logs.
func (c *Coordinator) ID() string { return c.id }

// Register appends a loader. Registration is closed once Start begins.
func (c *Coordinator) Register(l asset.Untyped) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() != Collecting {
		return fmt.Errorf("register %s: %w", l.Ref(), ErrStarted)
	}
	c.loaders = append(c.loaders, l)
	return nil
}

// Len returns the number of registered loaders.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.loaders)
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// Pending returns how many started loaders have not signalled yet.
func (c *Coordinator) Pending() int {
	n := c.pending.Load()
	if c.State() == Starting {
		// Discount the scan token held during Start.
		n--
	}
	if n < 0 {
		return 0
	}
	return int(n)
}

// OnCompleted subscribes fn to the completion event. Subscribe before
// calling Start: the event is not replayed to late subscribers.
func (c *Coordinator) OnCompleted(fn func()) (cancel func()) {
	return c.completed.Subscribe(func(struct{}) { fn() })
}

// Done returns a channel closed on completion.
func (c *Coordinator) Done() <-chan struct{} { return c.completed.Done() }

// Start scans the registered loaders in order, starts every loader that is
// not ready and fires completion once all of them signalled. When nothing
// needs to load, completion fires before Start returns.
//
// A loader still fetching for another pass is counted and awaited without
// a second fetch. Loaders that refuse to start, such as disposed ones, are
// left out of the count; their errors are joined into the returned error.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.CompareAndSwap(int32(Collecting), int32(Starting)) {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	loaders := make([]asset.Untyped, len(c.loaders))
	copy(loaders, c.loaders)
	c.mu.Unlock()

	logger := ctxlog.FromContext(ctx).With("preload", c.id)
	c.logger = logger
	logger.Debug("Preload started.", "registered", len(loaders))

	// The scan token keeps a loader that settles during the scan from
	// completing the barrier before every loader was considered.
	c.pending.Store(1)

	var errs []error
	started, skipped := 0, 0
	for _, l := range loaders {
		if l.IsReady() {
			skipped++
			logger.Debug("Asset already ready, skipping.", "asset", l.Ref().String())
			continue
		}

		c.pending.Add(1)
		e := &entry{loader: l}
		var once sync.Once
		cancel := l.OnLoaded(func() {
			once.Do(func() {
				e.signalled.Store(true)
				c.release(l.Ref().String())
			})
		})
		// uncount drops this loader's slot without completing the barrier:
		// the scan token is still held. The shared once keeps a loader that
		// already signalled from being uncounted twice.
		uncount := func() { once.Do(func() { c.pending.Add(-1) }) }
		if err := l.Start(ctx); err != nil {
			switch {
			case errors.Is(err, asset.ErrAlreadyStarted) && !l.IsReady():
				// Another pass owns the fetch. Wait on it without refetching.
				logger.Debug("Asset already loading elsewhere, waiting on it.", "asset", l.Ref().String())
			case errors.Is(err, asset.ErrAlreadyStarted):
				cancel()
				uncount()
				skipped++
				logger.Debug("Asset became ready during the scan, skipping.", "asset", l.Ref().String())
				continue
			default:
				cancel()
				uncount()
				logger.Error("Asset loader refused to start.", "asset", l.Ref().String(), "error", err)
				errs = append(errs, fmt.Errorf("start %s: %w", l.Ref(), err))
				continue
			}
		}
		c.mu.Lock()
		c.waiting = append(c.waiting, e)
		c.mu.Unlock()
		started++
	}

	c.state.Store(int32(Waiting))
	logger.Info("Preload scan finished.", "started", started, "skipped", skipped, "failed_to_start", len(errs))
	c.release("")
	return errors.Join(errs...)
}

// release drops one outstanding slot and fires completion on the
// zero-crossing only.
func (c *Coordinator) release(name string) {
	n := c.pending.Add(-1)
	switch {
	case n > 0:
		if name != "" {
			c.logger.Debug("Asset loaded.", "asset", name, "remaining", n)
		}
	case n == 0:
		c.state.Store(int32(Completed))
		if c.completed.Fire(struct{}{}) {
			c.logger.Info("Preload completed.")
		}
	default:
		c.logger.Warn("Ignoring spurious load signal.", "asset", name, "pending", n)
	}
}

// Unsettled returns the started loaders that have not signalled yet.
func (c *Coordinator) Unsettled() []asset.Untyped {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []asset.Untyped
	for _, e := range c.waiting {
		if !e.signalled.Load() {
			out = append(out, e.loader)
		}
	}
	return out
}

// Wait blocks until completion or until ctx ends. On ctx expiry it returns
// a *StalledError naming the loaders still outstanding.
func (c *Coordinator) Wait(ctx context.Context) error {
	select {
	case <-c.Done():
		return nil
	case <-ctx.Done():
	}
	select {
	case <-c.Done():
		return nil
	default:
	}

	stalled := &StalledError{Cause: ctx.Err()}
	for _, l := range c.Unsettled() {
		stalled.Assets = append(stalled.Assets, Stall{Ref: l.Ref(), Ready: l.IsReady(), Err: l.Err()})
	}
	return stalled
}

// Stall describes one loader that kept a coordinator from completing.
type Stall struct {
	Ref   asset.Ref
	Ready bool
	Err   error
}

// StalledError is returned by Wait when the barrier did not complete in time.
type StalledError struct {
	Cause  error
	Assets []Stall
}

func (e *StalledError) Error() string {
	parts := make([]string, 0, len(e.Assets))
	for _, s := range e.Assets {
		switch {
		case s.Err != nil:
			parts = append(parts, fmt.Sprintf("%s (%v)", s.Ref, s.Err))
		case s.Ready:
			parts = append(parts, fmt.Sprintf("%s (settled without signal)", s.Ref))
		default:
			parts = append(parts, fmt.Sprintf("%s (still loading)", s.Ref))
		}
	}
	return fmt.Sprintf("preload stalled: %v: %d asset(s) outstanding: %s", e.Cause, len(e.Assets), strings.Join(parts, ", "))
}

func (e *StalledError) Unwrap() error { return e.Cause }
