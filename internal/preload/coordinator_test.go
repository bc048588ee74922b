package preload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/specialistvlad/assetgrid/internal/asset"
	"github.com/specialistvlad/assetgrid/internal/ctxlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLoader is a hand-driven asset.Untyped. Tests decide when, and how
// often, it signals.
type fakeLoader struct {
	ref         asset.Ref
	ready       atomic.Bool
	startCalls  atomic.Int32
	startErr    error
	fireOnStart bool

	mu   sync.Mutex
	subs map[int]func()
	next int
}

func newFake(key string) *fakeLoader {
	return &fakeLoader{ref: asset.Blob(key), subs: map[int]func(){}}
}

func (f *fakeLoader) Ref() asset.Ref { return f.ref }
func (f *fakeLoader) IsReady() bool  { return f.ready.Load() }
func (f *fakeLoader) Err() error     { return nil }
func (f *fakeLoader) Dispose()       {}

func (f *fakeLoader) Start(context.Context) error {
	f.startCalls.Add(1)
	if f.fireOnStart {
		f.emit()
	}
	return f.startErr
}

func (f *fakeLoader) OnLoaded(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// emit settles the loader and notifies every subscriber, as many times as
// it is called.
func (f *fakeLoader) emit() {
	f.ready.Store(true)
	f.mu.Lock()
	subs := make([]func(), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func testCtx() context.Context {
	return ctxlog.WithLogger(context.Background(), ctxlog.Discard())
}

func completedCounter(c *Coordinator) *atomic.Int32 {
	var n atomic.Int32
	c.OnCompleted(func() { n.Add(1) })
	return &n
}

func TestCoordinator_NoLoadersCompletesSynchronously(t *testing.T) {
	c := New()
	fired := completedCounter(c)

	require.NoError(t, c.Start(testCtx()))

	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, Completed, c.State())
	assert.Equal(t, 0, c.Pending())
}

func TestCoordinator_AllReadyCompletesWithoutStarting(t *testing.T) {
	c := New()
	loaders := []*fakeLoader{newFake("a"), newFake("b"), newFake("c")}
	for _, l := range loaders {
		l.ready.Store(true)
		require.NoError(t, c.Register(l))
	}
	fired := completedCounter(c)

	require.NoError(t, c.Start(testCtx()))

	assert.Equal(t, int32(1), fired.Load())
	for _, l := range loaders {
		assert.Zero(t, l.startCalls.Load(), "ready loader %s must not be started", l.ref)
	}
}

func permutations(items []int) [][]int {
	if len(items) <= 1 {
		return [][]int{append([]int(nil), items...)}
	}
	var out [][]int
	for i := range items {
		rest := make([]int, 0, len(items)-1)
		rest = append(rest, items[:i]...)
		rest = append(rest, items[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]int{items[i]}, p...))
		}
	}
	return out
}

func TestCoordinator_FanInCountIsOrderIndependent(t *testing.T) {
	// Five loaders, two already ready: completion needs exactly three signals.
	notReady := []int{0, 2, 4}
	for _, order := range permutations(notReady) {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			c := New()
			loaders := make([]*fakeLoader, 5)
			for i := range loaders {
				loaders[i] = newFake(fmt.Sprintf("asset-%d", i))
				require.NoError(t, c.Register(loaders[i]))
			}
			loaders[1].ready.Store(true)
			loaders[3].ready.Store(true)
			fired := completedCounter(c)

			require.NoError(t, c.Start(testCtx()))
			assert.Equal(t, 3, c.Pending())

			for i, idx := range order {
				assert.Zero(t, fired.Load(), "completed after only %d signals", i)
				loaders[idx].emit()
			}
			assert.Equal(t, int32(1), fired.Load())
			assert.Equal(t, Completed, c.State())
			assert.Empty(t, c.Unsettled())
		})
	}
}

func TestCoordinator_OutOfOrderCompletion(t *testing.T) {
	c := New()
	loaders := []*fakeLoader{newFake("0"), newFake("1"), newFake("2")}
	for _, l := range loaders {
		require.NoError(t, c.Register(l))
	}
	fired := completedCounter(c)
	require.NoError(t, c.Start(testCtx()))

	loaders[2].emit()
	assert.Zero(t, fired.Load())
	loaders[0].emit()
	assert.Zero(t, fired.Load())
	require.Len(t, c.Unsettled(), 1)
	assert.Equal(t, loaders[1].ref, c.Unsettled()[0].Ref())

	loaders[1].emit()
	assert.Equal(t, int32(1), fired.Load())
}

func TestCoordinator_FiresExactlyOnceOnSpuriousSignals(t *testing.T) {
	c := New()
	a, b := newFake("a"), newFake("b")
	require.NoError(t, c.Register(a))
	require.NoError(t, c.Register(b))
	fired := completedCounter(c)
	require.NoError(t, c.Start(testCtx()))

	a.emit()
	a.emit()
	assert.Zero(t, fired.Load(), "repeated signals from one loader must count once")

	b.emit()
	b.emit()
	a.emit()
	assert.Equal(t, int32(1), fired.Load())

	// A raw extra release below zero is ignored as well.
	c.release("spurious")
	assert.Equal(t, int32(1), fired.Load())
}

func TestCoordinator_SignalDuringScanDoesNotCompleteEarly(t *testing.T) {
	c := New()
	eager, slow := newFake("eager"), newFake("slow")
	eager.fireOnStart = true
	require.NoError(t, c.Register(eager))
	require.NoError(t, c.Register(slow))
	fired := completedCounter(c)

	require.NoError(t, c.Start(testCtx()))
	assert.Zero(t, fired.Load())
	assert.Equal(t, 1, c.Pending())

	slow.emit()
	assert.Equal(t, int32(1), fired.Load())
}

func TestCoordinator_StartIsOneShot(t *testing.T) {
	c := New()
	l := newFake("a")
	require.NoError(t, c.Register(l))
	require.NoError(t, c.Start(testCtx()))

	assert.ErrorIs(t, c.Start(testCtx()), ErrAlreadyStarted)
	assert.ErrorIs(t, c.Register(newFake("late")), ErrStarted)
	assert.Equal(t, int32(1), l.startCalls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCoordinator_LoaderRefusingToStartIsNotCounted(t *testing.T) {
	// --- Arrange ---
	c := New()
	bad := newFake("bad")
	bad.startErr = asset.ErrDisposed
	good := newFake("good")
	require.NoError(t, c.Register(bad))
	require.NoError(t, c.Register(good))
	fired := completedCounter(c)

	// --- Act ---
	err := c.Start(testCtx())

	// --- Assert ---
	require.ErrorIs(t, err, asset.ErrDisposed)
	assert.Contains(t, err.Error(), "blob:bad")
	assert.Zero(t, fired.Load())
	assert.Equal(t, 1, c.Pending())

	good.emit()
	assert.Equal(t, int32(1), fired.Load())
}

func TestCoordinator_InFlightLoaderIsAwaited(t *testing.T) {
	// --- Arrange ---
	c := New()
	busy := newFake("busy")
	busy.startErr = asset.ErrAlreadyStarted
	require.NoError(t, c.Register(busy))
	fired := completedCounter(c)

	// --- Act ---
	err := c.Start(testCtx())

	// --- Assert ---
	require.NoError(t, err, "a loader fetching for someone else is not a refusal")
	assert.Zero(t, fired.Load())
	assert.Equal(t, Waiting, c.State())
	assert.Equal(t, 1, c.Pending())
	require.Len(t, c.Unsettled(), 1)

	busy.emit()
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, Completed, c.State())
}

func TestCoordinator_SignalBeforeStartErrorIsCountedOnce(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "already started", err: asset.ErrAlreadyStarted},
		{name: "refused", err: errors.New("boom"), wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			c := New()
			racy := newFake("racy")
			racy.fireOnStart = true
			racy.startErr = tc.err
			require.NoError(t, c.Register(racy))
			fired := completedCounter(c)

			// --- Act ---
			err := c.Start(testCtx())

			// --- Assert ---
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, int32(1), fired.Load())
			assert.Equal(t, Completed, c.State())
			assert.Equal(t, int32(0), c.pending.Load())
		})
	}
}

func TestCoordinator_SharedInFlightLoaderAcrossPasses(t *testing.T) {
	// --- Arrange ---
	src := &memSource{files: map[string][]byte{"shared.txt": []byte("shared")}, gate: make(chan struct{})}
	shared := asset.NewText(asset.Text("shared.txt"), src)

	first, second := New(), New()
	require.NoError(t, first.Register(shared))
	require.NoError(t, second.Register(shared))

	// --- Act ---
	require.NoError(t, first.Start(testCtx()))
	require.NoError(t, second.Start(testCtx()))

	// --- Assert ---
	assert.False(t, shared.IsReady())
	assert.Equal(t, Waiting, second.State())
	assert.Equal(t, 1, second.Pending())
	select {
	case <-second.Done():
		t.Fatal("second pass completed while its loader was still fetching")
	case <-time.After(20 * time.Millisecond):
	}

	close(src.gate)
	require.NoError(t, first.Wait(testCtxTimeout(t, 2*time.Second)))
	require.NoError(t, second.Wait(testCtxTimeout(t, 2*time.Second)))
	assert.Equal(t, int32(1), src.calls.Load(), "the shared loader must fetch once")
}

func TestCoordinator_ConcurrentSignals(t *testing.T) {
	c := New()
	const n = 100
	loaders := make([]*fakeLoader, n)
	for i := range loaders {
		loaders[i] = newFake(fmt.Sprintf("asset-%d", i))
		require.NoError(t, c.Register(loaders[i]))
	}
	fired := completedCounter(c)
	require.NoError(t, c.Start(testCtx()))

	var wg sync.WaitGroup
	for _, l := range loaders {
		wg.Add(1)
		go func(l *fakeLoader) {
			defer wg.Done()
			l.emit()
			l.emit()
		}(l)
	}
	wg.Wait()

	<-c.Done()
	assert.Equal(t, int32(1), fired.Load())
}

func TestCoordinator_SubscriberCanUnsubscribeItself(t *testing.T) {
	c := New()
	calls := 0
	var cancel func()
	cancel = c.OnCompleted(func() {
		cancel()
		calls++
	})
	require.NoError(t, c.Start(testCtx()))
	assert.Equal(t, 1, calls)
}

// memSource serves fixed contents and counts fetches.
type memSource struct {
	files map[string][]byte
	gate  chan struct{}
	calls atomic.Int32
}

func (s *memSource) Fetch(ctx context.Context, key string) ([]byte, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	b, ok := s.files[key]
	if !ok {
		return nil, fmt.Errorf("%s: not found", key)
	}
	return b, nil
}

func TestCoordinator_SharedReadyLoaderIsNotRefetched(t *testing.T) {
	warm := &memSource{files: map[string][]byte{"shared.txt": []byte("shared")}}
	shared := asset.NewText(asset.Text("shared.txt"), warm)
	require.NoError(t, shared.Start(testCtx()))
	<-shared.Done()

	cold := &memSource{files: map[string][]byte{"level.txt": []byte("level")}, gate: make(chan struct{})}
	fresh := asset.NewText(asset.Text("level.txt"), cold)

	c := New()
	require.NoError(t, c.Register(shared))
	require.NoError(t, c.Register(fresh))
	require.NoError(t, c.Start(testCtx()))

	assert.Equal(t, int32(1), warm.calls.Load(), "ready loader must not fetch again")
	assert.Equal(t, 1, c.Pending())
	select {
	case <-c.Done():
		t.Fatal("completed before the pending loader settled")
	case <-time.After(20 * time.Millisecond):
	}

	close(cold.gate)
	require.NoError(t, c.Wait(testCtxTimeout(t, 2*time.Second)))
	assert.Equal(t, int32(1), cold.calls.Load())
}

func TestCoordinator_ConversionFailureNeverCompletes(t *testing.T) {
	src := &memSource{files: map[string][]byte{"hero.hcl": []byte(`component "mesh" {}`)}}
	l := asset.NewComponent(asset.Prefab("hero.hcl").WithPart("animator"), src)

	c := New()
	require.NoError(t, c.Register(l))
	require.NoError(t, c.Start(testCtx()))

	err := c.Wait(testCtxTimeout(t, 100*time.Millisecond))
	var stalled *StalledError
	require.ErrorAs(t, err, &stalled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, stalled.Assets, 1)
	assert.Equal(t, l.Ref(), stalled.Assets[0].Ref)
	assert.True(t, stalled.Assets[0].Ready)
	assert.ErrorIs(t, stalled.Assets[0].Err, asset.ErrConversion)
	assert.Contains(t, err.Error(), "prefab:hero.hcl#animator")
	assert.NotEqual(t, Completed, c.State())
}

func testCtxTimeout(t *testing.T, d time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(testCtx(), d)
	t.Cleanup(cancel)
	return ctx
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "collecting", Collecting.String())
	assert.Equal(t, "waiting", Waiting.String())
	assert.Equal(t, "State(9)", State(9).String())
}
