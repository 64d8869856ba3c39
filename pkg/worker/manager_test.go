package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arcline/maestro/pkg/errs"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeRunner struct {
	starts   atomic.Int64
	stops    atomic.Int64
	startErr error
	gate     chan struct{}
}

func (r *fakeRunner) Start() error {
	if r.gate != nil {
		<-r.gate
	}
	r.starts.Add(1)
	return r.startErr
}

func (r *fakeRunner) Stop() { r.stops.Add(1) }

type fakeFactory struct {
	mu      sync.Mutex
	runners map[string]*fakeRunner
	builds  atomic.Int64
	err     error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{runners: map[string]*fakeRunner{}}
}

func (f *fakeFactory) NewWorker(taskQueue string) (Runner, error) {
	f.builds.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runners[taskQueue]
	if !ok {
		r = &fakeRunner{}
		f.runners[taskQueue] = r
	}
	return r, nil
}

func (f *fakeFactory) runner(taskQueue string) *fakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runners[taskQueue]
}

func register(t *testing.T, m *Manager, queue string) {
	t.Helper()
	require.NoError(t, m.Register(Config{TaskQueue: queue, Namespace: "test"}))
}

func TestRegisterValidatesConfig(t *testing.T) {
	m := NewManager(newFakeFactory(), zaptest.NewLogger(t), false)

	require.True(t, errs.IsValidation(m.Register(Config{Namespace: "test"})))
	require.True(t, errs.IsValidation(m.Register(Config{TaskQueue: "orders"})))

	require.NoError(t, m.Register(Config{TaskQueue: "orders", Namespace: "test"}))
	require.True(t, errs.IsValidation(m.Register(Config{TaskQueue: "orders", Namespace: "test"})))
}

func TestStartStopLifecycle(t *testing.T) {
	factory := newFakeFactory()
	m := NewManager(factory, zaptest.NewLogger(t), false)
	register(t, m, "orders")
	ctx := context.Background()

	st, err := m.Status("orders")
	require.NoError(t, err)
	require.Equal(t, StateUninitialized, st.State)
	require.False(t, st.IsInitialized)

	require.NoError(t, m.Start(ctx, "orders"))
	st, _ = m.Status("orders")
	require.Equal(t, StateRunning, st.State)
	require.True(t, st.IsInitialized)
	require.True(t, st.IsRunning)
	require.False(t, st.StartedAt.IsZero())

	// starting again is a no-op
	require.NoError(t, m.Start(ctx, "orders"))
	require.EqualValues(t, 1, factory.runner("orders").starts.Load())

	require.NoError(t, m.Stop(ctx, "orders"))
	st, _ = m.Status("orders")
	require.Equal(t, StateStopped, st.State)
	require.True(t, st.IsInitialized, "initialization survives stop")
	require.False(t, st.IsRunning)

	// stopping again is a no-op, not an error
	require.NoError(t, m.Stop(ctx, "orders"))
	require.EqualValues(t, 1, factory.runner("orders").stops.Load())
}

func TestStartFailurePropagatesWhenNotAllowed(t *testing.T) {
	factory := newFakeFactory()
	factory.err = errors.New("no connection")
	m := NewManager(factory, zaptest.NewLogger(t), false)
	register(t, m, "orders")

	err := m.Start(context.Background(), "orders")
	require.Error(t, err)
	var initErr *errs.InitializationError
	require.ErrorAs(t, err, &initErr)

	st, _ := m.Status("orders")
	require.Equal(t, StateError, st.State)
	require.Contains(t, st.LastError, "no connection")
}

func TestStartFailureRecordedWhenAllowed(t *testing.T) {
	factory := newFakeFactory()
	factory.err = errors.New("no connection")
	m := NewManager(factory, zaptest.NewLogger(t), true)
	register(t, m, "orders")

	require.NoError(t, m.Start(context.Background(), "orders"))

	st, _ := m.Status("orders")
	require.Equal(t, StateError, st.State)
	require.False(t, st.IsRunning)
	require.Contains(t, st.LastError, "no connection")
}

func TestConcurrentRestartIsSingleFlight(t *testing.T) {
	factory := newFakeFactory()
	factory.runners["orders"] = &fakeRunner{}
	m := NewManager(factory, zaptest.NewLogger(t), false)
	register(t, m, "orders")
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, "orders"))
	runner := factory.runner("orders")
	startsBefore := runner.starts.Load()
	stopsBefore := runner.stops.Load()

	// hold the in-flight restart open until every caller has joined it
	gate := make(chan struct{})
	runner.gate = gate

	const callers = 8
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = m.Restart(ctx, "orders")
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for _, err := range results {
		require.NoError(t, err)
	}
	require.EqualValues(t, startsBefore+1, runner.starts.Load(), "exactly one start per collapsed restart")
	require.EqualValues(t, stopsBefore+1, runner.stops.Load(), "exactly one stop per collapsed restart")

	st, _ := m.Status("orders")
	require.True(t, st.IsRunning)
}

func TestPerQueueIsolation(t *testing.T) {
	factory := newFakeFactory()
	m := NewManager(factory, zaptest.NewLogger(t), false)
	register(t, m, "orders")
	register(t, m, "billing")
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, "orders"))
	require.NoError(t, m.Start(ctx, "billing"))

	require.NoError(t, m.Restart(ctx, "orders"))

	billing := factory.runner("billing")
	require.EqualValues(t, 1, billing.starts.Load())
	require.EqualValues(t, 0, billing.stops.Load())

	st, _ := m.Status("billing")
	require.True(t, st.IsRunning)
}

func TestSetHealthyIsIndependentOfRunning(t *testing.T) {
	factory := newFakeFactory()
	m := NewManager(factory, zaptest.NewLogger(t), false)
	register(t, m, "orders")
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, "orders"))
	m.SetHealthy("orders", false, "heartbeat missed")

	st, _ := m.Status("orders")
	require.True(t, st.IsRunning)
	require.False(t, st.IsHealthy)
	require.Contains(t, st.LastError, "heartbeat missed")
}

func TestUnknownQueueReturnsNotFound(t *testing.T) {
	m := NewManager(newFakeFactory(), zaptest.NewLogger(t), false)
	ctx := context.Background()

	require.True(t, errs.IsNotFound(m.Start(ctx, "ghost")))
	require.True(t, errs.IsNotFound(m.Stop(ctx, "ghost")))
	require.True(t, errs.IsNotFound(m.Restart(ctx, "ghost")))
	_, err := m.Status("ghost")
	require.True(t, errs.IsNotFound(err))
}

func TestAllStatuses(t *testing.T) {
	m := NewManager(newFakeFactory(), zaptest.NewLogger(t), false)
	register(t, m, "orders")
	register(t, m, "billing")

	statuses := m.AllStatuses()
	require.Len(t, statuses, 2)
	require.Equal(t, "orders", statuses["orders"].TaskQueue)
	require.Equal(t, 2, m.Count())
}
