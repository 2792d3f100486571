package controller

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/villager-trader/internal/services/events"
	"github.com/jwebster45206/villager-trader/pkg/geom"
	"github.com/jwebster45206/villager-trader/pkg/state"
)

// fakeCycle mimics the worker loop: it spins on Continue and records how many
// instances are inside a loop iteration at once.
type fakeCycle struct {
	state   *state.RunState
	active  atomic.Int32
	peak    atomic.Int32
	started atomic.Int32
	wakes   atomic.Int32
}

func (f *fakeCycle) Run(ctx context.Context) {
	f.started.Add(1)
	for {
		if ctx.Err() != nil {
			f.state.Release()
			return
		}
		if !f.state.Continue() {
			return
		}
		n := f.active.Add(1)
		for {
			p := f.peak.Load()
			if n <= p || f.peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		f.active.Add(-1)
	}
}

func (f *fakeCycle) Wake() { f.wakes.Add(1) }

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func newController(t *testing.T) (*Controller, *fakeCycle, *recordingEmitter, context.CancelFunc) {
	t.Helper()
	st := state.New(nil, geom.Bounds{}, nil)
	cycle := &fakeCycle{state: st}
	em := &recordingEmitter{}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx, cancel := context.WithCancel(context.Background())
	return New(ctx, st, cycle, em, nil, logger), cycle, em, cancel
}

func TestController_StartTwiceRunsOneCycle(t *testing.T) {
	c, cycle, em, cancel := newController(t)
	defer cancel()

	assert.True(t, c.Start("alice"))
	assert.False(t, c.Start("alice"))

	assert.Eventually(t, func() bool { return cycle.started.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), cycle.started.Load())
	assert.Equal(t, int32(1), cycle.peak.Load())
	assert.True(t, c.Running())

	em.mu.Lock()
	assert.Len(t, em.events, 1, "only the real transition is reported")
	em.mu.Unlock()

	require.True(t, c.Stop("alice"))
	c.Wait()
}

func TestController_StopIsIdempotent(t *testing.T) {
	c, cycle, _, cancel := newController(t)
	defer cancel()

	assert.False(t, c.Stop("bob"))
	assert.Equal(t, int32(0), cycle.wakes.Load())

	c.Start("bob")
	assert.True(t, c.Stop("bob"))
	assert.False(t, c.Stop("bob"))
	assert.Equal(t, int32(1), cycle.wakes.Load())
	c.Wait()
	assert.False(t, c.Running())
}

func TestController_RapidRestartNeverOverlaps(t *testing.T) {
	c, cycle, _, cancel := newController(t)
	defer cancel()

	for i := 0; i < 100; i++ {
		c.Start("alice")
		c.Stop("alice")
	}
	c.Start("alice")

	assert.Eventually(t, func() bool { return cycle.peak.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), cycle.peak.Load())

	c.Stop("alice")
	c.Wait()
	assert.Equal(t, int32(0), cycle.active.Load())
}

func TestController_ShutdownReleasesCycle(t *testing.T) {
	c, cycle, _, cancel := newController(t)

	c.Start("console")
	cancel()
	c.Wait()

	assert.Equal(t, int32(0), cycle.active.Load())
	assert.True(t, c.Running(), "shutdown does not flip the run flag")
}
