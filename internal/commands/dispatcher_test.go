package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/villager-trader/internal/storage"
	"github.com/jwebster45206/villager-trader/internal/world"
	"github.com/jwebster45206/villager-trader/pkg/geom"
	"github.com/jwebster45206/villager-trader/pkg/state"
)

type mockRunner struct {
	mu      sync.Mutex
	running bool
	starts  []string
	stops   []string
}

func (r *mockRunner) Start(by string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, by)
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *mockRunner) Stop(by string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops = append(r.stops, by)
	was := r.running
	r.running = false
	return was
}

func (r *mockRunner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

type failingLedger struct{ *storage.MemoryLedger }

func (*failingLedger) Totals(ctx context.Context) (map[string]int, error) {
	return nil, errors.New("redis down")
}

func (*failingLedger) Reset(ctx context.Context) error {
	return errors.New("redis down")
}

type fixture struct {
	state  *state.RunState
	runner *mockRunner
	world  *world.MockWorld
	ledger *storage.MemoryLedger
	quits  int
	d      *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		state:  state.New([]string{"Alice"}, geom.Bounds{}, nil),
		runner: &mockRunner{},
		world:  world.NewMockWorld("TraderBot"),
		ledger: storage.NewMemoryLedger(),
	}
	f.world.AddEntity(world.Entity{ID: 7, Type: "player", Name: "player", Username: "Alice", Position: geom.Position{X: 10, Y: 64, Z: -3}})
	f.world.SetSelfPosition(geom.Position{X: 1, Y: 70, Z: 2})
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	f.d = NewDispatcher(f.state, f.runner, f.world, f.ledger, func() { f.quits++ }, logger)
	return f
}

var alice = Sender{Name: "Alice"}

func TestDispatcher_UnauthorizedEveryKind(t *testing.T) {
	inputs := []string{
		"start", "stop", "setdeposit", "setrefill", "setbound1", "setbound2",
		"addwhitelist Mallory", "removewhitelist Alice", "whitelist", "status",
		"stats", "stats reset", "help", "quit", "bogus",
	}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			f := newFixture(t)
			f.world.AddEntity(world.Entity{ID: 9, Type: "player", Username: "Mallory"})
			require.NoError(t, f.ledger.RecordTrade(context.Background(), "glass", 3))
			before := f.state.Snapshot()

			reply := f.d.Handle(context.Background(), Sender{Name: "Mallory"}, input)

			assert.Equal(t, "You are not whitelisted.", reply)
			assert.Equal(t, before, f.state.Snapshot())
			assert.Empty(t, f.runner.starts)
			assert.Empty(t, f.runner.stops)
			assert.Zero(t, f.quits)
			totals, err := f.ledger.Totals(context.Background())
			require.NoError(t, err)
			assert.Equal(t, map[string]int{"glass": 3}, totals)
		})
	}
}

func TestDispatcher_StartStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, "Trading bot started.", f.d.Handle(ctx, alice, "start"))
	assert.Equal(t, "Trading bot started.", f.d.Handle(ctx, alice, "START"))
	assert.True(t, f.runner.Running())
	assert.Equal(t, []string{"Alice", "Alice"}, f.runner.starts)

	assert.Equal(t, "Trading bot stopped.", f.d.Handle(ctx, alice, "stop"))
	assert.False(t, f.runner.Running())
}

func TestDispatcher_PositionCommands(t *testing.T) {
	ctx := context.Background()
	want := geom.Position{X: 10, Y: 64, Z: -3}

	t.Run("deposit", func(t *testing.T) {
		f := newFixture(t)
		assert.Equal(t, "Deposit chest set to (10, 64, -3)", f.d.Handle(ctx, alice, "setDeposit"))
		got, ok := f.state.Deposit()
		require.True(t, ok)
		assert.Equal(t, want, got)
	})

	t.Run("refill", func(t *testing.T) {
		f := newFixture(t)
		assert.Equal(t, "Refill chest set to (10, 64, -3)", f.d.Handle(ctx, alice, "setrefill"))
		got, ok := f.state.Refill()
		require.True(t, ok)
		assert.Equal(t, want, got)
	})

	t.Run("bounds", func(t *testing.T) {
		f := newFixture(t)
		assert.Equal(t, "Bound 1 set to (10, 64, -3)", f.d.Handle(ctx, alice, "setbound1"))
		assert.False(t, f.state.Bounds().Active())
		f.world.MoveEntity(7, geom.Position{X: 20, Y: 60, Z: 5})
		assert.Equal(t, "Bound 2 set to (20, 60, 5)", f.d.Handle(ctx, alice, "setbound2"))
		b := f.state.Bounds()
		require.True(t, b.Active())
		assert.True(t, b.Contains(geom.Position{X: 15, Y: 62, Z: 0}))
	})

	t.Run("issuer not visible", func(t *testing.T) {
		f := newFixture(t)
		f.state.AddWhitelist("Bob")
		for _, input := range []string{"setdeposit", "setrefill", "setbound1", "setbound2"} {
			assert.Equal(t, "Cannot detect your position.", f.d.Handle(ctx, Sender{Name: "Bob"}, input))
		}
		_, ok := f.state.Deposit()
		assert.False(t, ok)
		_, ok = f.state.Refill()
		assert.False(t, ok)
	})

	t.Run("console uses bot position", func(t *testing.T) {
		f := newFixture(t)
		reply := f.d.Handle(ctx, Sender{Name: "console", Console: true}, "setdeposit")
		assert.Equal(t, "Deposit chest set to (1, 70, 2)", reply)
	})
}

func TestDispatcher_Whitelist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, "Bob added to whitelist.", f.d.Handle(ctx, alice, "addwhitelist Bob"))
	assert.Equal(t, "Bob is already whitelisted.", f.d.Handle(ctx, alice, "addwhitelist Bob"))
	assert.Equal(t, "Whitelist: Alice, Bob", f.d.Handle(ctx, alice, "whitelist"))
	assert.Equal(t, "Usage: addWhitelist <name>", f.d.Handle(ctx, alice, "addwhitelist"))

	assert.Equal(t, "Bob removed from whitelist.", f.d.Handle(ctx, alice, "removeWhitelist Bob"))
	assert.False(t, f.state.IsWhitelisted("Bob"))

	assert.Equal(t, "Alice removed from whitelist.", f.d.Handle(ctx, alice, "removewhitelist Alice"))
	assert.Equal(t, "You are not whitelisted.", f.d.Handle(ctx, alice, "whitelist"))
	assert.Equal(t, "Whitelist: None", f.d.Handle(ctx, Sender{Name: "console", Console: true}, "whitelist"))
}

func TestDispatcher_Status(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, "Bot is idle. Deposit: unset, Refill: unset, Bounds: none", f.d.Handle(ctx, alice, "status"))

	f.state.Begin()
	f.state.SetDeposit(geom.Position{X: 1, Y: 2, Z: 3})
	assert.Contains(t, f.d.Handle(ctx, alice, "status"), "Bot is trading. Deposit: (1, 2, 3)")
}

func TestDispatcher_Stats(t *testing.T) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		f := newFixture(t)
		assert.Equal(t, "No trades yet.", f.d.Handle(ctx, alice, "stats"))
	})

	t.Run("sorted totals", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.ledger.RecordTrade(ctx, "glass", 4))
		require.NoError(t, f.ledger.RecordTrade(ctx, "experience_bottle", 2))
		require.NoError(t, f.ledger.RecordTrade(ctx, "glass", 1))
		assert.Equal(t, "Traded: experience_bottle x2, glass x5", f.d.Handle(ctx, alice, "stats"))
	})

	t.Run("ledger error", func(t *testing.T) {
		f := newFixture(t)
		f.d.ledger = &failingLedger{storage.NewMemoryLedger()}
		assert.Equal(t, "Trade stats unavailable.", f.d.Handle(ctx, alice, "stats"))
		assert.Equal(t, "Trade stats unavailable.", f.d.Handle(ctx, alice, "stats reset"))
	})

	t.Run("reset", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.ledger.RecordTrade(ctx, "glass", 4))
		assert.Equal(t, "Trade stats reset.", f.d.Handle(ctx, alice, "stats RESET"))
		assert.Equal(t, "No trades yet.", f.d.Handle(ctx, alice, "stats"))
	})
}

func TestDispatcher_HelpAndUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	help := f.d.Handle(ctx, alice, "help")
	assert.Contains(t, help, "setDeposit")
	assert.NotContains(t, help, "quit")
	assert.Contains(t, f.d.Handle(ctx, Sender{Name: "console", Console: true}, "help"), "quit")

	assert.Equal(t, "Unknown command. Use /msg TraderBot help", f.d.Handle(ctx, alice, "dance"))
	assert.Equal(t, "Unknown command. Use /msg TraderBot help", f.d.Handle(ctx, alice, ""))
}

func TestDispatcher_Quit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.runner.running = true

	assert.Equal(t, "quit is only available from the console.", f.d.Handle(ctx, alice, "quit"))
	assert.Zero(t, f.quits)
	assert.True(t, f.runner.Running())

	assert.Equal(t, "Shutting down.", f.d.Handle(ctx, Sender{Name: "console", Console: true}, "quit"))
	assert.Equal(t, 1, f.quits)
	assert.False(t, f.runner.Running())
}

func TestDispatcher_Serve(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan world.Whisper, 4)
	done := make(chan error, 1)
	go func() { done <- f.d.Serve(ctx, ch) }()

	ch <- world.Whisper{From: "TraderBot", Message: "start"}
	ch <- world.Whisper{From: "Alice", Message: "status"}
	ch <- world.Whisper{From: "Mallory", Message: "start"}

	assert.Eventually(t, func() bool { return len(f.world.WhisperLog()) == 2 }, time.Second, 5*time.Millisecond)
	log := f.world.WhisperLog()
	assert.Equal(t, "Alice", log[0].From)
	assert.Contains(t, log[0].Message, "Bot is idle.")
	assert.Equal(t, world.Whisper{From: "Mallory", Message: "You are not whitelisted."}, log[1])
	assert.Empty(t, f.runner.starts)

	close(ch)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after channel close")
	}
}
