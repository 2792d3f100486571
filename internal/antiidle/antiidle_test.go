package antiidle

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/villager-trader/internal/world"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestKeeper_Tick(t *testing.T) {
	tests := []struct {
		name      string
		command   string
		despawned bool
		wantLooks int
		wantChats []string
	}{
		{name: "look and chat", command: "/ping", wantLooks: 1, wantChats: []string{"/ping"}},
		{name: "look only", command: "", wantLooks: 1},
		{name: "not spawned", command: "/ping", despawned: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := world.NewMockWorld("bot")
			if tt.despawned {
				w.Despawn()
			}
			k := New(w, Options{Interval: time.Second, Command: tt.command}, testLogger())

			require.NoError(t, k.Tick(context.Background()))
			assert.Equal(t, tt.wantLooks, w.Looks)
			assert.Equal(t, tt.wantChats, w.Chats)
		})
	}
}

func TestKeeper_Run(t *testing.T) {
	w := world.NewMockWorld("bot")
	k := New(w, Options{Interval: 5 * time.Millisecond, Command: "/ping"}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(w.ChatLog()) >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestKeeper_TickJitterBounded(t *testing.T) {
	for _, jitter := range []float64{DefaultLookJitter, 0.05, 1.2} {
		w := world.NewMockWorld("bot")
		k := New(w, Options{Interval: time.Second, LookJitter: jitter}, testLogger())
		ctx := context.Background()

		for range 50 {
			before, err := w.Yaw(ctx)
			require.NoError(t, err)
			require.NoError(t, k.Tick(ctx))
			after, err := w.Yaw(ctx)
			require.NoError(t, err)
			assert.InDelta(t, before, after, jitter/2)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	k := New(world.NewMockWorld("bot"), Options{}, testLogger())
	assert.Equal(t, DefaultInterval, k.opts.Interval)
	assert.Equal(t, DefaultLookJitter, k.opts.LookJitter)
	assert.NotNil(t, k.opts.Rand)
}
