package container

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/villager-trader/internal/world"
	"github.com/jwebster45206/villager-trader/pkg/geom"
	"github.com/jwebster45206/villager-trader/pkg/trade"
)

var chest = geom.Position{X: 5, Y: 64, Z: 5}

func newInteractor(w world.World) *Interactor {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewInteractor(w, Options{}, nil, nil, logger)
}

func TestWithdrawAmount(t *testing.T) {
	tests := []struct {
		name                  string
		held, available, high int
		want                  int
	}{
		{"tops up to high water mark", 60, 100, 64, 4},
		{"limited by container", 0, 10, 64, 10},
		{"already above high", 70, 100, 64, 0},
		{"empty container", 3, 0, 64, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WithdrawAmount(tt.held, tt.available, tt.high))
		})
	}
}

func TestDeposit_MovesMatchingStacks(t *testing.T) {
	w := world.NewMockWorld("trader")
	w.PlaceContainer(chest)
	w.Give("emerald", 20)
	w.Give("experience_bottle", 7)
	w.Give("white_stained_glass", 3)

	summary, err := newInteractor(w).Deposit(context.Background(), chest, trade.NewMatcher(nil))

	require.NoError(t, err)
	assert.Equal(t, 10, summary.Total())
	assert.Equal(t, 0, w.Held("experience_bottle"))
	assert.Equal(t, 0, w.Held("white_stained_glass"))
	assert.Equal(t, 20, w.Held("emerald"))
	assert.Equal(t, 7, w.ContainerCount(chest, "experience_bottle"))
	assert.Equal(t, []geom.Position{chest}, w.GotoCalls)
	assert.Equal(t, w.OpenedWindows, w.ClosedWindows)
}

func TestDeposit_NoContainer(t *testing.T) {
	w := world.NewMockWorld("trader")
	w.Give("glass", 1)

	_, err := newInteractor(w).Deposit(context.Background(), chest, trade.NewMatcher(nil))

	require.ErrorIs(t, err, ErrNoContainer)
	assert.Equal(t, 1, w.Held("glass"))
}

func TestDeposit_Unreachable(t *testing.T) {
	w := world.NewMockWorld("trader")
	w.PlaceContainer(chest)
	w.GotoFunc = func(ctx context.Context, target geom.Position, radius float64) error {
		return world.ErrUnreachable
	}

	_, err := newInteractor(w).Deposit(context.Background(), chest, trade.NewMatcher(nil))

	require.ErrorIs(t, err, ErrNoContainer)
	assert.True(t, errors.Is(err, world.ErrUnreachable))
	assert.Equal(t, 0, w.OpenedWindows)
}

func TestRefill(t *testing.T) {
	tests := []struct {
		name          string
		held          int
		inContainer   int
		wantOutcome   RefillOutcome
		wantWithdrawn int
		wantHeld      int
	}{
		{"above low water mark", 60, 100, RefillAlreadySufficient, 0, 60},
		{"below low water mark", 10, 100, RefillWithdrawn, 54, 64},
		{"container short", 0, 30, RefillWithdrawn, 30, 30},
		{"sufficient", 18, 100, RefillAlreadySufficient, 0, 18},
		{"no currency in container", 2, 0, RefillNotFound, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := world.NewMockWorld("trader")
			w.PlaceContainer(chest, trade.ItemStack{Kind: "emerald", Count: tt.inContainer})
			w.Give("emerald", tt.held)

			summary, err := newInteractor(w).Refill(context.Background(), chest, "emerald", 16, 64)

			require.NoError(t, err)
			assert.Equal(t, tt.wantOutcome, summary.Outcome)
			assert.Equal(t, tt.wantWithdrawn, summary.Withdrawn)
			assert.Equal(t, tt.wantHeld, w.Held("emerald"))
			assert.LessOrEqual(t, w.Held("emerald"), 64)
		})
	}
}

func TestRefill_HighWaterMarkWithLowThresholdAbove(t *testing.T) {
	w := world.NewMockWorld("trader")
	w.PlaceContainer(chest, trade.ItemStack{Kind: "emerald", Count: 100})
	w.Give("emerald", 60)

	summary, err := newInteractor(w).Refill(context.Background(), chest, "emerald", 64, 64)

	require.NoError(t, err)
	assert.Equal(t, 4, summary.Withdrawn)
	assert.Equal(t, 64, w.Held("emerald"))
}

func TestRefill_SufficientSkipsContainer(t *testing.T) {
	w := world.NewMockWorld("trader")
	w.Give("emerald", 18)

	summary, err := newInteractor(w).Refill(context.Background(), chest, "emerald", 16, 64)

	require.NoError(t, err)
	assert.Equal(t, RefillAlreadySufficient, summary.Outcome)
	assert.Empty(t, w.GotoCalls)
}
