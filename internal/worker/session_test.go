package worker

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

	"github.com/jwebster45206/villager-trader/internal/container"
	"github.com/jwebster45206/villager-trader/internal/services/events"
	"github.com/jwebster45206/villager-trader/internal/storage"
	"github.com/jwebster45206/villager-trader/internal/world"
	"github.com/jwebster45206/villager-trader/pkg/geom"
	"github.com/jwebster45206/villager-trader/pkg/state"
	"github.com/jwebster45206/villager-trader/pkg/trade"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testOptions() Options {
	return Options{
		MoveTimeout:      50 * time.Millisecond,
		VillagerDelay:    time.Millisecond,
		EmptyScanWait:    time.Millisecond,
		CycleWait:        time.Millisecond,
		ErrorBackoff:     time.Millisecond,
		NotSpawnedWait:   time.Millisecond,
		GoalRadius:       2,
		InteractionRange: 4,
		Currency:         "emerald",
		RefillLow:        16,
		RefillHigh:       64,
	}
}

type fixture struct {
	world   *world.MockWorld
	state   *state.RunState
	ledger  *storage.MemoryLedger
	emitter *recordingEmitter
	trader  *Trader
}

func newFixture(t *testing.T, bounds geom.Bounds) *fixture {
	t.Helper()
	f := &fixture{
		world:   world.NewMockWorld("trader"),
		state:   state.New([]string{"alice"}, bounds, nil),
		ledger:  storage.NewMemoryLedger(),
		emitter: &recordingEmitter{},
	}
	containers := container.NewInteractor(f.world, container.Options{MoveTimeout: 50 * time.Millisecond}, f.emitter, nil, testLogger())
	f.trader = NewTrader(f.world, f.state, containers, f.ledger, f.emitter, nil, testOptions(), testLogger())
	return f
}

func villagerAt(t *testing.T, w *world.MockWorld, id int) world.Entity {
	t.Helper()
	e, err := w.Entity(context.Background(), id)
	require.NoError(t, err)
	return e
}

func bottleOffer(cost int) trade.Offer {
	return trade.Offer{
		Input:  trade.ItemStack{Kind: "emerald", Count: cost},
		Output: trade.ItemStack{Kind: "experience_bottle", Count: 1},
	}
}

func TestTradeWith_EndToEnd(t *testing.T) {
	bounds := geom.Bounds{Corner1: &geom.Position{X: 0, Y: 0, Z: 0}, Corner2: &geom.Position{X: 20, Y: 100, Z: 20}}
	f := newFixture(t, bounds)
	deposit := geom.Position{X: 2, Y: 64, Z: 2}
	f.world.PlaceContainer(deposit)
	f.state.SetDeposit(deposit)
	f.world.Give("emerald", 10)
	f.world.AddVillager(1, geom.Position{X: 10, Y: 64, Z: 10}, bottleOffer(5))

	v := villagerAt(t, f.world, 1)
	require.True(t, f.state.Bounds().Contains(v.Position))

	res := f.trader.TradeWith(context.Background(), v)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeTraded, res.Outcome)
	require.Len(t, res.Executed, 1)
	assert.Equal(t, 5, res.Balance)
	assert.Equal(t, 5, f.world.Held("emerald"))

	require.NotNil(t, res.Deposit)
	assert.Equal(t, 1, res.Deposit.Total())
	assert.Equal(t, 0, f.world.Held("experience_bottle"))
	assert.Equal(t, 1, f.world.ContainerCount(deposit, "experience_bottle"))
	assert.Equal(t, f.world.OpenedWindows, f.world.ClosedWindows)

	trades := f.emitter.ofType(events.EventTypeTradeCompleted)
	require.Len(t, trades, 1)
	assert.Equal(t, res.ID, trades[0].SessionID)
	assert.Len(t, f.emitter.ofType(events.EventTypeInventoryChanged), 1)

	totals, err := f.ledger.Totals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"experience_bottle": 1}, totals)
}

func TestTradeWith_MovementTimeout(t *testing.T) {
	f := newFixture(t, geom.Bounds{})
	f.world.Give("emerald", 10)
	f.world.AddVillager(1, geom.Position{X: 10, Y: 64, Z: 10}, bottleOffer(5))
	f.world.GotoFunc = func(ctx context.Context, target geom.Position, radius float64) error {
		<-ctx.Done()
		return ctx.Err()
	}

	start := time.Now()
	res := f.trader.TradeWith(context.Background(), villagerAt(t, f.world, 1))

	assert.Equal(t, OutcomeUnreachable, res.Outcome)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, f.world.OpenedWindows)
	assert.Equal(t, 1, f.world.GotoCount(), "no retry within the session")
	assert.Len(t, f.emitter.ofType(events.EventTypeError), 1)
}

func TestTradeWith_VillagerWanderedOff(t *testing.T) {
	f := newFixture(t, geom.Bounds{})
	f.world.Give("emerald", 10)
	f.world.AddVillager(1, geom.Position{X: 10, Y: 64, Z: 10}, bottleOffer(5))
	f.world.GotoFunc = func(ctx context.Context, target geom.Position, radius float64) error {
		f.world.MoveEntity(1, geom.Position{X: 30, Y: 64, Z: 30})
		return nil
	}

	res := f.trader.TradeWith(context.Background(), villagerAt(t, f.world, 1))

	assert.Equal(t, OutcomeOutOfRange, res.Outcome)
	assert.Equal(t, 0, f.world.OpenedWindows)
	assert.Equal(t, 0, f.world.TradeCount())
}

func TestTradeWith_VillagerDespawned(t *testing.T) {
	f := newFixture(t, geom.Bounds{})
	f.world.AddVillager(1, geom.Position{X: 10, Y: 64, Z: 10}, bottleOffer(5))
	v := villagerAt(t, f.world, 1)
	f.world.RemoveEntity(1)

	res := f.trader.TradeWith(context.Background(), v)

	assert.Equal(t, OutcomeOutOfRange, res.Outcome)
}

func TestTradeWith_WindowUnavailable(t *testing.T) {
	f := newFixture(t, geom.Bounds{})
	f.world.AddVillager(1, geom.Position{X: 10, Y: 64, Z: 10}, bottleOffer(5))
	f.world.OpenVillagerFunc = func(ctx context.Context, entityID int) (world.TradeWindow, error) {
		return nil, nil
	}

	res := f.trader.TradeWith(context.Background(), villagerAt(t, f.world, 1))

	assert.Equal(t, OutcomeWindowUnavailable, res.Outcome)
	assert.ErrorIs(t, res.Err, world.ErrWindowUnavailable)
}

func TestTradeWith_TradeFailureContinues(t *testing.T) {
	f := newFixture(t, geom.Bounds{})
	f.world.Give("emerald", 20)
	f.world.AddVillager(1, geom.Position{X: 10, Y: 64, Z: 10}, bottleOffer(5), bottleOffer(5))
	f.world.TradeFunc = func(ctx context.Context, entityID, index int) error {
		if index == 0 {
			return errors.New("trade rejected")
		}
		return nil
	}

	res := f.trader.TradeWith(context.Background(), villagerAt(t, f.world, 1))

	assert.Equal(t, OutcomeTraded, res.Outcome)
	require.Len(t, res.Failed, 1)
	require.Len(t, res.Executed, 1)
	assert.Equal(t, 1, res.Executed[0].Index)
	assert.Equal(t, 1, f.world.ClosedWindows, "window closed after partial failure")
}

func TestTradeWith_LiveBalanceRecheck(t *testing.T) {
	f := newFixture(t, geom.Bounds{})
	f.world.Give("emerald", 10)
	f.world.AddVillager(1, geom.Position{X: 10, Y: 64, Z: 10}, bottleOffer(5), bottleOffer(5))
	f.world.TradeFunc = func(ctx context.Context, entityID, index int) error {
		// Something else spends currency between trades.
		f.world.Give("emerald", -3)
		return nil
	}

	res := f.trader.TradeWith(context.Background(), villagerAt(t, f.world, 1))

	assert.Len(t, res.Executed, 1)
	assert.Equal(t, 1, f.world.TradeCount())
	assert.Equal(t, 2, res.Balance)
}

func TestTradeWith_NoOffers(t *testing.T) {
	f := newFixture(t, geom.Bounds{})
	deposit := geom.Position{X: 2, Y: 64, Z: 2}
	f.world.PlaceContainer(deposit)
	f.state.SetDeposit(deposit)
	f.world.AddVillager(1, geom.Position{X: 10, Y: 64, Z: 10})

	res := f.trader.TradeWith(context.Background(), villagerAt(t, f.world, 1))

	assert.Equal(t, OutcomeNoTrades, res.Outcome)
	assert.Nil(t, res.Deposit, "nothing traded, nothing deposited")
	assert.Equal(t, 1, f.world.ClosedWindows)
}

func TestTradeWith_RefillAfterTrading(t *testing.T) {
	f := newFixture(t, geom.Bounds{})
	refill := geom.Position{X: -2, Y: 64, Z: -2}
	f.world.PlaceContainer(refill, trade.ItemStack{Kind: "emerald", Count: 200})
	f.state.SetRefill(refill)
	f.world.Give("emerald", 20)
	f.world.AddVillager(1, geom.Position{X: 10, Y: 64, Z: 10}, bottleOffer(5), bottleOffer(5))

	res := f.trader.TradeWith(context.Background(), villagerAt(t, f.world, 1))

	require.NotNil(t, res.Refill)
	assert.Equal(t, container.RefillWithdrawn, res.Refill.Outcome)
	assert.Equal(t, 54, res.Refill.Withdrawn)
	assert.Equal(t, 64, f.world.Held("emerald"))
}

func TestTradeWith_RecoversPanic(t *testing.T) {
	f := newFixture(t, geom.Bounds{})
	f.world.AddVillager(1, geom.Position{X: 10, Y: 64, Z: 10}, bottleOffer(5))
	f.world.OpenVillagerFunc = func(ctx context.Context, entityID int) (world.TradeWindow, error) {
		panic("bridge exploded")
	}

	res := f.trader.TradeWith(context.Background(), villagerAt(t, f.world, 1))

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Error(t, res.Err)
}
