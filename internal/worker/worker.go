package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/villager-trader/internal/metrics"
	"github.com/jwebster45206/villager-trader/internal/services/events"
	"github.com/jwebster45206/villager-trader/internal/world"
	"github.com/jwebster45206/villager-trader/pkg/state"
)

// Worker runs the discovery and scan cycle
type Worker struct {
	id      string
	world   world.World
	state   *state.RunState
	trader  *Trader
	emitter events.Emitter
	metrics *metrics.Metrics
	opts    Options
	log     *slog.Logger
	wake    chan struct{}
}

// New creates a new worker instance
func New(w world.World, st *state.RunState, trader *Trader, emitter events.Emitter, m *metrics.Metrics, opts Options, log *slog.Logger, workerID string) *Worker {
	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if emitter == nil {
		emitter = events.Discard{}
	}
	if m == nil {
		m = metrics.New()
	}
	return &Worker{
		id:      workerID,
		world:   w,
		state:   st,
		trader:  trader,
		emitter: emitter,
		metrics: m,
		opts:    opts.withDefaults(),
		log:     log.With("worker_id", workerID),
		wake:    make(chan struct{}, 1),
	}
}

// Run loops until the run flag is cleared or ctx ends. Only one Run may be
// active per RunState; callers obtain that right from RunState.Begin.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("Scan cycle starting")
	// A stop that landed while no cycle was waiting leaves a token behind.
	select {
	case <-w.wake:
	default:
	}

	for {
		if ctx.Err() != nil {
			w.state.Release()
			w.log.Info("Scan cycle shutting down")
			return
		}
		if !w.state.Continue() {
			w.log.Info("Scan cycle stopped")
			return
		}

		if err := w.safeTick(ctx); err != nil {
			w.log.Error("Error in scan cycle", "error", err)
			w.metrics.RecordCycleError()
			w.emitter.Emit(events.Error(err, "scan cycle"))
			// Continue processing even on error
			w.wait(ctx, w.opts.ErrorBackoff)
		}
	}
}

// Wake interrupts a timed wait so a stop is observed promptly. It never
// interrupts a villager session.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan cycle panic: %v", r)
		}
	}()
	return w.Tick(ctx)
}

// Tick performs one pass: scan, trade with every in-bounds villager, idle.
func (w *Worker) Tick(ctx context.Context) error {
	if _, err := w.world.Self(ctx); err != nil {
		w.log.Info("Bot not properly spawned, waiting", "error", err)
		w.wait(ctx, w.opts.NotSpawnedWait)
		return nil
	}

	entities, err := w.world.Entities(ctx)
	if err != nil {
		return fmt.Errorf("failed to list entities: %w", err)
	}

	var villagers []world.Entity
	for _, e := range entities {
		if e.IsVillager() {
			villagers = append(villagers, e)
		}
	}
	w.metrics.SetVillagers(len(villagers))

	if len(villagers) == 0 {
		w.log.Info("No villagers in render distance", "wait", w.opts.EmptyScanWait.String())
		w.wait(ctx, w.opts.EmptyScanWait)
		return nil
	}

	bounds := w.state.Bounds()
	w.log.Info("Found villagers nearby", "count", len(villagers), "bounds", bounds.String())
	w.emitter.Emit(events.VillagersFound(len(villagers), bounds.Active()))

	for _, v := range villagers {
		if !w.state.Running() {
			w.log.Info("Stop requested, ending scan early")
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		if !w.state.Bounds().Contains(v.Position) {
			w.log.Info("Villager outside bounds, skipping", "villager", v.ID, "pos", v.Position.String())
			continue
		}

		res := w.trader.TradeWith(ctx, v)
		w.log.Info("Villager session finished",
			"villager", v.ID,
			"session_id", res.ID,
			"outcome", res.Outcome,
			"trades", len(res.Executed),
		)

		w.wait(ctx, w.opts.VillagerDelay)
	}

	w.metrics.RecordCycle()
	w.log.Info("Finished checking all villagers", "wait", w.opts.CycleWait.String())
	w.wait(ctx, w.opts.CycleWait)
	return nil
}

// wait sleeps for d unless ctx ends or a stop wakes it. A wake while the
// run flag is still set is stale and ignored.
func (w *Worker) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case <-w.wake:
			if !w.state.Running() {
				return
			}
		}
	}
}
