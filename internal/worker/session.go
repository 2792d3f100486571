package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/villager-trader/internal/container"
	"github.com/jwebster45206/villager-trader/internal/metrics"
	"github.com/jwebster45206/villager-trader/internal/services/events"
	"github.com/jwebster45206/villager-trader/internal/storage"
	"github.com/jwebster45206/villager-trader/internal/world"
	"github.com/jwebster45206/villager-trader/pkg/state"
	"github.com/jwebster45206/villager-trader/pkg/trade"
)

// Session outcomes
const (
	OutcomeTraded            = "traded"
	OutcomeNoTrades          = "no_trades"
	OutcomeUnreachable       = "unreachable"
	OutcomeOutOfRange        = "out_of_range"
	OutcomeWindowUnavailable = "window_unavailable"
	OutcomeFailed            = "failed"
)

// SessionResult summarizes one villager session.
type SessionResult struct {
	ID       string
	Villager world.Entity
	Outcome  string
	Executed []trade.Offer
	Failed   []trade.Offer
	Balance  int
	Deposit  *container.DepositSummary
	Refill   *container.RefillSummary
	Err      error
}

// Trader runs villager trading sessions.
type Trader struct {
	world      world.World
	state      *state.RunState
	containers *container.Interactor
	ledger     storage.Ledger
	emitter    events.Emitter
	metrics    *metrics.Metrics
	opts       Options
	logger     *slog.Logger
}

// NewTrader creates a Trader. Nil ledger, emitter or metrics are replaced
// with in-memory or no-op versions.
func NewTrader(w world.World, st *state.RunState, containers *container.Interactor, ledger storage.Ledger, emitter events.Emitter, m *metrics.Metrics, opts Options, logger *slog.Logger) *Trader {
	if ledger == nil {
		ledger = storage.NewMemoryLedger()
	}
	if emitter == nil {
		emitter = events.Discard{}
	}
	if m == nil {
		m = metrics.New()
	}
	return &Trader{
		world:      w,
		state:      st,
		containers: containers,
		ledger:     ledger,
		emitter:    emitter,
		metrics:    m,
		opts:       opts.withDefaults(),
		logger:     logger,
	}
}

// TradeWith runs one session against v. Failures end the session early and
// are reported in the result; they never propagate.
func (t *Trader) TradeWith(ctx context.Context, v world.Entity) (res SessionResult) {
	res = SessionResult{ID: uuid.New().String()[:8], Villager: v}
	log := t.logger.With("session_id", res.ID, "villager", v.ID)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("session panic: %v", r)
			log.Error("Trade session panicked", "error", res.Err)
		}
		t.metrics.RecordSession(res.Outcome, time.Since(start))
		if res.Err != nil {
			t.emit(res.ID, events.Error(res.Err, fmt.Sprintf("villager at %s", v.Position)))
		}
	}()

	// Walk over, bounded by the movement timeout.
	moveCtx, cancel := context.WithTimeout(ctx, t.opts.MoveTimeout)
	err := t.world.Goto(moveCtx, v.Position, t.opts.GoalRadius)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("pathfinding timeout after %s: %w", t.opts.MoveTimeout, err)
		}
		log.Warn("Pathing error, villager might be unreachable", "pos", v.Position.String(), "error", err)
		res.Outcome, res.Err = OutcomeUnreachable, err
		return res
	}
	log.Info("Reached villager", "pos", v.Position.String())

	// The villager may have wandered off while we walked.
	if err := t.checkRange(ctx, v); err != nil {
		log.Warn("Villager out of interaction range", "error", err)
		res.Outcome = OutcomeOutOfRange
		return res
	}

	if err := sleep(ctx, t.opts.PreTradeDelay); err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}

	if err := t.trade(ctx, v, &res, log); err != nil {
		res.Err = err
		return res
	}

	// Bank purchases only after a productive session.
	if dep, ok := t.state.Deposit(); ok && len(res.Executed) > 0 && t.containers != nil {
		summary, err := t.containers.Deposit(ctx, dep, t.state.Matcher())
		if err != nil {
			log.Warn("Deposit failed", "pos", dep.String(), "error", err)
			t.emit(res.ID, events.Error(err, "deposit"))
		} else {
			res.Deposit = &summary
			log.Info("Deposit complete", "items", summary.Total(), "stacks", len(summary.Moved), "rejected", len(summary.Failed))
		}
	}

	if ref, ok := t.state.Refill(); ok && t.containers != nil {
		summary, err := t.containers.Refill(ctx, ref, t.opts.Currency, t.opts.RefillLow, t.opts.RefillHigh)
		if err != nil {
			log.Warn("Currency refill failed", "pos", ref.String(), "error", err)
			t.emit(res.ID, events.Error(err, "refill"))
		} else {
			res.Refill = &summary
		}
	}

	return res
}

func (t *Trader) checkRange(ctx context.Context, v world.Entity) error {
	current, err := t.world.Entity(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("villager lost: %w", err)
	}
	self, err := t.world.Self(ctx)
	if err != nil {
		return fmt.Errorf("bot position unknown: %w", err)
	}
	if d := self.Position.DistanceTo(current.Position); d > t.opts.InteractionRange {
		return fmt.Errorf("villager is %.1f blocks away at %s", d, current.Position)
	}
	return nil
}

// trade opens the window, executes the accepted offers and always closes it.
func (t *Trader) trade(ctx context.Context, v world.Entity, res *SessionResult, log *slog.Logger) error {
	window, err := t.world.OpenVillager(ctx, v.ID)
	if err != nil || window == nil {
		if err == nil {
			err = world.ErrWindowUnavailable
		}
		log.Warn("Failed to open villager trading interface", "error", err)
		res.Outcome = OutcomeWindowUnavailable
		return err
	}
	defer func() {
		if err := window.Close(ctx); err != nil {
			log.Warn("Failed to close trading interface", "error", err)
		}
	}()

	if err := sleep(ctx, t.opts.WindowSettle); err != nil {
		res.Outcome = OutcomeFailed
		return err
	}

	offers := window.Offers()
	if len(offers) == 0 {
		log.Info("No trades available with this villager")
		res.Outcome = OutcomeNoTrades
		return nil
	}

	balance, err := t.balance(ctx)
	if err != nil {
		res.Outcome = OutcomeFailed
		return err
	}
	policy := trade.Policy{Matcher: t.state.Matcher(), Order: t.opts.Order, Rand: t.opts.Rand}
	accepted := policy.Select(offers, balance)
	log.Debug("Selected trades", "offers", len(offers), "accepted", len(accepted), "balance", balance)

	for _, o := range accepted {
		live, err := t.balance(ctx)
		if err != nil {
			res.Outcome = OutcomeFailed
			return err
		}
		if live < o.Cost() {
			log.Info("Not enough currency for trading", "currency", t.opts.Currency, "held", live, "cost", o.Cost())
			balance = live
			break
		}

		if err := window.Trade(ctx, o.Index); err != nil {
			log.Warn("Failed to execute trade", "offer", o.String(), "error", err)
			t.metrics.RecordTradeFailure()
			res.Failed = append(res.Failed, o)
			continue
		}

		balance -= o.Cost()
		res.Executed = append(res.Executed, o)
		log.Info("Traded", "item", o.Output.Kind, "count", o.Output.Count, "cost", o.Cost())
		t.metrics.RecordTrade(o.Output.Kind)
		if err := t.ledger.RecordTrade(ctx, o.Output.Kind, o.Output.Count); err != nil {
			log.Warn("Failed to record trade in ledger", "error", err)
		}
		t.emit(res.ID, events.TradeCompleted(o.Output.Kind, o.Output.Count, v.Position))

		if err := sleep(ctx, t.opts.TradeDelay); err != nil {
			break
		}
	}

	res.Balance = balance
	if len(res.Executed) > 0 {
		res.Outcome = OutcomeTraded
	} else {
		res.Outcome = OutcomeNoTrades
	}
	return nil
}

func (t *Trader) balance(ctx context.Context) (int, error) {
	inv, err := t.world.Inventory(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read inventory: %w", err)
	}
	return trade.CountOf(inv, t.opts.Currency), nil
}

func (t *Trader) emit(sessionID string, ev events.Event) {
	ev.SessionID = sessionID
	t.emitter.Emit(ev)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
