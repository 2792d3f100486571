// Package container moves items between the bot's inventory and storage
// containers: walk over, open, transfer, close.
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwebster45206/villager-trader/internal/metrics"
	"github.com/jwebster45206/villager-trader/internal/services/events"
	"github.com/jwebster45206/villager-trader/internal/world"
	"github.com/jwebster45206/villager-trader/pkg/geom"
	"github.com/jwebster45206/villager-trader/pkg/trade"
)

var ErrNoContainer = errors.New("container unavailable")

// RefillOutcome describes what a refill did.
type RefillOutcome string

const (
	RefillWithdrawn         RefillOutcome = "withdrawn"
	RefillNotFound          RefillOutcome = "not_found"
	RefillAlreadySufficient RefillOutcome = "already_sufficient"
)

// DepositSummary lists the stacks moved into the container and any that the
// game rejected.
type DepositSummary struct {
	Moved  []trade.ItemStack
	Failed []trade.ItemStack
}

// Total is the number of items moved.
func (s DepositSummary) Total() int {
	n := 0
	for _, m := range s.Moved {
		n += m.Count
	}
	return n
}

type RefillSummary struct {
	Outcome   RefillOutcome
	Held      int
	Withdrawn int
}

// Options configures how containers are approached.
type Options struct {
	Radius      float64
	MoveTimeout time.Duration
}

// Interactor runs container transactions against the world.
type Interactor struct {
	world   world.World
	opts    Options
	emitter events.Emitter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewInteractor(w world.World, opts Options, emitter events.Emitter, m *metrics.Metrics, logger *slog.Logger) *Interactor {
	if opts.Radius <= 0 {
		opts.Radius = 2
	}
	if opts.MoveTimeout <= 0 {
		opts.MoveTimeout = 15 * time.Second
	}
	if emitter == nil {
		emitter = events.Discard{}
	}
	if m == nil {
		m = metrics.New()
	}
	return &Interactor{world: w, opts: opts, emitter: emitter, metrics: m, logger: logger}
}

// WithdrawAmount is how much to take so that held never exceeds high.
func WithdrawAmount(held, available, high int) int {
	return max(0, min(available, high-held))
}

// Deposit moves every held stack whose kind matches into the container at
// target. A rejected stack is logged and the rest are still attempted.
func (c *Interactor) Deposit(ctx context.Context, target geom.Position, m trade.Matcher) (DepositSummary, error) {
	var summary DepositSummary

	box, err := c.open(ctx, target)
	if err != nil {
		return summary, err
	}
	defer c.close(ctx, box, target)

	held, err := c.world.Inventory(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to read inventory: %w", err)
	}

	for _, stack := range held {
		if stack.Count <= 0 || !m.Match(stack.Kind) {
			continue
		}
		if err := box.Deposit(ctx, stack.Kind, stack.Count); err != nil {
			c.logger.Warn("Failed to deposit", "item", stack.Kind, "count", stack.Count, "error", err)
			summary.Failed = append(summary.Failed, stack)
			continue
		}
		c.logger.Info("Deposited", "item", stack.Kind, "count", stack.Count, "pos", target.String())
		summary.Moved = append(summary.Moved, stack)
		c.metrics.RecordTransfer(events.ActionDeposit, stack.Kind, stack.Count)
		c.emitter.Emit(events.InventoryChanged(events.ActionDeposit, stack.Kind, stack.Count))
	}

	if len(summary.Moved) == 0 {
		c.logger.Info("No items to deposit", "pos", target.String())
	}
	return summary, nil
}

// Refill tops the held quantity of item up to high once it falls below low.
// Nothing is moved or opened while held >= low.
func (c *Interactor) Refill(ctx context.Context, target geom.Position, item string, low, high int) (RefillSummary, error) {
	held, err := c.heldCount(ctx, item)
	if err != nil {
		return RefillSummary{}, err
	}
	summary := RefillSummary{Held: held, Outcome: RefillAlreadySufficient}
	if held >= low {
		c.logger.Debug("Already have enough currency", "item", item, "held", held)
		return summary, nil
	}

	box, err := c.open(ctx, target)
	if err != nil {
		return summary, err
	}
	defer c.close(ctx, box, target)

	// Re-read after walking over; trades or pickups may have changed it.
	if held, err = c.heldCount(ctx, item); err != nil {
		return summary, err
	}
	summary.Held = held
	if held >= low {
		return summary, nil
	}

	available := trade.CountOf(box.Items(), item)
	if available == 0 {
		c.logger.Warn("Currency not found in refill container", "item", item, "pos", target.String())
		summary.Outcome = RefillNotFound
		return summary, nil
	}

	amount := WithdrawAmount(held, available, high)
	if amount == 0 {
		return summary, nil
	}
	if err := box.Withdraw(ctx, item, amount); err != nil {
		return summary, fmt.Errorf("failed to withdraw %d %s: %w", amount, item, err)
	}

	c.logger.Info("Refilled", "item", item, "count", amount, "held", held+amount)
	summary.Outcome = RefillWithdrawn
	summary.Withdrawn = amount
	summary.Held = held + amount
	c.metrics.RecordTransfer(events.ActionRefill, item, amount)
	c.emitter.Emit(events.InventoryChanged(events.ActionRefill, item, amount))
	return summary, nil
}

func (c *Interactor) heldCount(ctx context.Context, item string) (int, error) {
	inv, err := c.world.Inventory(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read inventory: %w", err)
	}
	return trade.CountOf(inv, item), nil
}

func (c *Interactor) open(ctx context.Context, target geom.Position) (world.Container, error) {
	moveCtx, cancel := context.WithTimeout(ctx, c.opts.MoveTimeout)
	err := c.world.Goto(moveCtx, target, c.opts.Radius)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: could not reach %s: %w", ErrNoContainer, target, err)
	}

	box, err := c.world.OpenContainer(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%w: could not open %s: %w", ErrNoContainer, target, err)
	}
	return box, nil
}

func (c *Interactor) close(ctx context.Context, box world.Container, target geom.Position) {
	if err := box.Close(ctx); err != nil {
		c.logger.Warn("Failed to close container", "pos", target.String(), "error", err)
	}
}
