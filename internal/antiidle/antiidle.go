// Package antiidle keeps the bot from being kicked for inactivity.
package antiidle

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jwebster45206/villager-trader/internal/world"
)

const (
	DefaultInterval   = 4 * time.Second
	DefaultCommand    = "/ping"
	DefaultLookJitter = 0.3
)

type Options struct {
	Interval   time.Duration
	Command    string  // chat line sent each tick; empty disables chat
	LookJitter float64 // total width of the random yaw nudge, radians
	Rand       *rand.Rand
}

// Keeper periodically nudges the bot's view and sends a chat command.
type Keeper struct {
	world  world.World
	opts   Options
	logger *slog.Logger
}

func New(w world.World, opts Options, logger *slog.Logger) *Keeper {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.LookJitter <= 0 {
		opts.LookJitter = DefaultLookJitter
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return &Keeper{world: w, opts: opts, logger: logger}
}

// Run ticks until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	k.logger.Info("Anti-idle started", "interval", k.opts.Interval, "command", k.opts.Command)
	ticker := time.NewTicker(k.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			k.logger.Info("Anti-idle stopped")
			return nil
		case <-ticker.C:
			if err := k.Tick(ctx); err != nil {
				k.logger.Debug("Anti-idle tick skipped", "error", err)
			}
		}
	}
}

// Tick performs one nudge. It does nothing while the bot is not spawned.
func (k *Keeper) Tick(ctx context.Context) error {
	if _, err := k.world.Self(ctx); err != nil {
		if errors.Is(err, world.ErrNotFound) {
			return nil
		}
		return err
	}
	yaw, err := k.world.Yaw(ctx)
	if err != nil {
		return err
	}
	jitter := k.opts.LookJitter
	if err := k.world.Look(ctx, yaw+k.opts.Rand.Float64()*jitter-jitter/2, 0); err != nil {
		return err
	}
	if k.opts.Command == "" {
		return nil
	}
	return k.world.Chat(ctx, k.opts.Command)
}
