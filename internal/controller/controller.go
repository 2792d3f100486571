// Package controller owns the Idle/Running state machine that drives the
// scan cycle.
package controller

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jwebster45206/villager-trader/internal/metrics"
	"github.com/jwebster45206/villager-trader/internal/services/events"
	"github.com/jwebster45206/villager-trader/pkg/state"
)

// Cycle is the long-running scan loop started by the controller.
type Cycle interface {
	Run(ctx context.Context)
	Wake()
}

// Controller starts and stops the scan cycle. At most one cycle runs at a
// time; the cycle observes a stop at its next checkpoint.
type Controller struct {
	ctx     context.Context
	state   *state.RunState
	cycle   Cycle
	emitter events.Emitter
	metrics *metrics.Metrics
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// New creates a controller whose cycles run under ctx.
func New(ctx context.Context, st *state.RunState, cycle Cycle, emitter events.Emitter, m *metrics.Metrics, logger *slog.Logger) *Controller {
	if emitter == nil {
		emitter = events.Discard{}
	}
	if m == nil {
		m = metrics.New()
	}
	return &Controller{
		ctx:     ctx,
		state:   st,
		cycle:   cycle,
		emitter: emitter,
		metrics: m,
		logger:  logger,
	}
}

// Start moves Idle to Running and reports whether that transition happened.
// Starting while already running is a no-op.
func (c *Controller) Start(by string) bool {
	started, launch := c.state.Begin()
	if launch {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.cycle.Run(c.ctx)
		}()
	}
	if !started {
		c.logger.Debug("Start ignored, already running", "by", by)
		return false
	}

	c.logger.Info("Trading bot started", "by", by, "launched_cycle", launch)
	c.metrics.SetRunning(true)
	c.emitter.Emit(events.StatusChanged("started", detail(by)))
	return true
}

// Stop moves Running to Idle and reports whether that transition happened.
// The in-flight cycle finishes its current villager session before exiting.
func (c *Controller) Stop(by string) bool {
	if !c.state.End() {
		return false
	}
	c.cycle.Wake()

	c.logger.Info("Trading bot stopped", "by", by)
	c.metrics.SetRunning(false)
	c.emitter.Emit(events.StatusChanged("stopped", detail(by)))
	return true
}

func (c *Controller) Running() bool {
	return c.state.Running()
}

// Wait blocks until every launched cycle has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func detail(by string) string {
	if by == "" {
		return ""
	}
	return "by " + by
}
