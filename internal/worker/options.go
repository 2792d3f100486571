package worker

import (
	"math/rand/v2"
	"time"

	"github.com/jwebster45206/villager-trader/pkg/trade"
)

// Options holds the timing and policy knobs of the scan cycle and sessions.
type Options struct {
	MoveTimeout    time.Duration
	PreTradeDelay  time.Duration
	WindowSettle   time.Duration
	TradeDelay     time.Duration
	VillagerDelay  time.Duration
	EmptyScanWait  time.Duration
	CycleWait      time.Duration
	ErrorBackoff   time.Duration
	NotSpawnedWait time.Duration

	GoalRadius       float64
	InteractionRange float64

	Currency   string
	Order      trade.Order
	RefillLow  int
	RefillHigh int

	// Rand drives shuffled trade order; nil uses the global source.
	Rand *rand.Rand
}

// DefaultOptions expresses the classic game-tick waits at 20 ticks
// per second.
func DefaultOptions() Options {
	return Options{
		MoveTimeout:      10 * time.Second,
		PreTradeDelay:    time.Second,
		WindowSettle:     500 * time.Millisecond,
		TradeDelay:       250 * time.Millisecond,
		VillagerDelay:    5 * time.Second,
		EmptyScanWait:    5 * time.Minute,
		CycleWait:        10 * time.Minute,
		ErrorBackoff:     50 * time.Second,
		NotSpawnedWait:   5 * time.Second,
		GoalRadius:       2,
		InteractionRange: 4,
		Currency:         "emerald",
		Order:            trade.OrderDeterministic,
		RefillLow:        16,
		RefillHigh:       64,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MoveTimeout <= 0 {
		o.MoveTimeout = d.MoveTimeout
	}
	if o.GoalRadius <= 0 {
		o.GoalRadius = d.GoalRadius
	}
	if o.InteractionRange <= 0 {
		o.InteractionRange = d.InteractionRange
	}
	if o.Currency == "" {
		o.Currency = d.Currency
	}
	if o.Order == "" {
		o.Order = d.Order
	}
	if o.RefillHigh <= 0 {
		o.RefillHigh = d.RefillHigh
	}
	if o.RefillLow <= 0 {
		o.RefillLow = d.RefillLow
	}
	return o
}
