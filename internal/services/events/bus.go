package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultBusBuffer = 256
	sinkTimeout      = 10 * time.Second
)

// Bus fans events out to sinks on its own goroutine. Emit never blocks: when
// the buffer is full the event is dropped and logged.
type Bus struct {
	bot    string
	sinks  []Sink
	queue  chan Event
	logger *slog.Logger

	mu      sync.Mutex
	dropped int
}

// NewBus creates an event bus. bot is stamped on every event.
func NewBus(bot string, logger *slog.Logger, sinks ...Sink) *Bus {
	return &Bus{
		bot:    bot,
		sinks:  sinks,
		queue:  make(chan Event, defaultBusBuffer),
		logger: logger,
	}
}

func (b *Bus) Emit(ev Event) {
	if len(b.sinks) == 0 {
		return
	}
	if ev.Bot == "" {
		ev.Bot = b.bot
	}
	select {
	case b.queue <- ev:
	default:
		b.mu.Lock()
		b.dropped++
		dropped := b.dropped
		b.mu.Unlock()
		b.logger.Warn("Event bus full, dropping event", "event_type", ev.Type, "dropped_total", dropped)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (b *Bus) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Run delivers queued events until ctx is done, then drains what is left.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			b.drain()
			return nil
		case ev := <-b.queue:
			b.deliver(ctx, ev)
		}
	}
}

func (b *Bus) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	for {
		select {
		case ev := <-b.queue:
			b.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (b *Bus) deliver(ctx context.Context, ev Event) {
	for _, s := range b.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
		if err := s.Send(sendCtx, ev); err != nil {
			// Don't fail anything just because event delivery failed
			b.logger.Warn("Failed to deliver event", "sink", s.Name(), "event_type", ev.Type, "error", err)
		}
		cancel()
	}
}
