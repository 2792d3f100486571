package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis Pub/Sub channel prefix events are published on
const DefaultChannel = "tradebot-events"

// Broadcaster publishes events to Redis Pub/Sub
type Broadcaster struct {
	redisClient *redis.Client
	channel     string
	logger      *slog.Logger
}

// Ensure Broadcaster implements Sink
var _ Sink = (*Broadcaster)(nil)

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, channel string, logger *slog.Logger) *Broadcaster {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Broadcaster{
		redisClient: redisClient,
		channel:     channel,
		logger:      logger,
	}
}

func (b *Broadcaster) Name() string {
	return "redis"
}

// Channel returns the bot-specific channel events for bot are published on
func (b *Broadcaster) Channel(bot string) string {
	if bot == "" {
		return b.channel
	}
	return fmt.Sprintf("%s:%s", b.channel, bot)
}

// Send publishes an event to the bot-specific channel
func (b *Broadcaster) Send(ctx context.Context, ev Event) error {
	channel := b.Channel(ev.Bot)

	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", ev.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", ev.Type,
		"session_id", ev.SessionID,
	)

	return nil
}
