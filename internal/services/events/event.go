package events

import (
	"context"
	"fmt"
	"time"

	"github.com/jwebster45206/villager-trader/pkg/geom"
)

// EventType represents the type of event being emitted
type EventType string

const (
	EventTypeTradeCompleted   EventType = "trade.completed"
	EventTypeStatusChanged    EventType = "status.changed"
	EventTypeError            EventType = "bot.error"
	EventTypeVillagersFound   EventType = "villagers.found"
	EventTypeInventoryChanged EventType = "inventory.changed"
)

// Inventory actions carried by inventory.changed events
const (
	ActionDeposit = "deposit"
	ActionRefill  = "refill"
)

// Event is a structured notification. Data keys depend on Type.
type Event struct {
	Type      EventType      `json:"type"`
	Bot       string         `json:"bot,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Time      time.Time      `json:"time"`
	Data      map[string]any `json:"data,omitempty"`
}

// Sink delivers events somewhere outside the process.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Emitter accepts events without blocking or failing the caller.
type Emitter interface {
	Emit(ev Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(Event) {}

// TradeCompleted reports one executed trade.
func TradeCompleted(item string, quantity int, pos geom.Position) Event {
	return newEvent(EventTypeTradeCompleted, map[string]any{
		"item":     item,
		"quantity": quantity,
		"location": pos,
	})
}

// StatusChanged reports a run state transition such as "started" or "stopped".
func StatusChanged(status, detail string) Event {
	return newEvent(EventTypeStatusChanged, map[string]any{
		"state":  status,
		"detail": detail,
	})
}

// Error reports a failure and where it happened.
func Error(err error, context string) Event {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return newEvent(EventTypeError, map[string]any{
		"message": msg,
		"context": context,
	})
}

// VillagersFound reports the result of a scan.
func VillagersFound(count int, boundsActive bool) Event {
	return newEvent(EventTypeVillagersFound, map[string]any{
		"count":         count,
		"bounds_active": boundsActive,
	})
}

// InventoryChanged reports a deposit or refill transfer.
func InventoryChanged(action, item string, quantity int) Event {
	return newEvent(EventTypeInventoryChanged, map[string]any{
		"action":   action,
		"item":     item,
		"quantity": quantity,
	})
}

func newEvent(t EventType, data map[string]any) Event {
	return Event{Type: t, Time: time.Now().UTC(), Data: data}
}

// Field returns a data field formatted for display, or "".
func (e Event) Field(key string) string {
	v, ok := e.Data[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
