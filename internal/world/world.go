// Package world defines what the trader needs from the game client: entity
// and inventory views, movement, windows and chat.
package world

import (
	"context"
	"errors"
	"strings"

	"github.com/jwebster45206/villager-trader/pkg/geom"
	"github.com/jwebster45206/villager-trader/pkg/trade"
)

var (
	ErrUnreachable       = errors.New("goal unreachable")
	ErrWindowUnavailable = errors.New("window unavailable")
	ErrNotFound          = errors.New("not found")
	ErrDisconnected      = errors.New("disconnected from game")
)

// Entity is a transient view of a world entity.
type Entity struct {
	ID          int           `json:"id"`
	Type        string        `json:"type"`
	Name        string        `json:"name"`
	DisplayName string        `json:"display_name"`
	Username    string        `json:"username,omitempty"`
	Position    geom.Position `json:"position"`
}

// IsVillager accepts the entity type and naming variants the game reports for
// villagers across protocol versions.
func (e Entity) IsVillager() bool {
	if e.Name == "villager" {
		return true
	}
	if e.Type != "passive" && e.Type != "villager" && e.Type != "mob" {
		return false
	}
	return strings.Contains(e.DisplayName, "Villager")
}

// MovementOptions constrains the path planner.
type MovementOptions struct {
	AllowDig    bool `json:"allow_dig"`
	AllowPlace  bool `json:"allow_place"`
	AllowSprint bool `json:"allow_sprint"`
}

// World is the game client. Implementations must be safe for concurrent use.
type World interface {
	// Self returns the bot's own entity, or ErrNotFound before spawn.
	Self(ctx context.Context) (Entity, error)
	Username() string
	Entities(ctx context.Context) ([]Entity, error)
	Entity(ctx context.Context, id int) (Entity, error)
	// PlayerEntity returns the entity of a named player if it is visible.
	PlayerEntity(ctx context.Context, username string) (Entity, error)
	Inventory(ctx context.Context) ([]trade.ItemStack, error)

	SetMovements(ctx context.Context, opts MovementOptions) error
	// Goto walks to within radius of target and returns once there. It is
	// bounded by ctx.
	Goto(ctx context.Context, target geom.Position, radius float64) error
	Look(ctx context.Context, yaw, pitch float64) error
	Yaw(ctx context.Context) (float64, error)

	OpenVillager(ctx context.Context, entityID int) (TradeWindow, error)
	OpenContainer(ctx context.Context, at geom.Position) (Container, error)

	Chat(ctx context.Context, message string) error
	Whisper(ctx context.Context, username, message string) error
}

// TradeWindow is an open villager trading interface.
type TradeWindow interface {
	Offers() []trade.Offer
	Trade(ctx context.Context, index int) error
	Close(ctx context.Context) error
}

// Container is an open storage window.
type Container interface {
	Items() []trade.ItemStack
	Deposit(ctx context.Context, kind string, count int) error
	Withdraw(ctx context.Context, kind string, count int) error
	Close(ctx context.Context) error
}

// Whisper is an incoming private message.
type Whisper struct {
	From    string
	Message string
}
