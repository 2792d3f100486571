package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/jwebster45206/villager-trader/internal/world"
	"github.com/jwebster45206/villager-trader/pkg/geom"
)

// Methods understood by the bridge process.
const (
	MethodLogin         = "login"
	MethodSelf          = "self"
	MethodEntities      = "entities"
	MethodEntity        = "entity"
	MethodPlayer        = "player"
	MethodInventory     = "inventory"
	MethodSetMovements  = "set_movements"
	MethodGoto          = "goto"
	MethodStopGoto      = "stop_goto"
	MethodLook          = "look"
	MethodYaw           = "yaw"
	MethodOpenVillager  = "open_villager"
	MethodTrade         = "trade"
	MethodOpenContainer = "open_container"
	MethodDeposit       = "deposit"
	MethodWithdraw      = "withdraw"
	MethodCloseWindow   = "close_window"
	MethodChat          = "chat"
	MethodWhisper       = "whisper"
)

// Events pushed by the bridge.
const (
	EventWhisper = "whisper"
	EventSpawn   = "spawn"
	EventKicked  = "kicked"
	EventError   = "error"
	EventEnd     = "end"
)

// Error codes carried in failed responses.
const (
	CodeUnreachable       = "unreachable"
	CodeWindowUnavailable = "window_unavailable"
	CodeNotFound          = "not_found"
)

// Message is the single envelope used in both directions. Requests carry
// ID+Method+Params, responses ID+Result or ID+Error, events Event+Data.
type Message struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params any             `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// inbound mirrors Message with Params left raw, for decoding.
type inbound struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
	Code   string          `json:"code"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

// RemoteError is a failed call. It unwraps to the matching world sentinel.
type RemoteError struct {
	Method  string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("bridge %s: %s", e.Method, e.Message)
	}
	return fmt.Sprintf("bridge %s: %s (%s)", e.Method, e.Message, e.Code)
}

func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case CodeUnreachable:
		return world.ErrUnreachable
	case CodeWindowUnavailable:
		return world.ErrWindowUnavailable
	case CodeNotFound:
		return world.ErrNotFound
	}
	return nil
}

type vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v vec3) floored() geom.Position {
	return geom.Floor(v.X, v.Y, v.Z)
}

type wireEntity struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username,omitempty"`
	Position    vec3   `json:"position"`
}

func (e wireEntity) toEntity() world.Entity {
	return world.Entity{
		ID:          e.ID,
		Type:        e.Type,
		Name:        e.Name,
		DisplayName: e.DisplayName,
		Username:    e.Username,
		Position:    e.Position.floored(),
	}
}

// LoginOptions tells the bridge which server to join and as whom.
type LoginOptions struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Version  string `json:"version,omitempty"`
	Auth     string `json:"auth,omitempty"`
}

type idParams struct {
	ID int `json:"id"`
}

type usernameParams struct {
	Username string `json:"username"`
}

type gotoParams struct {
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Z      int     `json:"z"`
	Radius float64 `json:"radius"`
}

type lookParams struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

type yawResult struct {
	Yaw float64 `json:"yaw"`
}

type windowParams struct {
	WindowID int `json:"window_id"`
}

type tradeParams struct {
	WindowID int `json:"window_id"`
	Index    int `json:"index"`
}

type transferParams struct {
	WindowID int    `json:"window_id"`
	Item     string `json:"item"`
	Count    int    `json:"count"`
}

type chatParams struct {
	Message string `json:"message"`
}

type whisperParams struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type whisperEvent struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type reasonEvent struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}
