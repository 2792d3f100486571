// Package bridge implements world.World against a game-protocol bridge
// process speaking JSON over a websocket.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jwebster45206/villager-trader/internal/world"
	"github.com/jwebster45206/villager-trader/pkg/geom"
	"github.com/jwebster45206/villager-trader/pkg/trade"
)

const (
	writeTimeout      = 10 * time.Second
	handshakeTimeout  = 15 * time.Second
	stopGotoTimeout   = 2 * time.Second
	whisperBufferSize = 64
)

// Client is a world.World backed by a bridge connection.
type Client struct {
	conn     *websocket.Conn
	username string
	logger   *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan inbound
	closed  bool

	done     chan struct{}
	whispers chan world.Whisper
}

var _ world.World = (*Client)(nil)

// Dial connects to the bridge at url. username is the in-game name the bridge
// logs in as.
func Dial(ctx context.Context, url, username string, logger *slog.Logger) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial bridge %s: %w", url, err)
	}
	return newClient(conn, username, logger), nil
}

func newClient(conn *websocket.Conn, username string, logger *slog.Logger) *Client {
	return &Client{
		conn:     conn,
		username: username,
		logger:   logger,
		pending:  make(map[string]chan inbound),
		done:     make(chan struct{}),
		whispers: make(chan world.Whisper, whisperBufferSize),
	}
}

// Run reads from the connection until it drops or ctx is cancelled. A
// dropped connection is returned as world.ErrDisconnected.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			c.conn.Close()
		case <-c.done:
		}
	}()

	err := c.readLoop()
	c.shutdown()
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("%w: %v", world.ErrDisconnected, err)
}

// Whispers delivers incoming private messages. It is closed when Run exits.
func (c *Client) Whispers() <-chan world.Whisper {
	return c.whispers
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}

func (c *Client) readLoop() error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("Discarding malformed bridge message", "error", err)
			continue
		}
		if msg.Event != "" {
			c.handleEvent(msg)
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("Response for unknown request", "id", msg.ID)
			continue
		}
		ch <- msg
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.pending = make(map[string]chan inbound)
	close(c.done)
	close(c.whispers)
}

func (c *Client) handleEvent(msg inbound) {
	switch msg.Event {
	case EventWhisper:
		var ev whisperEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			c.logger.Warn("Malformed whisper event", "error", err)
			return
		}
		select {
		case c.whispers <- world.Whisper{From: ev.Username, Message: ev.Message}:
		default:
			c.logger.Warn("Whisper dropped, buffer full", "from", ev.Username)
		}
	case EventSpawn:
		c.logger.Info("Bot spawned successfully")
	case EventKicked:
		var ev reasonEvent
		_ = json.Unmarshal(msg.Data, &ev)
		c.logger.Warn("Kicked from server", "reason", ev.Reason)
	case EventError:
		var ev reasonEvent
		_ = json.Unmarshal(msg.Data, &ev)
		c.logger.Error("Bridge reported error", "error", ev.Message)
	case EventEnd:
		var ev reasonEvent
		_ = json.Unmarshal(msg.Data, &ev)
		c.logger.Warn("Game connection ended", "reason", ev.Reason)
	default:
		c.logger.Debug("Ignoring bridge event", "event", msg.Event)
	}
}

// call sends a request and waits for its response, decoding the result into
// out when non-nil.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	id := uuid.New().String()
	ch := make(chan inbound, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("bridge %s: %w", method, world.ErrDisconnected)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(Message{ID: id, Method: method, Params: params}); err != nil {
		c.forget(id)
		return fmt.Errorf("bridge %s: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" || resp.Code != "" {
			return &RemoteError{Method: method, Code: resp.Code, Message: resp.Error}
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("bridge %s: failed to decode result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("bridge %s: %w", method, world.ErrDisconnected)
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) write(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

func (c *Client) Username() string {
	return c.username
}

// Login asks the bridge to join the game server. The username in opts
// defaults to the one given to Dial.
func (c *Client) Login(ctx context.Context, opts LoginOptions) error {
	if opts.Username == "" {
		opts.Username = c.username
	}
	return c.call(ctx, MethodLogin, opts, nil)
}

func (c *Client) Self(ctx context.Context) (world.Entity, error) {
	var e *wireEntity
	if err := c.call(ctx, MethodSelf, nil, &e); err != nil {
		return world.Entity{}, err
	}
	if e == nil {
		return world.Entity{}, world.ErrNotFound
	}
	return e.toEntity(), nil
}

func (c *Client) Entities(ctx context.Context) ([]world.Entity, error) {
	var wire []wireEntity
	if err := c.call(ctx, MethodEntities, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]world.Entity, len(wire))
	for i, e := range wire {
		out[i] = e.toEntity()
	}
	return out, nil
}

func (c *Client) Entity(ctx context.Context, id int) (world.Entity, error) {
	var e wireEntity
	if err := c.call(ctx, MethodEntity, idParams{ID: id}, &e); err != nil {
		return world.Entity{}, err
	}
	return e.toEntity(), nil
}

func (c *Client) PlayerEntity(ctx context.Context, username string) (world.Entity, error) {
	var e wireEntity
	if err := c.call(ctx, MethodPlayer, usernameParams{Username: username}, &e); err != nil {
		return world.Entity{}, err
	}
	return e.toEntity(), nil
}

func (c *Client) Inventory(ctx context.Context) ([]trade.ItemStack, error) {
	var items []trade.ItemStack
	if err := c.call(ctx, MethodInventory, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) SetMovements(ctx context.Context, opts world.MovementOptions) error {
	return c.call(ctx, MethodSetMovements, opts, nil)
}

// Goto blocks until the bridge reports arrival. When ctx ends first the
// bridge is told to abandon the path.
func (c *Client) Goto(ctx context.Context, target geom.Position, radius float64) error {
	err := c.call(ctx, MethodGoto, gotoParams{X: target.X, Y: target.Y, Z: target.Z, Radius: radius}, nil)
	if err != nil && ctx.Err() != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopGotoTimeout)
		defer cancel()
		if stopErr := c.call(stopCtx, MethodStopGoto, nil, nil); stopErr != nil {
			c.logger.Debug("Failed to stop pathfinding", "error", stopErr)
		}
	}
	return err
}

func (c *Client) Look(ctx context.Context, yaw, pitch float64) error {
	return c.call(ctx, MethodLook, lookParams{Yaw: yaw, Pitch: pitch}, nil)
}

func (c *Client) Yaw(ctx context.Context) (float64, error) {
	var res yawResult
	if err := c.call(ctx, MethodYaw, nil, &res); err != nil {
		return 0, err
	}
	return res.Yaw, nil
}

func (c *Client) Chat(ctx context.Context, message string) error {
	return c.call(ctx, MethodChat, chatParams{Message: message}, nil)
}

func (c *Client) Whisper(ctx context.Context, username, message string) error {
	return c.call(ctx, MethodWhisper, whisperParams{Username: username, Message: message}, nil)
}

// closeWindow is shared by trade windows and containers.
func (c *Client) closeWindow(ctx context.Context, windowID int) error {
	err := c.call(ctx, MethodCloseWindow, windowParams{WindowID: windowID}, nil)
	if errors.Is(err, world.ErrNotFound) {
		return nil
	}
	return err
}
