package world

import (
	"context"
	"fmt"
	"sync"

	"github.com/jwebster45206/villager-trader/pkg/geom"
	"github.com/jwebster45206/villager-trader/pkg/trade"
)

// MockWorld is an in-memory World for tests. Trades and container transfers
// move items between the bot inventory and the simulated villagers and chests.
// The ...Func fields override the default behavior of a call.
type MockWorld struct {
	Name string

	GotoFunc         func(ctx context.Context, target geom.Position, radius float64) error
	EntitiesFunc     func(ctx context.Context) ([]Entity, error)
	OpenVillagerFunc func(ctx context.Context, entityID int) (TradeWindow, error)
	TradeFunc        func(ctx context.Context, entityID, index int) error

	// Track calls for testing
	GotoCalls     []geom.Position
	TradeCalls    []int
	OpenedWindows int
	ClosedWindows int
	Chats         []string
	Whispers      []Whisper
	Looks         int
	Movements     *MovementOptions

	self       *Entity
	entities   map[int]Entity
	order      []int
	inventory  []trade.ItemStack
	offers     map[int][]trade.Offer
	containers map[geom.Position][]trade.ItemStack
	yaw        float64

	mu sync.Mutex // protects all fields above
}

// NewMockWorld creates a spawned bot at the origin with an empty inventory.
func NewMockWorld(name string) *MockWorld {
	return &MockWorld{
		Name:       name,
		self:       &Entity{ID: 0, Type: "player", Name: "player", Username: name},
		entities:   make(map[int]Entity),
		offers:     make(map[int][]trade.Offer),
		containers: make(map[geom.Position][]trade.ItemStack),
	}
}

// Despawn makes Self report ErrNotFound.
func (m *MockWorld) Despawn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.self = nil
}

func (m *MockWorld) SetSelfPosition(p geom.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.self != nil {
		m.self.Position = p
	}
}

// AddEntity adds or replaces an entity, keeping discovery order stable.
func (m *MockWorld) AddEntity(e Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[e.ID]; !ok {
		m.order = append(m.order, e.ID)
	}
	m.entities[e.ID] = e
}

// AddVillager adds a villager entity offering the given trades.
func (m *MockWorld) AddVillager(id int, pos geom.Position, offers ...trade.Offer) {
	m.AddEntity(Entity{ID: id, Type: "passive", Name: "villager", DisplayName: "Villager", Position: pos})
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range offers {
		offers[i].Index = i
	}
	m.offers[id] = offers
}

func (m *MockWorld) MoveEntity(id int, pos geom.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entities[id]; ok {
		e.Position = pos
		m.entities[id] = e
	}
}

func (m *MockWorld) RemoveEntity(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entities, id)
}

func (m *MockWorld) Give(kind string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inventory = addStack(m.inventory, kind, count)
}

func (m *MockWorld) Held(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return trade.CountOf(m.inventory, kind)
}

// PlaceContainer puts a container with the given contents at p.
func (m *MockWorld) PlaceContainer(p geom.Position, contents ...trade.ItemStack) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.containers[p] = append([]trade.ItemStack(nil), contents...)
}

func (m *MockWorld) ContainerCount(p geom.Position, kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return trade.CountOf(m.containers[p], kind)
}

func (m *MockWorld) GotoCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.GotoCalls)
}

func (m *MockWorld) TradeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.TradeCalls)
}

func (m *MockWorld) ChatLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Chats...)
}

func (m *MockWorld) WhisperLog() []Whisper {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Whisper(nil), m.Whispers...)
}

func (m *MockWorld) Self(ctx context.Context) (Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.self == nil {
		return Entity{}, ErrNotFound
	}
	return *m.self, nil
}

func (m *MockWorld) Username() string {
	return m.Name
}

func (m *MockWorld) Entities(ctx context.Context) ([]Entity, error) {
	if m.EntitiesFunc != nil {
		return m.EntitiesFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entity, 0, len(m.order))
	for _, id := range m.order {
		if e, ok := m.entities[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockWorld) Entity(ctx context.Context, id int) (Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return Entity{}, fmt.Errorf("entity %d: %w", id, ErrNotFound)
	}
	return e, nil
}

func (m *MockWorld) PlayerEntity(ctx context.Context, username string) (Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entities {
		if e.Username == username {
			return e, nil
		}
	}
	return Entity{}, fmt.Errorf("player %s: %w", username, ErrNotFound)
}

func (m *MockWorld) Inventory(ctx context.Context) ([]trade.ItemStack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]trade.ItemStack(nil), m.inventory...), nil
}

func (m *MockWorld) SetMovements(ctx context.Context, opts MovementOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Movements = &opts
	return nil
}

// Goto teleports the bot next to target unless GotoFunc says otherwise.
func (m *MockWorld) Goto(ctx context.Context, target geom.Position, radius float64) error {
	m.mu.Lock()
	m.GotoCalls = append(m.GotoCalls, target)
	m.mu.Unlock()

	if m.GotoFunc != nil {
		if err := m.GotoFunc(ctx, target, radius); err != nil {
			return err
		}
	}
	m.SetSelfPosition(target)
	return nil
}

func (m *MockWorld) Look(ctx context.Context, yaw, pitch float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Looks++
	m.yaw = yaw
	return nil
}

func (m *MockWorld) Yaw(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.yaw, nil
}

func (m *MockWorld) OpenVillager(ctx context.Context, entityID int) (TradeWindow, error) {
	if m.OpenVillagerFunc != nil {
		return m.OpenVillagerFunc(ctx, entityID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[entityID]; !ok {
		return nil, fmt.Errorf("villager %d: %w", entityID, ErrWindowUnavailable)
	}
	m.OpenedWindows++
	return &mockTradeWindow{world: m, entityID: entityID, offers: append([]trade.Offer(nil), m.offers[entityID]...)}, nil
}

func (m *MockWorld) OpenContainer(ctx context.Context, at geom.Position) (Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.containers[at]; !ok {
		return nil, fmt.Errorf("container at %s: %w", at, ErrNotFound)
	}
	m.OpenedWindows++
	return &mockContainer{world: m, at: at}, nil
}

func (m *MockWorld) Chat(ctx context.Context, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Chats = append(m.Chats, message)
	return nil
}

func (m *MockWorld) Whisper(ctx context.Context, username, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Whispers = append(m.Whispers, Whisper{From: username, Message: message})
	return nil
}

type mockTradeWindow struct {
	world    *MockWorld
	entityID int
	offers   []trade.Offer
}

func (w *mockTradeWindow) Offers() []trade.Offer {
	return w.offers
}

func (w *mockTradeWindow) Trade(ctx context.Context, index int) error {
	m := w.world
	m.mu.Lock()
	m.TradeCalls = append(m.TradeCalls, index)
	m.mu.Unlock()

	if m.TradeFunc != nil {
		if err := m.TradeFunc(ctx, w.entityID, index); err != nil {
			return err
		}
	}
	if index < 0 || index >= len(w.offers) {
		return fmt.Errorf("trade %d: %w", index, ErrNotFound)
	}
	o := w.offers[index]

	m.mu.Lock()
	defer m.mu.Unlock()
	if trade.CountOf(m.inventory, o.Input.Kind) < o.Input.Count {
		return fmt.Errorf("trade %d: not enough %s", index, o.Input.Kind)
	}
	m.inventory = addStack(m.inventory, o.Input.Kind, -o.Input.Count)
	m.inventory = addStack(m.inventory, o.Output.Kind, o.Output.Count)
	return nil
}

func (w *mockTradeWindow) Close(ctx context.Context) error {
	w.world.mu.Lock()
	defer w.world.mu.Unlock()
	w.world.ClosedWindows++
	return nil
}

type mockContainer struct {
	world *MockWorld
	at    geom.Position
}

func (c *mockContainer) Items() []trade.ItemStack {
	c.world.mu.Lock()
	defer c.world.mu.Unlock()
	return append([]trade.ItemStack(nil), c.world.containers[c.at]...)
}

func (c *mockContainer) Deposit(ctx context.Context, kind string, count int) error {
	m := c.world
	m.mu.Lock()
	defer m.mu.Unlock()
	if trade.CountOf(m.inventory, kind) < count {
		return fmt.Errorf("deposit %s: %w", kind, ErrNotFound)
	}
	m.inventory = addStack(m.inventory, kind, -count)
	m.containers[c.at] = addStack(m.containers[c.at], kind, count)
	return nil
}

func (c *mockContainer) Withdraw(ctx context.Context, kind string, count int) error {
	m := c.world
	m.mu.Lock()
	defer m.mu.Unlock()
	if trade.CountOf(m.containers[c.at], kind) < count {
		return fmt.Errorf("withdraw %s: %w", kind, ErrNotFound)
	}
	m.containers[c.at] = addStack(m.containers[c.at], kind, -count)
	m.inventory = addStack(m.inventory, kind, count)
	return nil
}

func (c *mockContainer) Close(ctx context.Context) error {
	c.world.mu.Lock()
	defer c.world.mu.Unlock()
	c.world.ClosedWindows++
	return nil
}

// addStack merges count into the first stack of kind, dropping empty stacks.
func addStack(stacks []trade.ItemStack, kind string, count int) []trade.ItemStack {
	out := make([]trade.ItemStack, 0, len(stacks)+1)
	merged := false
	for _, s := range stacks {
		if s.Kind == kind && !merged {
			s.Count += count
			merged = true
		}
		if s.Count > 0 {
			out = append(out, s)
		}
	}
	if !merged && count > 0 {
		out = append(out, trade.ItemStack{Kind: kind, Count: count})
	}
	return out
}

var _ World = (*MockWorld)(nil)
