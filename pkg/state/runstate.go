package state

import (
	"slices"
	"sync"

	"github.com/jwebster45206/villager-trader/pkg/geom"
	"github.com/jwebster45206/villager-trader/pkg/trade"
)

// RunState is the single mutable state shared by the command surface and the
// scan cycle. All access goes through its methods.
type RunState struct {
	mu sync.RWMutex

	running     bool
	cycleActive bool

	deposit   *geom.Position
	refill    *geom.Position
	bounds    geom.Bounds
	whitelist []string
	matcher   trade.Matcher
}

// Snapshot is a point-in-time copy of RunState.
type Snapshot struct {
	Running     bool           `json:"running"`
	CycleActive bool           `json:"cycle_active"`
	Deposit     *geom.Position `json:"deposit,omitempty"`
	Refill      *geom.Position `json:"refill,omitempty"`
	Bounds      geom.Bounds    `json:"bounds"`
	Whitelist   []string       `json:"whitelist"`
	Keywords    []string       `json:"keywords"`
}

// New creates an idle RunState seeded from configuration.
func New(whitelist []string, bounds geom.Bounds, keywords []string) *RunState {
	s := &RunState{
		bounds:  bounds,
		matcher: trade.NewMatcher(keywords),
	}
	for _, name := range whitelist {
		s.addWhitelist(name)
	}
	return s
}

// Running reports whether the scan cycle should keep going.
func (s *RunState) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Begin sets the run flag. started reports whether the flag was previously
// clear. launch is true only when no cycle is active, in which case the caller
// owns launching the one cycle.
func (s *RunState) Begin() (started, launch bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	started = !s.running
	s.running = true
	if s.cycleActive {
		return started, false
	}
	s.cycleActive = true
	return started, true
}

// End clears the run flag and reports whether it was set.
func (s *RunState) End() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.running
	s.running = false
	return was
}

// Continue is the cycle's exit decision. When the run flag is clear the cycle
// is marked inactive atomically, so a concurrent Begin launches a fresh cycle
// instead of relying on one that is about to return.
func (s *RunState) Continue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return true
	}
	s.cycleActive = false
	return false
}

// Release marks the cycle inactive regardless of the run flag. Used when the
// cycle exits because its context ended.
func (s *RunState) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycleActive = false
}

func (s *RunState) SetDeposit(p geom.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deposit = &p
}

func (s *RunState) Deposit() (geom.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deposit == nil {
		return geom.Position{}, false
	}
	return *s.deposit, true
}

func (s *RunState) SetRefill(p geom.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refill = &p
}

func (s *RunState) Refill() (geom.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.refill == nil {
		return geom.Position{}, false
	}
	return *s.refill, true
}

// SetCorner sets corner 1 or 2 of the bounding box.
func (s *RunState) SetCorner(corner int, p geom.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if corner == 1 {
		s.bounds.Corner1 = &p
	} else {
		s.bounds.Corner2 = &p
	}
}

func (s *RunState) Bounds() geom.Bounds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyBounds(s.bounds)
}

// AddWhitelist adds name unless it is already present. It reports whether the
// whitelist changed.
func (s *RunState) AddWhitelist(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addWhitelist(name)
}

func (s *RunState) addWhitelist(name string) bool {
	if name == "" || slices.Contains(s.whitelist, name) {
		return false
	}
	s.whitelist = append(s.whitelist, name)
	return true
}

// RemoveWhitelist removes name and reports whether it was present.
func (s *RunState) RemoveWhitelist(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.whitelist)
	s.whitelist = slices.DeleteFunc(s.whitelist, func(n string) bool { return n == name })
	return len(s.whitelist) != before
}

func (s *RunState) IsWhitelisted(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.whitelist, name)
}

func (s *RunState) Whitelist() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.whitelist)
}

func (s *RunState) Matcher() trade.Matcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matcher
}

// Snapshot copies the current state.
func (s *RunState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Running:     s.running,
		CycleActive: s.cycleActive,
		Bounds:      copyBounds(s.bounds),
		Whitelist:   slices.Clone(s.whitelist),
		Keywords:    s.matcher.Keywords(),
	}
	if s.deposit != nil {
		p := *s.deposit
		snap.Deposit = &p
	}
	if s.refill != nil {
		p := *s.refill
		snap.Refill = &p
	}
	return snap
}

func copyBounds(b geom.Bounds) geom.Bounds {
	var out geom.Bounds
	if b.Corner1 != nil {
		p := *b.Corner1
		out.Corner1 = &p
	}
	if b.Corner2 != nil {
		p := *b.Corner2
		out.Corner2 = &p
	}
	return out
}
