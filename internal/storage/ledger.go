package storage

import (
	"context"
	"maps"
	"sync"
)

// Ledger keeps running totals of items acquired through trades.
type Ledger interface {
	RecordTrade(ctx context.Context, item string, quantity int) error
	Totals(ctx context.Context) (map[string]int, error)
	Reset(ctx context.Context) error
}

// MemoryLedger is a process-local Ledger.
type MemoryLedger struct {
	mu     sync.Mutex
	totals map[string]int
}

var _ Ledger = (*MemoryLedger)(nil)

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{totals: make(map[string]int)}
}

func (l *MemoryLedger) RecordTrade(ctx context.Context, item string, quantity int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totals[item] += quantity
	return nil
}

func (l *MemoryLedger) Totals(ctx context.Context) (map[string]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.totals), nil
}

func (l *MemoryLedger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.totals)
	return nil
}
